package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrChallengeNotFound = errors.New("store: challenge not found or used")

func (s *Store) CreateChallenge(ctx context.Context, challengeID, nonce string, expiresAt int64) error {
	const query = `
		INSERT INTO challenges (challenge_id, nonce, expires_at, used)
		VALUES ($1, $2, $3, FALSE)
	`

	if _, err := s.pool.Exec(ctx, query, challengeID, nonce, expiresAt); err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge marks a challenge used and returns its nonce. The
// single UPDATE makes consumption atomic: a replayed challenge id
// matches zero rows.
func (s *Store) ConsumeChallenge(ctx context.Context, challengeID string) (string, int64, error) {
	const query = `
		UPDATE challenges
		SET used = TRUE
		WHERE challenge_id = $1 AND NOT used
		RETURNING nonce, expires_at
	`

	var nonce string
	var expiresAt int64
	err := s.pool.QueryRow(ctx, query, challengeID).Scan(&nonce, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrChallengeNotFound
		}
		return "", 0, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return nonce, expiresAt, nil
}
