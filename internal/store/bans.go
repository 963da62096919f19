package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// BanIP records an IP ban. Banning an already-banned IP refreshes the
// reason.
func (s *Store) BanIP(ctx context.Context, ip, reason, bannedBy string) error {
	const query = `
		INSERT INTO ip_bans (ip, reason, banned_by, banned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip) DO UPDATE
		SET reason = EXCLUDED.reason, banned_by = EXCLUDED.banned_by, banned_at = EXCLUDED.banned_at
	`

	if _, err := s.pool.Exec(ctx, query, ip, reason, bannedBy, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to ban ip: %w", err)
	}
	return nil
}

func (s *Store) UnbanIP(ctx context.Context, ip string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ip_bans WHERE ip = $1`, ip); err != nil {
		return fmt.Errorf("failed to unban ip: %w", err)
	}
	return nil
}

func (s *Store) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	const query = `SELECT 1 FROM ip_bans WHERE ip = $1`

	var one int
	err := s.pool.QueryRow(ctx, query, ip).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check ip ban: %w", err)
	}
	return true, nil
}
