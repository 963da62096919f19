package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/evenkeel/SatoshiStacks/internal/auth"
)

var ErrPlayerNotFound = errors.New("store: player not found")

// PlayerRecord is the full persisted player row, as served to the
// admin surface.
type PlayerRecord struct {
	Identity         string `json:"identity"`
	Handle           string `json:"handle"`
	Avatar           string `json:"avatar"`
	LightningAddress string `json:"lightning_address"`
	CurrentChips     int64  `json:"current_chips"`
	HandsPlayed      int64  `json:"hands_played"`
	HandsWon         int64  `json:"hands_won"`
	TotalWinnings    int64  `json:"total_winnings"`
	TotalLosses      int64  `json:"total_losses"`
	FirstSeen        int64  `json:"first_seen"`
	LastSeen         int64  `json:"last_seen"`
	IsBanned         bool   `json:"is_banned"`
	BanReason        string `json:"ban_reason"`
	LeftAt           int64  `json:"left_at"`
}

// UpsertPlayer creates or refreshes the row for an authenticated
// identity and returns the coordinator-facing profile.
func (s *Store) UpsertPlayer(ctx context.Context, identity, handle, avatar, lightningAddress string) (*auth.Profile, error) {
	now := time.Now().Unix()
	const query = `
		INSERT INTO players (identity, handle, avatar, lightning_address, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (identity) DO UPDATE
		SET handle = EXCLUDED.handle,
		    avatar = EXCLUDED.avatar,
		    lightning_address = EXCLUDED.lightning_address,
		    last_seen = EXCLUDED.last_seen
		RETURNING identity, handle, avatar, lightning_address, current_chips
	`

	var p auth.Profile
	err := s.pool.QueryRow(ctx, query, identity, handle, avatar, lightningAddress, now).Scan(
		&p.Identity, &p.Handle, &p.Avatar, &p.LightningAddress, &p.Chips,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}
	return &p, nil
}

func (s *Store) GetPlayer(ctx context.Context, identity string) (*PlayerRecord, error) {
	const query = `
		SELECT identity, handle, avatar, lightning_address, current_chips,
		       hands_played, hands_won, total_winnings, total_losses,
		       first_seen, last_seen, is_banned, ban_reason, left_at
		FROM players
		WHERE identity = $1
	`

	var p PlayerRecord
	err := s.pool.QueryRow(ctx, query, identity).Scan(
		&p.Identity, &p.Handle, &p.Avatar, &p.LightningAddress, &p.CurrentChips,
		&p.HandsPlayed, &p.HandsWon, &p.TotalWinnings, &p.TotalLosses,
		&p.FirstSeen, &p.LastSeen, &p.IsBanned, &p.BanReason, &p.LeftAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

func (s *Store) SetSessionToken(ctx context.Context, identity, token string, expiresAt int64) error {
	const query = `
		UPDATE players
		SET session_token = $2, session_expires = $3
		WHERE identity = $1
	`

	result, err := s.pool.Exec(ctx, query, identity, token, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set session token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (s *Store) GetPlayerBySessionToken(ctx context.Context, token string) (*auth.Profile, int64, error) {
	const query = `
		SELECT identity, handle, avatar, lightning_address, current_chips, session_expires
		FROM players
		WHERE session_token = $1
	`

	var p auth.Profile
	var expiresAt int64
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&p.Identity, &p.Handle, &p.Avatar, &p.LightningAddress, &p.Chips, &expiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrPlayerNotFound
		}
		return nil, 0, fmt.Errorf("failed to resolve session token: %w", err)
	}
	return &p, expiresAt, nil
}

// SetPlayerChips pins the persisted chip total; used on join, rebuy
// and leave.
func (s *Store) SetPlayerChips(ctx context.Context, identity string, chips int64) error {
	const query = `
		UPDATE players
		SET current_chips = $2, last_seen = $3
		WHERE identity = $1
	`

	result, err := s.pool.Exec(ctx, query, identity, chips, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set player chips: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// UpdatePlayerAfterHand applies one hand's result to the aggregate
// counters.
func (s *Store) UpdatePlayerAfterHand(ctx context.Context, identity string, chips int64, won bool, net int64) error {
	wonIncrement := int64(0)
	if won {
		wonIncrement = 1
	}
	winnings := int64(0)
	losses := int64(0)
	if net > 0 {
		winnings = net
	} else {
		losses = -net
	}

	const query = `
		UPDATE players
		SET current_chips = $2,
		    hands_played = hands_played + 1,
		    hands_won = hands_won + $3,
		    total_winnings = total_winnings + $4,
		    total_losses = total_losses + $5,
		    last_seen = $6
		WHERE identity = $1
	`

	result, err := s.pool.Exec(ctx, query, identity, chips, wonIncrement, winnings, losses, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to update player after hand: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// MarkPlayerLeft stamps the departure time used by the anti-ratholing
// window.
func (s *Store) MarkPlayerLeft(ctx context.Context, identity string) error {
	const query = `UPDATE players SET left_at = $2 WHERE identity = $1`

	if _, err := s.pool.Exec(ctx, query, identity, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to mark player left: %w", err)
	}
	return nil
}

// IsBanned reports whether an identity is banned.
func (s *Store) IsBanned(ctx context.Context, identity string) (bool, error) {
	const query = `SELECT is_banned FROM players WHERE identity = $1`

	var banned bool
	err := s.pool.QueryRow(ctx, query, identity).Scan(&banned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check ban: %w", err)
	}
	return banned, nil
}

// SetBanned bans or unbans an identity.
func (s *Store) SetBanned(ctx context.Context, identity string, banned bool, reason string) error {
	const query = `
		UPDATE players
		SET is_banned = $2, ban_reason = $3
		WHERE identity = $1
	`

	result, err := s.pool.Exec(ctx, query, identity, banned, reason)
	if err != nil {
		return fmt.Errorf("failed to set ban: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// CountPlayers returns the total player count for the admin stats.
func (s *Store) CountPlayers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM players`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}
