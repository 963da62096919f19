package store

import (
	"context"
	"fmt"
)

// Migrate creates the schema. Statements are idempotent so a restart
// against an existing database is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS players (
		identity         TEXT PRIMARY KEY,
		handle           TEXT NOT NULL DEFAULT '',
		avatar           TEXT NOT NULL DEFAULT '',
		lightning_address TEXT NOT NULL DEFAULT '',
		current_chips    BIGINT NOT NULL DEFAULT 0,
		hands_played     BIGINT NOT NULL DEFAULT 0,
		hands_won        BIGINT NOT NULL DEFAULT 0,
		total_winnings   BIGINT NOT NULL DEFAULT 0,
		total_losses     BIGINT NOT NULL DEFAULT 0,
		first_seen       BIGINT NOT NULL DEFAULT 0,
		last_seen        BIGINT NOT NULL DEFAULT 0,
		is_banned        BOOLEAN NOT NULL DEFAULT FALSE,
		ban_reason       TEXT NOT NULL DEFAULT '',
		left_at          BIGINT NOT NULL DEFAULT 0,
		session_token    TEXT NOT NULL DEFAULT '',
		session_expires  BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_players_session_token ON players (session_token)`,

	`CREATE TABLE IF NOT EXISTS hands (
		hand_id          TEXT PRIMARY KEY,
		table_id         TEXT NOT NULL,
		started_at       BIGINT NOT NULL,
		completed_at     BIGINT NOT NULL,
		sb               BIGINT NOT NULL,
		bb               BIGINT NOT NULL,
		button_seat      INT NOT NULL,
		pot_total        BIGINT NOT NULL,
		community_cards  TEXT NOT NULL,
		hand_history     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hands_table_started ON hands (table_id, started_at)`,

	`CREATE TABLE IF NOT EXISTS hand_players (
		hand_id          TEXT NOT NULL REFERENCES hands (hand_id),
		identity         TEXT NOT NULL,
		handle           TEXT NOT NULL,
		seat_index       INT NOT NULL,
		starting_stack   BIGINT NOT NULL,
		ending_stack     BIGINT NOT NULL,
		total_committed  BIGINT NOT NULL,
		hole_cards       TEXT NOT NULL,
		final_hand       TEXT NOT NULL,
		position         TEXT NOT NULL,
		actions          TEXT NOT NULL,
		won_amount       BIGINT NOT NULL,
		PRIMARY KEY (hand_id, identity)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hand_players_identity ON hand_players (identity)`,

	`CREATE TABLE IF NOT EXISTS ip_bans (
		ip        TEXT PRIMARY KEY,
		reason    TEXT NOT NULL DEFAULT '',
		banned_by TEXT NOT NULL DEFAULT '',
		banned_at BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS challenges (
		challenge_id TEXT PRIMARY KEY,
		nonce        TEXT NOT NULL,
		expires_at   BIGINT NOT NULL,
		used         BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS abuse_log (
		id        BIGSERIAL PRIMARY KEY,
		identity  TEXT NOT NULL DEFAULT '',
		ip        TEXT NOT NULL DEFAULT '',
		action    TEXT NOT NULL,
		timestamp BIGINT NOT NULL
	)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
