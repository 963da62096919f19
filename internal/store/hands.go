package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/evenkeel/SatoshiStacks/internal/table"
)

var ErrHandNotFound = errors.New("store: hand not found")

// SaveHand archives a completed hand and its per-participant rows in
// one transaction.
func (s *Store) SaveHand(ctx context.Context, record *table.HandRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin hand archive: %w", err)
	}
	defer tx.Rollback(ctx)

	const handQuery = `
		INSERT INTO hands (hand_id, table_id, started_at, completed_at, sb, bb,
		                   button_seat, pot_total, community_cards, hand_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, handQuery,
		record.HandID, record.TableID, record.StartedAt, record.CompletedAt,
		record.SmallBlind, record.BigBlind, record.ButtonSeat, record.PotTotal,
		strings.Join(record.Community, " "), record.HandHistory,
	)
	if err != nil {
		return fmt.Errorf("failed to insert hand: %w", err)
	}

	const playerQuery = `
		INSERT INTO hand_players (hand_id, identity, handle, seat_index, starting_stack,
		                          ending_stack, total_committed, hole_cards, final_hand,
		                          position, actions, won_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, row := range record.Players {
		actions, err := json.Marshal(row.Actions)
		if err != nil {
			return fmt.Errorf("failed to encode actions: %w", err)
		}
		_, err = tx.Exec(ctx, playerQuery,
			record.HandID, row.Identity, row.Handle, row.SeatIndex, row.StartingStack,
			row.EndingStack, row.TotalCommitted, strings.Join(row.HoleCards, " "),
			row.FinalHand, row.Position, string(actions), row.WonAmount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert hand player: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// StoredHand is the admin-facing archive row.
type StoredHand struct {
	HandID      string `json:"hand_id"`
	TableID     string `json:"table_id"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at"`
	SmallBlind  int64  `json:"sb"`
	BigBlind    int64  `json:"bb"`
	ButtonSeat  int    `json:"button_seat"`
	PotTotal    int64  `json:"pot_total"`
	Community   string `json:"community_cards"`
	HandHistory string `json:"hand_history"`
}

func (s *Store) GetHand(ctx context.Context, handID string) (*StoredHand, error) {
	const query = `
		SELECT hand_id, table_id, started_at, completed_at, sb, bb,
		       button_seat, pot_total, community_cards, hand_history
		FROM hands
		WHERE hand_id = $1
	`

	var h StoredHand
	err := s.pool.QueryRow(ctx, query, handID).Scan(
		&h.HandID, &h.TableID, &h.StartedAt, &h.CompletedAt, &h.SmallBlind,
		&h.BigBlind, &h.ButtonSeat, &h.PotTotal, &h.Community, &h.HandHistory,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHandNotFound
		}
		return nil, fmt.Errorf("failed to get hand: %w", err)
	}
	return &h, nil
}

// ListHandsByIdentity returns hand summaries a player participated in,
// newest first.
func (s *Store) ListHandsByIdentity(ctx context.Context, identity string, limit int) ([]*StoredHand, error) {
	const query = `
		SELECT h.hand_id, h.table_id, h.started_at, h.completed_at, h.sb, h.bb,
		       h.button_seat, h.pot_total, h.community_cards, h.hand_history
		FROM hands h
		JOIN hand_players hp ON hp.hand_id = h.hand_id
		WHERE hp.identity = $1
		ORDER BY h.started_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list hands: %w", err)
	}
	defer rows.Close()

	var hands []*StoredHand
	for rows.Next() {
		var h StoredHand
		err := rows.Scan(
			&h.HandID, &h.TableID, &h.StartedAt, &h.CompletedAt, &h.SmallBlind,
			&h.BigBlind, &h.ButtonSeat, &h.PotTotal, &h.Community, &h.HandHistory,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hand: %w", err)
		}
		hands = append(hands, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hands: %w", err)
	}
	return hands, nil
}

func (s *Store) CountHands(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hands`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count hands: %w", err)
	}
	return count, nil
}
