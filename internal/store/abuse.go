package store

import (
	"context"
	"fmt"
	"time"
)

// RecordAbuse appends one row to the abuse log.
func (s *Store) RecordAbuse(ctx context.Context, identity, ip, action string) error {
	const query = `
		INSERT INTO abuse_log (identity, ip, action, timestamp)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.pool.Exec(ctx, query, identity, ip, action, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to record abuse: %w", err)
	}
	return nil
}
