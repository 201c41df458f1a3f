package store

import (
	"context"
	"fmt"
)

// IncrementSequence atomically advances a series counter and returns the new value.
// The row is created on first use.
func (s *Store) IncrementSequence(ctx context.Context, series string) (int64, error) {
	var value int64
	err := s.db.GetContext(ctx, &value,
		`INSERT INTO sequences (series, value) VALUES ($1, 1)
		 ON CONFLICT (series) DO UPDATE SET value = sequences.value + 1, updated_at = NOW()
		 RETURNING value`, series)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence %s: %w", series, err)
	}
	return value, nil
}

// SyncSequence raises a series counter to at least floor. It never lowers it.
func (s *Store) SyncSequence(ctx context.Context, series string, floor int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sequences (series, value) VALUES ($1, $2)
		 ON CONFLICT (series) DO UPDATE SET value = GREATEST(sequences.value, EXCLUDED.value), updated_at = NOW()`,
		series, floor)
	if err != nil {
		return fmt.Errorf("failed to sync sequence %s: %w", series, err)
	}
	return nil
}
