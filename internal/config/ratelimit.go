package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type windowRow struct {
	WindowStart int64 `db:"window_start"`
	Hits        int   `db:"hits"`
}

// IncrWindow counts one hit against a fixed window stored in the database.
// The window opens at the first hit and is replaced by a fresh one once
// window has elapsed. It returns the count so far and the window start.
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	nowNs := now.UnixNano()
	expiredBefore := now.Add(-window).UnixNano()

	// Assignments keep this order: MySQL evaluates them left to right and
	// hits must still see the old window_start.
	upsertQ := `INSERT INTO rate_limit_windows (bucket, window_start, hits) VALUES (?, ?, 1)` +
		s.dialect.upsertClause("rate_limit_windows", []string{"bucket"}, []string{
			"hits = CASE WHEN OLD(window_start) <= ? THEN 1 ELSE OLD(hits) + 1 END",
			"window_start = CASE WHEN OLD(window_start) <= ? THEN NEW(window_start) ELSE OLD(window_start) END",
		})

	var row windowRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(upsertQ), key, nowNs, expiredBefore, expiredBefore); err != nil {
			return fmt.Errorf("upsert rate limit window: %w", err)
		}
		if err := tx.GetContext(ctx, &row,
			tx.Rebind("SELECT window_start, hits FROM rate_limit_windows WHERE bucket = ?"), key); err != nil {
			return fmt.Errorf("read rate limit window: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return row.Hits, time.Unix(0, row.WindowStart), nil
}

// DeleteExpiredWindows removes windows that started before cutoff.
func (s *Store) DeleteExpiredWindows(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM rate_limit_windows WHERE window_start < ?"), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit windows: %w", err)
	}
	return result.RowsAffected()
}
