package ratelimit

import (
	"context"
	"time"

	"github.com/toolnest/toolnest/internal/config"
)

// SQLStore keeps windows in the relational store so several instances
// share one set of counters.
type SQLStore struct {
	store     *config.Store
	retention time.Duration
}

// NewSQLStore wraps store. Windows older than retention are removed by
// Sweep; it should be at least the longest configured window.
func NewSQLStore(store *config.Store, retention time.Duration) *SQLStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &SQLStore{store: store, retention: retention}
}

// Incr implements CounterStore.
func (s *SQLStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	return s.store.IncrWindow(ctx, key, window, now)
}

// Sweep deletes windows that started more than retention ago.
func (s *SQLStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpiredWindows(ctx, now.Add(-s.retention))
}
