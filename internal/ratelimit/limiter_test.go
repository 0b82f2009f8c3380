package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolnest/toolnest/internal/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := config.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewSQLStore(store, time.Hour)
}

// Both stores must behave identically.
func counterStores(t *testing.T) map[string]CounterStore {
	return map[string]CounterStore{
		"memory": NewMemoryStore(),
		"sql":    newSQLStore(t),
	}
}

func TestFixedWindow(t *testing.T) {
	rule := Rule{Limit: 5, Window: 60 * time.Second}

	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			l := New(store, WithClock(clock.Now))
			ctx := context.Background()

			for i := 1; i <= 5; i++ {
				d, err := l.Check(ctx, "10.0.0.1", "/summarize", rule)
				require.NoError(t, err)
				assert.True(t, d.Allowed, "call %d should be allowed", i)
				assert.Equal(t, 5-i, d.Remaining)
				clock.Advance(time.Second)
			}

			d, err := l.Check(ctx, "10.0.0.1", "/summarize", rule)
			require.NoError(t, err)
			assert.False(t, d.Allowed, "6th call in the window must be rejected")
			assert.Equal(t, 6, d.Count)
			assert.Equal(t, 0, d.Remaining)
			assert.Equal(t, 55*time.Second, d.RetryAfter)

			// Still inside the window.
			clock.Advance(54 * time.Second)
			d, err = l.Check(ctx, "10.0.0.1", "/summarize", rule)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, time.Second, d.RetryAfter)

			// Exactly at window end a fresh window opens.
			clock.Advance(time.Second)
			d, err = l.Check(ctx, "10.0.0.1", "/summarize", rule)
			require.NoError(t, err)
			assert.True(t, d.Allowed, "first call after rollover must be allowed")
			assert.Equal(t, 1, d.Count)
			assert.WithinDuration(t, clock.Now().Add(60*time.Second), d.ResetAt, 0)
		})
	}
}

func TestKeysAreIndependent(t *testing.T) {
	rule := Rule{Limit: 1, Window: time.Minute}

	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			l := New(store)
			ctx := context.Background()

			d, _ := l.Check(ctx, "a", "/x", rule)
			assert.True(t, d.Allowed)
			d, _ = l.Check(ctx, "a", "/x", rule)
			assert.False(t, d.Allowed)

			d, _ = l.Check(ctx, "a", "/y", rule)
			assert.True(t, d.Allowed, "other endpoint has its own window")
			d, _ = l.Check(ctx, "b", "/x", rule)
			assert.True(t, d.Allowed, "other identity has its own window")
		})
	}
}

func TestConcurrentChecksDoNotUndercount(t *testing.T) {
	const (
		workers = 20
		calls   = 25
		limit   = 100
	)
	rule := Rule{Limit: limit, Window: time.Hour}

	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			l := New(store)
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				allowed int
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < calls; i++ {
						d, err := l.Check(context.Background(), "1.2.3.4", "/p", rule)
						if err != nil {
							t.Error(err)
							return
						}
						if d.Allowed {
							mu.Lock()
							allowed++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, limit, allowed)
		})
	}
}

func TestDisabledRule(t *testing.T) {
	l := New(NewMemoryStore())
	for i := 0; i < 100; i++ {
		d, err := l.Check(context.Background(), "x", "/y", Rule{})
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

type brokenStore struct{}

func (brokenStore) Incr(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("database is locked")
}

func TestStoreErrorFailsOpen(t *testing.T) {
	l := New(brokenStore{})
	d, err := l.Check(context.Background(), "x", "/y", Rule{Limit: 1, Window: time.Minute})
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStoreSweep(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	m.Incr(ctx, "short", time.Second, now)
	m.Incr(ctx, "long", time.Hour, now)
	require.Equal(t, 2, m.Len())

	n, err := m.Sweep(ctx, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, m.Len())
}

func TestSQLStoreSweep(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	now := time.Now()

	_, _, err := s.Incr(ctx, "old", time.Minute, now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, _, err = s.Incr(ctx, "fresh", time.Minute, now)
	require.NoError(t, err)

	n, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	m := NewMemoryStore()
	m.Incr(context.Background(), "k", time.Nanosecond, time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, m, 5*time.Millisecond, testLogger())
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
