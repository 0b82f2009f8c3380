package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	start  time.Time
	window time.Duration
	count  int
}

func (w *memoryWindow) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.window))
}

// MemoryStore keeps windows in process memory. Counters are lost on
// restart and are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memoryWindow)}
}

// Incr implements CounterStore.
func (m *MemoryStore) Incr(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || w.expired(now) {
		w = &memoryWindow{start: now, window: window}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.start, nil
}

// Len returns the number of tracked windows.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Sweep drops every window that has expired at now.
func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, w := range m.windows {
		if w.expired(now) {
			delete(m.windows, key)
			n++
		}
	}
	return n, nil
}
