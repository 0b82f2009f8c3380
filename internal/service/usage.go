package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/metrics"
	"github.com/toolnest/toolnest/internal/model"
)

// UsageStore persists usage records and serves their running aggregates.
type UsageStore interface {
	AppendUsage(ctx context.Context, rec *model.UsageRecord) error
	GetUsageTotals(ctx context.Context, apiKeyID int64) (*config.UsageTotals, error)
	GetUsageByEndpoint(ctx context.Context, apiKeyID int64) (map[string]int64, error)
	ListRecentUsage(ctx context.Context, apiKeyID int64, limit int) ([]model.UsageRecord, error)
}

// UsageRecorderConfig tunes the recorder's queue.
type UsageRecorderConfig struct {
	BufferSize   int
	RecentLimit  int
	WriteTimeout time.Duration
}

type usageItem struct {
	rec     model.UsageRecord
	flushed chan struct{} // set only on flush markers
}

// UsageRecorder appends usage records off the request path. Recording never
// blocks and never fails the caller: a full queue drops the record and a
// store failure is logged and counted.
type UsageRecorder struct {
	store  UsageStore
	logger *slog.Logger
	cfg    UsageRecorderConfig

	mu     sync.RWMutex
	closed bool
	queue  chan usageItem
	done   chan struct{}
}

// NewUsageRecorder starts the background writer.
func NewUsageRecorder(store UsageStore, logger *slog.Logger, cfg UsageRecorderConfig) *UsageRecorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	r := &UsageRecorder{
		store:  store,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan usageItem, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// OutcomeFor classifies a finished call. Any status of 400 or above, or a
// failed upstream call, counts as a failure.
func OutcomeFor(status int, upstreamErr error) string {
	if status >= 400 || upstreamErr != nil {
		return model.OutcomeFailure
	}
	return model.OutcomeSuccess
}

// Record enqueues rec for persistence and returns immediately.
func (r *UsageRecorder) Record(rec model.UsageRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeFor(rec.StatusCode, nil)
	}
	rec.UserAgent = truncate(rec.UserAgent, 512)
	rec.IPAddress = truncate(rec.IPAddress, 64)
	rec.Endpoint = truncate(rec.Endpoint, 255)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Debug("usage recorder closed, dropping record", "api_key_id", rec.APIKeyID)
		metrics.UsageRecordsTotal.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case r.queue <- usageItem{rec: rec}:
	default:
		r.logger.Warn("usage queue full, dropping record",
			"api_key_id", rec.APIKeyID,
			"endpoint", rec.Endpoint,
		)
		metrics.UsageRecordsTotal.WithLabelValues("dropped").Inc()
	}
}

// Flush blocks until every record enqueued before the call is persisted.
func (r *UsageRecorder) Flush(ctx context.Context) error {
	marker := usageItem{flushed: make(chan struct{})}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- marker:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the queue to drain.
func (r *UsageRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *UsageRecorder) run() {
	defer close(r.done)
	for item := range r.queue {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		r.write(item.rec)
	}
}

func (r *UsageRecorder) write(rec model.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.store.AppendUsage(ctx, &rec); err != nil {
		r.logger.Warn("failed to record api key usage",
			"api_key_id", rec.APIKeyID,
			"endpoint", rec.Endpoint,
			"error", err,
		)
		metrics.UsageRecordsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.UsageRecordsTotal.WithLabelValues("stored").Inc()
}

// Aggregate returns the statistics of one key from its running aggregates
// plus the most recent records.
func (r *UsageRecorder) Aggregate(ctx context.Context, apiKeyID int64) (*model.UsageStats, error) {
	totals, err := r.store.GetUsageTotals(ctx, apiKeyID)
	if err != nil {
		return nil, storageError("load usage totals", err)
	}
	byEndpoint, err := r.store.GetUsageByEndpoint(ctx, apiKeyID)
	if err != nil {
		return nil, storageError("load usage by endpoint", err)
	}
	recent, err := r.store.ListRecentUsage(ctx, apiKeyID, r.cfg.RecentLimit)
	if err != nil {
		return nil, storageError("load recent usage", err)
	}

	stats := &model.UsageStats{
		APIKeyID:           apiKeyID,
		TotalRequests:      totals.TotalRequests,
		SuccessfulRequests: totals.SuccessfulRequests,
		FailedRequests:     totals.FailedRequests,
		UsageByEndpoint:    byEndpoint,
		RecentUsage:        recent,
	}
	if totals.TotalRequests > 0 {
		stats.AverageLatencyMs = totals.LatencySumMs / float64(totals.TotalRequests)
	}
	return stats, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
