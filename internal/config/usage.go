package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/toolnest/toolnest/internal/model"
)

const usageColumns = `id, api_key_id, endpoint, method, status_code, outcome, latency_ms, ip_address, user_agent, created_at`

// UsageTotals is the running aggregate row for one API key.
type UsageTotals struct {
	APIKeyID           int64     `db:"api_key_id"`
	TotalRequests      int64     `db:"total_requests"`
	SuccessfulRequests int64     `db:"successful_requests"`
	FailedRequests     int64     `db:"failed_requests"`
	LatencySumMs       float64   `db:"latency_sum_ms"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type endpointCountRow struct {
	Endpoint     string `db:"endpoint"`
	RequestCount int64  `db:"request_count"`
}

// AppendUsage stores one usage record and folds it into the key's running
// aggregates in the same transaction.
func (s *Store) AppendUsage(ctx context.Context, rec *model.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var success, failure int64
	if rec.Succeeded() {
		success = 1
	} else {
		failure = 1
	}

	const insertQ = `INSERT INTO api_key_usage
		(api_key_id, endpoint, method, status_code, outcome, latency_ms, ip_address, user_agent, created_at)
		VALUES
		(:api_key_id, :endpoint, :method, :status_code, :outcome, :latency_ms, :ip_address, :user_agent, :created_at)`

	totalsQ := `INSERT INTO api_key_usage_totals
		(api_key_id, total_requests, successful_requests, failed_requests, latency_sum_ms, updated_at)
		VALUES (?, 1, ?, ?, ?, ?)` +
		s.dialect.upsertClause("api_key_usage_totals", []string{"api_key_id"}, []string{
			"total_requests = OLD(total_requests) + 1",
			"successful_requests = OLD(successful_requests) + NEW(successful_requests)",
			"failed_requests = OLD(failed_requests) + NEW(failed_requests)",
			"latency_sum_ms = OLD(latency_sum_ms) + NEW(latency_sum_ms)",
			"updated_at = NEW(updated_at)",
		})

	endpointQ := `INSERT INTO api_key_usage_endpoints
		(api_key_id, endpoint, request_count)
		VALUES (?, ?, 1)` +
		s.dialect.upsertClause("api_key_usage_endpoints", []string{"api_key_id", "endpoint"}, []string{
			"request_count = OLD(request_count) + 1",
		})

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := s.insert(ctx, tx, insertQ, rec)
		if err != nil {
			return fmt.Errorf("insert usage record: %w", err)
		}
		rec.ID = id

		if _, err := tx.ExecContext(ctx, tx.Rebind(totalsQ),
			rec.APIKeyID, success, failure, rec.LatencyMs, rec.CreatedAt); err != nil {
			return fmt.Errorf("update usage totals: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(endpointQ), rec.APIKeyID, rec.Endpoint); err != nil {
			return fmt.Errorf("update usage by endpoint: %w", err)
		}
		return nil
	})
}

// GetUsageTotals returns the running aggregate for a key. A key with no
// recorded usage yields zero totals, not ErrNotFound.
func (s *Store) GetUsageTotals(ctx context.Context, apiKeyID int64) (*UsageTotals, error) {
	var t UsageTotals
	q := s.db.Rebind(`SELECT api_key_id, total_requests, successful_requests, failed_requests, latency_sum_ms, updated_at
		FROM api_key_usage_totals WHERE api_key_id = ?`)
	if err := s.db.GetContext(ctx, &t, q, apiKeyID); err != nil {
		if notFound(err) {
			return &UsageTotals{APIKeyID: apiKeyID}, nil
		}
		return nil, fmt.Errorf("get usage totals: %w", err)
	}
	return &t, nil
}

// GetUsageByEndpoint returns the per-endpoint request counts for a key.
func (s *Store) GetUsageByEndpoint(ctx context.Context, apiKeyID int64) (map[string]int64, error) {
	var rows []endpointCountRow
	q := s.db.Rebind("SELECT endpoint, request_count FROM api_key_usage_endpoints WHERE api_key_id = ?")
	if err := s.db.SelectContext(ctx, &rows, q, apiKeyID); err != nil {
		return nil, fmt.Errorf("get usage by endpoint: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Endpoint] = r.RequestCount
	}
	return out, nil
}

// ListRecentUsage returns the most recent usage records for a key, newest first.
func (s *Store) ListRecentUsage(ctx context.Context, apiKeyID int64, limit int) ([]model.UsageRecord, error) {
	records := []model.UsageRecord{}
	q := s.db.Rebind("SELECT " + usageColumns + " FROM api_key_usage WHERE api_key_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &records, q, apiKeyID, limit); err != nil {
		return nil, fmt.Errorf("list recent usage: %w", err)
	}
	return records, nil
}
