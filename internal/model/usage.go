package model

import "time"

// Usage outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// UsageRecord is one authenticated call made with an API key. Records are
// append-only.
type UsageRecord struct {
	ID         int64     `json:"id" db:"id"`
	APIKeyID   int64     `json:"api_key_id" db:"api_key_id"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	Method     string    `json:"method" db:"method"`
	StatusCode int       `json:"status_code" db:"status_code"`
	Outcome    string    `json:"outcome" db:"outcome"`
	LatencyMs  float64   `json:"latency_ms" db:"latency_ms"`
	IPAddress  string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Succeeded reports whether the record counts as a successful call.
func (r *UsageRecord) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// UsageStats aggregates the usage history of a single API key.
type UsageStats struct {
	APIKeyID           int64            `json:"api_key_id"`
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	AverageLatencyMs   float64          `json:"average_latency_ms"`
	UsageByEndpoint    map[string]int64 `json:"usage_by_endpoint"`
	RecentUsage        []UsageRecord    `json:"recent_usage"`
}
