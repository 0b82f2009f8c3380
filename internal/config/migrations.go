package config

import (
	"context"
	"fmt"
	"strings"
)

// migrations are written with type placeholders expanded per dialect by
// Dialect.ddl. Index statements are tolerated when they already exist.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		username VARCHAR(50) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active {{bool}} NOT NULL,
		created_at {{ts}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id {{pk}},
		user_id {{ref}} NOT NULL REFERENCES users(id),
		name VARCHAR(100) NOT NULL,
		key_hash VARCHAR(64) NOT NULL UNIQUE,
		key_prefix VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at {{ts}} NOT NULL,
		last_used_at {{ts}} NULL,
		revoked_at {{ts}} NULL
	)`,

	`CREATE INDEX idx_api_keys_prefix ON api_keys(key_prefix)`,
	`CREATE INDEX idx_api_keys_user ON api_keys(user_id)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage (
		id {{pk}},
		api_key_id {{ref}} NOT NULL REFERENCES api_keys(id),
		endpoint VARCHAR(255) NOT NULL,
		method VARCHAR(16) NOT NULL,
		status_code {{int}} NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		latency_ms {{float}} NOT NULL,
		ip_address VARCHAR(64) NOT NULL,
		user_agent VARCHAR(512) NOT NULL,
		created_at {{ts}} NOT NULL
	)`,

	`CREATE INDEX idx_api_key_usage_key_created ON api_key_usage(api_key_id, created_at)`,

	// Running aggregates maintained on append so stats never re-scan history.
	`CREATE TABLE IF NOT EXISTS api_key_usage_totals (
		api_key_id {{ref}} NOT NULL PRIMARY KEY,
		total_requests {{int}} NOT NULL,
		successful_requests {{int}} NOT NULL,
		failed_requests {{int}} NOT NULL,
		latency_sum_ms {{float}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage_endpoints (
		api_key_id {{ref}} NOT NULL,
		endpoint VARCHAR(255) NOT NULL,
		request_count {{int}} NOT NULL,
		PRIMARY KEY (api_key_id, endpoint)
	)`,

	// Shared fixed-window counters for multi-instance rate limiting.
	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		bucket VARCHAR(255) NOT NULL PRIMARY KEY,
		window_start {{int}} NOT NULL,
		hits {{int}} NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		stmt := s.dialect.ddl(m)
		if strings.HasPrefix(stmt, "CREATE INDEX") && s.dialect != DialectMySQL {
			stmt = "CREATE INDEX IF NOT EXISTS" + strings.TrimPrefix(stmt, "CREATE INDEX")
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; an existing index is a no-op.
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
