package config

import (
	"context"
	"fmt"
	"time"

	"github.com/toolnest/toolnest/internal/model"
)

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, status, created_at, last_used_at, revoked_at`

// CreateAPIKey inserts a new API key record. KeyHash must already be set
// (use HashAPIKey). ID and CreatedAt are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if key.Status == "" {
		key.Status = model.KeyStatusActive
	}

	const q = `INSERT INTO api_keys
		(user_id, name, key_hash, key_prefix, status, created_at)
		VALUES
		(:user_id, :name, :key_hash, :key_prefix, :status, :created_at)`

	id, err := s.insert(ctx, s.db, q, key)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKey returns an API key by id regardless of owner or status.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT " + apiKeyColumns + " FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &key, q, id); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeysByPrefix returns every key, active or revoked, whose clear-text
// prefix equals prefix. More than one row is possible.
func (s *Store) ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	var keys []model.APIKey
	q := s.db.Rebind("SELECT " + apiKeyColumns + " FROM api_keys WHERE key_prefix = ?")
	if err := s.db.SelectContext(ctx, &keys, q, prefix); err != nil {
		return nil, fmt.Errorf("list api keys by prefix: %w", err)
	}
	return keys, nil
}

// ListAPIKeysByUser returns a user's keys, newest first.
func (s *Store) ListAPIKeysByUser(ctx context.Context, userID int64, includeRevoked bool) ([]model.APIKey, error) {
	q := "SELECT " + apiKeyColumns + " FROM api_keys WHERE user_id = ?"
	args := []interface{}{userID}
	if !includeRevoked {
		q += " AND status = ?"
		args = append(args, model.KeyStatusActive)
	}
	q += " ORDER BY created_at DESC, id DESC"

	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey moves an active key owned by userID to revoked. It returns
// ErrNotFound when no active key with that id and owner exists, so callers
// must inspect the row to tell the cases apart.
func (s *Store) RevokeAPIKey(ctx context.Context, id, userID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET status = ?, revoked_at = ? WHERE id = ? AND user_id = ? AND status = ?"),
		model.KeyStatusRevoked, at.UTC(), id, userID, model.KeyStatusActive)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used_at timestamp for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?"), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
