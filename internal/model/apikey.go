package model

import "time"

// Key lifecycle states. A key only ever moves from active to revoked.
const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
)

// APIKey is a long-lived credential owned by one user. The raw secret is
// never stored; only a SHA-256 hash and a short clear-text prefix used to
// narrow lookups are persisted.
type APIKey struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	KeyHash    string     `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"` // lookup hint only
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// IsRevoked reports whether the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.Status == KeyStatusRevoked
}

// CreatedAPIKey is the result of creating a key. Secret is the only copy of
// the raw key and cannot be derived from Key afterwards.
type CreatedAPIKey struct {
	Key    APIKey
	Secret string
}
