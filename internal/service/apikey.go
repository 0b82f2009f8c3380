package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/metrics"
	"github.com/toolnest/toolnest/internal/model"
)

const (
	// KeyScheme starts every raw API key.
	KeyScheme = "tn_"
	// KeySecretBytes is the entropy of a key before encoding.
	KeySecretBytes = 32
	// KeyPrefixLen is how many leading characters are kept in clear.
	KeyPrefixLen = 12

	maxKeyNameLen = 100
)

// KeyStore is the subset of the credential store the key manager needs.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error)
	ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID int64, includeRevoked bool) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id, userID int64, at time.Time) error
	UpdateAPIKeyLastUsed(ctx context.Context, id int64, at time.Time) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// KeyManager creates, authenticates and revokes API keys.
type KeyManager struct {
	store   KeyStore
	usage   *UsageRecorder
	logger  *slog.Logger
	entropy io.Reader
	now     func() time.Time

	touchTimeout time.Duration
	touches      sync.WaitGroup
}

// KeyManagerOption configures a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithEntropy replaces crypto/rand as the source of key material.
func WithEntropy(r io.Reader) KeyManagerOption {
	return func(m *KeyManager) { m.entropy = r }
}

// WithKeyClock overrides the time source for timestamps.
func WithKeyClock(now func() time.Time) KeyManagerOption {
	return func(m *KeyManager) { m.now = now }
}

// NewKeyManager creates a key manager. usage may be nil when usage
// statistics are not served.
func NewKeyManager(store KeyStore, usage *UsageRecorder, logger *slog.Logger, opts ...KeyManagerOption) *KeyManager {
	m := &KeyManager{
		store:        store,
		usage:        usage,
		logger:       logger,
		entropy:      rand.Reader,
		now:          time.Now,
		touchTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create generates a key for ownerID. The returned secret is the only copy.
func (m *KeyManager) Create(ctx context.Context, ownerID int64, name string) (*model.CreatedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	if utf8.RuneCountInString(name) > maxKeyNameLen {
		return nil, ValidationError("name must be at most %d characters", maxKeyNameLen)
	}

	secret, err := m.generateSecret()
	if err != nil {
		return nil, err
	}

	key := model.APIKey{
		UserID:    ownerID,
		Name:      name,
		KeyHash:   config.HashAPIKey(secret),
		KeyPrefix: secret[:KeyPrefixLen],
		Status:    model.KeyStatusActive,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.CreateAPIKey(ctx, &key); err != nil {
		return nil, storageError("create api key", err)
	}

	metrics.APIKeysCreatedTotal.Inc()
	m.logger.Info("api key created", "key_id", key.ID, "user_id", ownerID, "prefix", key.KeyPrefix)
	return &model.CreatedAPIKey{Key: key, Secret: secret}, nil
}

func (m *KeyManager) generateSecret() (string, error) {
	buf := make([]byte, KeySecretBytes)
	if _, err := io.ReadFull(m.entropy, buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyScheme + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Authenticate resolves a presented raw key to its record. The prefix only
// narrows the candidates; a match requires the full hash to be equal.
func (m *KeyManager) Authenticate(ctx context.Context, presented string) (*model.APIKey, error) {
	if !strings.HasPrefix(presented, KeyScheme) || len(presented) <= KeyPrefixLen {
		return nil, ErrKeyNotFound
	}

	candidates, err := m.store.ListAPIKeysByPrefix(ctx, presented[:KeyPrefixLen])
	if err != nil {
		return nil, storageError("look up api key", err)
	}

	hash := []byte(config.HashAPIKey(presented))
	var match *model.APIKey
	for i := range candidates {
		// Compare every candidate so timing does not reveal the position.
		if subtle.ConstantTimeCompare([]byte(candidates[i].KeyHash), hash) == 1 {
			match = &candidates[i]
		}
	}
	if match == nil {
		return nil, ErrKeyNotFound
	}
	if match.IsRevoked() {
		return nil, ErrKeyRevoked
	}

	owner, err := m.store.GetUser(ctx, match.UserID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, storageError("look up api key owner", err)
	}
	if !owner.IsActive {
		return nil, ErrInactiveUser
	}

	m.touch(match.ID)
	return match, nil
}

// touch records last use without holding up the request.
func (m *KeyManager) touch(keyID int64) {
	at := m.now().UTC()
	m.touches.Add(1)
	go func() {
		defer m.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.touchTimeout)
		defer cancel()
		if err := m.store.UpdateAPIKeyLastUsed(ctx, keyID, at); err != nil {
			m.logger.Warn("failed to update api key last used", "key_id", keyID, "error", err)
		}
	}()
}

// Wait blocks until pending last-used updates have finished.
func (m *KeyManager) Wait() {
	m.touches.Wait()
}

// ownedKey loads keyID and checks it belongs to ownerID.
func (m *KeyManager) ownedKey(ctx context.Context, keyID, ownerID int64) (*model.APIKey, error) {
	key, err := m.store.GetAPIKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, storageError("get api key", err)
	}
	if key.UserID != ownerID {
		return nil, ErrNotOwner
	}
	return key, nil
}

// Revoke permanently disables a key owned by ownerID.
func (m *KeyManager) Revoke(ctx context.Context, keyID, ownerID int64) (*model.APIKey, error) {
	key, err := m.ownedKey(ctx, keyID, ownerID)
	if err != nil {
		return nil, err
	}
	if key.IsRevoked() {
		return nil, ErrAlreadyRevoked
	}

	at := m.now().UTC()
	if err := m.store.RevokeAPIKey(ctx, keyID, ownerID, at); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			// Lost a race with a concurrent revoke.
			return nil, ErrAlreadyRevoked
		}
		return nil, storageError("revoke api key", err)
	}

	key.Status = model.KeyStatusRevoked
	key.RevokedAt = &at
	metrics.APIKeysRevokedTotal.Inc()
	m.logger.Info("api key revoked", "key_id", keyID, "user_id", ownerID)
	return key, nil
}

// List returns ownerID's keys, newest first. Secrets are never included.
func (m *KeyManager) List(ctx context.Context, ownerID int64, includeRevoked bool) ([]model.APIKey, error) {
	keys, err := m.store.ListAPIKeysByUser(ctx, ownerID, includeRevoked)
	if err != nil {
		return nil, storageError("list api keys", err)
	}
	return keys, nil
}

// Usage returns aggregated statistics for a key owned by ownerID.
func (m *KeyManager) Usage(ctx context.Context, keyID, ownerID int64) (*model.UsageStats, error) {
	if _, err := m.ownedKey(ctx, keyID, ownerID); err != nil {
		return nil, err
	}
	if m.usage == nil {
		return nil, errors.New("usage statistics are not available")
	}
	return m.usage.Aggregate(ctx, keyID)
}
