package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/model"
)

func TestCreateAPIKeyReturnsSecretOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	created, err := env.keys.Create(ctx, alice.ID, "k1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(created.Secret, KeyScheme) {
		t.Errorf("secret %q lacks scheme", created.Secret)
	}
	if created.Key.KeyPrefix != created.Secret[:KeyPrefixLen] {
		t.Errorf("prefix %q does not match secret", created.Key.KeyPrefix)
	}
	if created.Key.KeyHash != config.HashAPIKey(created.Secret) {
		t.Error("stored hash is not the hash of the secret")
	}
	if created.Key.Status != model.KeyStatusActive {
		t.Errorf("status = %q", created.Key.Status)
	}

	// Nothing read back from the store carries the secret.
	keys, err := env.keys.List(ctx, alice.ID, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	if strings.Contains(keys[0].KeyHash+keys[0].Name, created.Secret) {
		t.Error("listed key exposes the secret")
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	for _, name := range []string{"", "   ", strings.Repeat("x", 101)} {
		_, err := env.keys.Create(context.Background(), alice.ID, name)
		if KindOf(err) != KindValidation {
			t.Errorf("Create(%q) kind = %v, want validation", name, KindOf(err))
		}
	}
}

func TestAuthenticateUntilRevoked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	created, err := env.keys.Create(ctx, alice.ID, "k1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		key, err := env.keys.Authenticate(ctx, created.Secret)
		if err != nil {
			t.Fatalf("Authenticate #%d: %v", i, err)
		}
		if key.ID != created.Key.ID {
			t.Errorf("authenticated key %d, want %d", key.ID, created.Key.ID)
		}
	}

	revoked, err := env.keys.Revoke(ctx, created.Key.ID, alice.ID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !revoked.IsRevoked() || revoked.RevokedAt == nil {
		t.Errorf("revoked key = %+v", revoked)
	}

	if _, err := env.keys.Authenticate(ctx, created.Secret); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Authenticate after revoke = %v, want ErrKeyRevoked", err)
	}
}

func TestAuthenticateUpdatesLastUsed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	created, _ := env.keys.Create(ctx, alice.ID, "k1")

	if _, err := env.keys.Authenticate(ctx, created.Secret); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	env.keys.Wait()

	key, err := env.store.GetAPIKey(ctx, created.Key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key.LastUsedAt == nil {
		t.Error("expected last_used_at to be set after authentication")
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	env := newTestEnv(t)
	for _, presented := range []string{"", "short", "no-scheme-but-long-enough", "tn_AAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := env.keys.Authenticate(context.Background(), presented); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Authenticate(%q) = %v, want ErrKeyNotFound", presented, err)
		}
	}
}

func TestAuthenticateInactiveOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	created, _ := env.keys.Create(ctx, alice.ID, "k1")

	if err := env.store.SetUserActive(ctx, alice.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if _, err := env.keys.Authenticate(ctx, created.Secret); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("Authenticate = %v, want ErrInactiveUser", err)
	}
}

func TestCreatedKeyHashesDistinct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	const n = 200
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		created, err := env.keys.Create(ctx, alice.ID, "bulk")
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		if seen[created.Key.KeyHash] {
			t.Fatalf("duplicate hash after %d keys", i)
		}
		seen[created.Key.KeyHash] = true
	}
}

// collidingEntropy hands out 32-byte blocks that share their first 16 bytes,
// so every generated key gets the same clear-text prefix.
type collidingEntropy struct {
	mu sync.Mutex
	n  byte
}

func (c *collidingEntropy) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	block := append(bytes.Repeat([]byte{0xAB}, 16), bytes.Repeat([]byte{c.n}, 16)...)
	return copy(p, block), nil
}

func TestPrefixCollisionAuthenticatesOwnSecretOnly(t *testing.T) {
	env := newTestEnv(t, WithEntropy(&collidingEntropy{}))
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	a, err := env.keys.Create(ctx, alice.ID, "a")
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b, err := env.keys.Create(ctx, bob.ID, "b")
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if a.Key.KeyPrefix != b.Key.KeyPrefix {
		t.Fatalf("prefixes differ (%q vs %q), collision not forced", a.Key.KeyPrefix, b.Key.KeyPrefix)
	}
	if a.Secret == b.Secret {
		t.Fatal("secrets must differ")
	}

	gotA, err := env.keys.Authenticate(ctx, a.Secret)
	if err != nil {
		t.Fatalf("Authenticate a: %v", err)
	}
	if gotA.ID != a.Key.ID || gotA.UserID != alice.ID {
		t.Errorf("secret a resolved to key %d of user %d", gotA.ID, gotA.UserID)
	}

	gotB, err := env.keys.Authenticate(ctx, b.Secret)
	if err != nil {
		t.Fatalf("Authenticate b: %v", err)
	}
	if gotB.ID != b.Key.ID || gotB.UserID != bob.ID {
		t.Errorf("secret b resolved to key %d of user %d", gotB.ID, gotB.UserID)
	}

	// Same prefix, unknown tail.
	forged := a.Key.KeyPrefix + strings.Repeat("Z", len(a.Secret)-KeyPrefixLen)
	if _, err := env.keys.Authenticate(ctx, forged); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Authenticate(forged) = %v, want ErrKeyNotFound", err)
	}

	// Revoking one leaves the other usable.
	if _, err := env.keys.Revoke(ctx, a.Key.ID, alice.ID); err != nil {
		t.Fatalf("Revoke a: %v", err)
	}
	if _, err := env.keys.Authenticate(ctx, b.Secret); err != nil {
		t.Errorf("Authenticate b after revoking a: %v", err)
	}
}

func TestRevokeErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	created, _ := env.keys.Create(ctx, alice.ID, "k1")

	if _, err := env.keys.Revoke(ctx, created.Key.ID, bob.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Revoke by non-owner = %v, want ErrNotOwner", err)
	}
	if KindOf(ErrNotOwner) != KindOwnership {
		t.Errorf("ErrNotOwner kind = %v", KindOf(ErrNotOwner))
	}
	if _, err := env.keys.Revoke(ctx, 9999, alice.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Revoke missing = %v, want ErrKeyNotFound", err)
	}
	if _, err := env.keys.Revoke(ctx, created.Key.ID, alice.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := env.keys.Revoke(ctx, created.Key.ID, alice.ID); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("second Revoke = %v, want ErrAlreadyRevoked", err)
	}
}

func TestListHidesRevokedByDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	k1, _ := env.keys.Create(ctx, alice.ID, "k1")
	env.keys.Create(ctx, alice.ID, "k2")
	env.keys.Revoke(ctx, k1.Key.ID, alice.ID)

	active, err := env.keys.List(ctx, alice.ID, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].Name != "k2" {
		t.Errorf("active keys = %+v", active)
	}
	all, _ := env.keys.List(ctx, alice.ID, true)
	if len(all) != 2 {
		t.Errorf("got %d keys including revoked, want 2", len(all))
	}
}

// failingKeyStore fails every lookup to exercise the storage error path.
type failingKeyStore struct {
	KeyStore
}

func (failingKeyStore) ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	return nil, errors.New("connection refused")
}

func TestAuthenticateStorageErrorIsRetryable(t *testing.T) {
	keys := NewKeyManager(failingKeyStore{}, nil, testLogger())
	_, err := keys.Authenticate(context.Background(), "tn_abcdefghijklmnopqrstuvwxyz")
	if KindOf(err) != KindStorage {
		t.Fatalf("kind = %v, want storage (err %v)", KindOf(err), err)
	}
	if !IsRetryable(err) {
		t.Error("storage errors on the auth path must be retryable")
	}
}

func TestEntropyFailure(t *testing.T) {
	env := newTestEnv(t, WithEntropy(io.LimitReader(bytes.NewReader(nil), 0)))
	alice := env.register(t, "alice")
	if _, err := env.keys.Create(context.Background(), alice.ID, "k"); err == nil {
		t.Error("expected error when entropy source is exhausted")
	}
}

func TestKeyClock(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, WithKeyClock(func() time.Time { return at }))
	alice := env.register(t, "alice")
	created, err := env.keys.Create(context.Background(), alice.ID, "k")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Key.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", created.Key.CreatedAt, at)
	}
}
