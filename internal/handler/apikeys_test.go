package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/toolnest/toolnest/internal/model"
)

func TestAPIKeys_CreateListRevoke(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice")

	rr := env.do(t, "POST", "/api/v1/api-keys", toJSON(t, map[string]string{"name": "k1"}), bearer(token)...)
	assertStatus(t, rr, http.StatusCreated)

	var created createAPIKeyResponse
	decodeJSON(t, rr, &created)
	if created.Secret == "" {
		t.Fatal("expected the secret in the create response")
	}
	if !strings.HasPrefix(created.Secret, created.KeyPrefix) {
		t.Errorf("prefix %q is not a prefix of the secret", created.KeyPrefix)
	}
	if created.Status != model.KeyStatusActive {
		t.Errorf("status = %q, want active", created.Status)
	}

	rr = env.do(t, "GET", "/api/v1/api-keys", nil, bearer(token)...)
	assertStatus(t, rr, http.StatusOK)
	if body := rr.Body.String(); strings.Contains(body, created.Secret) {
		t.Fatalf("list leaks the secret: %s", body)
	}
	var list struct {
		Resource []model.APIKey    `json:"resource"`
		Meta     model.ResponseMeta `json:"meta"`
	}
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 1 || list.Meta.Count != 1 {
		t.Fatalf("list = %+v", list)
	}

	path := fmt.Sprintf("/api/v1/api-keys/%d", created.ID)
	rr = env.do(t, "DELETE", path, nil, bearer(token)...)
	assertStatus(t, rr, http.StatusOK)
	var revoked model.APIKey
	decodeJSON(t, rr, &revoked)
	if revoked.Status != model.KeyStatusRevoked || revoked.RevokedAt == nil {
		t.Errorf("revoked = %+v", revoked)
	}

	rr = env.do(t, "DELETE", path, nil, bearer(token)...)
	assertStatus(t, rr, http.StatusConflict)

	rr = env.do(t, "GET", "/api/v1/api-keys", nil, bearer(token)...)
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 0 {
		t.Errorf("revoked key still listed: %+v", list.Resource)
	}

	rr = env.do(t, "GET", "/api/v1/api-keys?include_revoked=true", nil, bearer(token)...)
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 1 {
		t.Errorf("include_revoked list = %+v", list.Resource)
	}
}

func TestAPIKeys_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice")

	rr := env.do(t, "POST", "/api/v1/api-keys", toJSON(t, map[string]string{"name": ""}), bearer(token)...)
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, "POST", "/api/v1/api-keys", toJSON(t, map[string]string{"name": "k1"}))
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestAPIKeys_OtherUsersKeysAreNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.seedUser(t, "alice")
	_, bobToken := env.seedUser(t, "bob")
	created := env.seedKey(t, alice.ID, "k1")

	tests := []struct {
		method, path string
	}{
		{"DELETE", fmt.Sprintf("/api/v1/api-keys/%d", created.Key.ID)},
		{"GET", fmt.Sprintf("/api/v1/api-keys/%d/usage", created.Key.ID)},
		{"DELETE", "/api/v1/api-keys/9999"},
		{"GET", "/api/v1/api-keys/9999/usage"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, nil, bearer(bobToken)...)
			assertStatus(t, rr, http.StatusNotFound)
			if msg := errorMessage(t, rr); msg != "API key not found" {
				t.Errorf("message = %q", msg)
			}
		})
	}

	rr := env.do(t, "DELETE", "/api/v1/api-keys/abc", nil, bearer(bobToken)...)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestAPIKeys_RejectAPIKeyCallers(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.seedUser(t, "alice")
	created := env.seedKey(t, alice.ID, "k1")

	rr := env.do(t, "GET", "/api/v1/api-keys", nil, apiKey(created.Secret)...)
	assertStatus(t, rr, http.StatusForbidden)
}

func TestAPIKeys_Usage(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.seedUser(t, "alice")
	created := env.seedKey(t, alice.ID, "k1")

	text := strings.Repeat("lorem ipsum ", 20)
	for i := 0; i < 3; i++ {
		rr := env.do(t, "POST", "/api/v1/ai-tools/summarize",
			toJSON(t, map[string]string{"text": text}), apiKey(created.Secret)...)
		assertStatus(t, rr, http.StatusOK)
	}
	env.tools.err = fmt.Errorf("boom")
	rr := env.do(t, "POST", "/api/v1/ai-tools/paraphrase",
		toJSON(t, map[string]string{"text": "hello there world"}), apiKey(created.Secret)...)
	assertStatus(t, rr, http.StatusInternalServerError)

	// Bearer callers are not recorded.
	env.tools.err = nil
	rr = env.do(t, "POST", "/api/v1/ai-tools/summarize",
		toJSON(t, map[string]string{"text": text}), bearer(token)...)
	assertStatus(t, rr, http.StatusOK)

	if err := env.recorder.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rr = env.do(t, "GET", fmt.Sprintf("/api/v1/api-keys/%d/usage", created.Key.ID), nil, bearer(token)...)
	assertStatus(t, rr, http.StatusOK)

	var stats struct {
		model.UsageStats
		GeneratedAt string `json:"generated_at"`
	}
	decodeJSON(t, rr, &stats)
	if stats.TotalRequests != 4 || stats.SuccessfulRequests != 3 || stats.FailedRequests != 1 {
		t.Errorf("stats = %+v", stats.UsageStats)
	}
	if got := stats.UsageByEndpoint["/api/v1/ai-tools/summarize"]; got != 3 {
		t.Errorf("summarize count = %d, want 3 (%v)", got, stats.UsageByEndpoint)
	}
	if len(stats.RecentUsage) != 4 {
		t.Errorf("recent usage = %d records", len(stats.RecentUsage))
	}
	if stats.GeneratedAt == "" {
		t.Error("expected generated_at")
	}
}

func TestAPIKeys_UsageEmpty(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.seedUser(t, "alice")
	created := env.seedKey(t, alice.ID, "k1")

	rr := env.do(t, "GET", fmt.Sprintf("/api/v1/api-keys/%d/usage", created.Key.ID), nil, bearer(token)...)
	assertStatus(t, rr, http.StatusOK)
	body := rr.Body.String()
	if !strings.Contains(body, `"recent_usage":[]`) || !strings.Contains(body, `"usage_by_endpoint":{}`) {
		t.Errorf("expected empty collections, got %s", body)
	}
}
