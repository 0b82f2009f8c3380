package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/provider"
	"github.com/toolnest/toolnest/internal/server/middleware"
	"github.com/toolnest/toolnest/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// fakeTools records the last request and answers with canned results.
type fakeTools struct {
	summarizeReq  provider.SummarizeRequest
	paraphraseReq provider.ParaphraseRequest
	imageReq      provider.ImageRequest
	err           error
}

func (f *fakeTools) Summarize(_ context.Context, req provider.SummarizeRequest) (*provider.SummarizeResult, error) {
	f.summarizeReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.SummarizeResult{Summary: "short"}, nil
}

func (f *fakeTools) Paraphrase(_ context.Context, req provider.ParaphraseRequest) (*provider.ParaphraseResult, error) {
	f.paraphraseReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ParaphraseResult{ParaphrasedText: "reworded"}, nil
}

func (f *fakeTools) AnalyzeImage(_ context.Context, req provider.ImageRequest) (*provider.ImageResult, error) {
	f.imageReq = req
	if f.err != nil {
		return nil, f.err
	}
	if _, err := req.Validate(); err != nil {
		return nil, err
	}
	return &provider.ImageResult{Analysis: "a cat"}, nil
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *config.Store
	users    *service.UserService
	keys     *service.KeyManager
	recorder *service.UsageRecorder
	tools    *fakeTools
	router   chi.Router
}

// newTestEnv creates a fresh environment with an in-memory store and the
// handlers mounted behind the authentication middleware. Rate limiting is
// left to the server tests.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := service.NewUsageRecorder(store, logger, service.UsageRecorderConfig{})
	keys := service.NewKeyManager(store, recorder, logger)
	t.Cleanup(func() {
		keys.Wait()
		recorder.Close(context.Background())
		store.Close()
	})

	tokens := service.NewTokenIssuer(testJWTSecret, 30*time.Minute)
	users := service.NewUserService(store, tokens, 4)
	tools := &fakeTools{}

	authH := NewAuthHandler(users)
	keyH := NewAPIKeyHandler(keys)
	toolsH := NewAIToolsHandler(tools)
	authn := middleware.Authenticate(service.NewAuthenticator(tokens, keys), "")

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)

		r.Group(func(r chi.Router) {
			r.Use(authn, middleware.RequireUser())
			r.Get("/auth/me", authH.Me)
			r.Post("/api-keys", keyH.Create)
			r.Get("/api-keys", keyH.List)
			r.Delete("/api-keys/{keyID}", keyH.Revoke)
			r.Get("/api-keys/{keyID}/usage", keyH.Usage)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn, middleware.RecordUsage(recorder))
			r.Post("/ai-tools/summarize", toolsH.Summarize)
			r.Post("/ai-tools/paraphrase", toolsH.Paraphrase)
			r.Post("/ai-tools/image-to-text", toolsH.ImageToText)
		})
	})

	return &testEnv{
		store:    store,
		users:    users,
		keys:     keys,
		recorder: recorder,
		tools:    tools,
		router:   r,
	}
}

// seedUser registers an account and returns a bearer token for it.
func (e *testEnv) seedUser(t *testing.T, username string) (*model.User, string) {
	t.Helper()
	user, err := e.users.Register(context.Background(), service.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	res, err := e.users.Login(context.Background(), username, testPassword)
	if err != nil {
		t.Fatalf("seedUser login: %v", err)
	}
	return user, res.Token
}

// seedKey creates an API key for userID and returns its secret.
func (e *testEnv) seedKey(t *testing.T, userID int64, name string) *model.CreatedAPIKey {
	t.Helper()
	created, err := e.keys.Create(context.Background(), userID, name)
	if err != nil {
		t.Fatalf("seedKey: %v", err)
	}
	return created
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

func apiKey(secret string) []string {
	return []string{middleware.DefaultAPIKeyHeader, secret}
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Code != rr.Code {
		t.Errorf("error.code = %d, want %d", resp.Error.Code, rr.Code)
	}
	return resp.Error.Message
}

func TestHealth(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	h := NewHealthHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assertStatus(t, rr, http.StatusOK)

	rr = httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assertStatus(t, rr, http.StatusOK)

	store.Close()
	rr = httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assertStatus(t, rr, http.StatusServiceUnavailable)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on an unready store")
	}
}
