package handler

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/toolnest/toolnest/internal/model"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/auth/register", toJSON(t, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusCreated)

	body := rr.Body.String()
	if strings.Contains(body, "password") {
		t.Errorf("response leaks the password hash: %s", body)
	}
	var user model.User
	decodeJSON(t, rr, &user)
	if user.ID == 0 || user.Username != "alice" || !user.IsActive {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate username", `{"username":"alice","email":"other@example.com","password":"supersecretpassword"}`, http.StatusBadRequest},
		{"short password", `{"username":"bob","email":"bob@example.com","password":"short"}`, http.StatusBadRequest},
		{"bad email", `{"username":"bob","email":"not-an-email","password":"supersecretpassword"}`, http.StatusBadRequest},
		{"invalid json", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/auth/register", strings.NewReader(tt.body))
			assertStatus(t, rr, tt.want)
		})
	}
}

func TestLogin_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")

	rr := env.do(t, "POST", "/api/v1/auth/login", toJSON(t, map[string]string{
		"username": "alice",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusOK)

	var resp tokenResponse
	decodeJSON(t, rr, &resp)
	if resp.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	if resp.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", resp.TokenType)
	}
	if resp.ExpiresIn != int((30 * time.Minute).Seconds()) {
		t.Errorf("expires_in = %d", resp.ExpiresIn)
	}

	me := env.do(t, "GET", "/api/v1/auth/me", nil, bearer(resp.AccessToken)...)
	assertStatus(t, me, http.StatusOK)
	var user model.User
	decodeJSON(t, me, &user)
	if user.Username != "alice" {
		t.Errorf("me = %+v", user)
	}
}

func TestLogin_Form(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")

	form := url.Values{"username": {"alice@example.com"}, "password": {testPassword}}
	rr := env.do(t, "POST", "/api/v1/auth/login", strings.NewReader(form.Encode()),
		"Content-Type", "application/x-www-form-urlencoded")
	assertStatus(t, rr, http.StatusOK)
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "wrongpassword"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "nobody", "password": testPassword}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"username": "alice"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/auth/login", toJSON(t, tt.body))
			assertStatus(t, rr, tt.want)
		})
	}
}

func TestMe_RequiresBearer(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.seedUser(t, "alice")
	created := env.seedKey(t, user.ID, "k1")

	rr := env.do(t, "GET", "/api/v1/auth/me", nil)
	assertStatus(t, rr, http.StatusUnauthorized)
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected a WWW-Authenticate challenge")
	}

	rr = env.do(t, "GET", "/api/v1/auth/me", nil, apiKey(created.Secret)...)
	assertStatus(t, rr, http.StatusForbidden)

	rr = env.do(t, "GET", "/api/v1/auth/me", nil, bearer("not.a.token")...)
	assertStatus(t, rr, http.StatusUnauthorized)
}
