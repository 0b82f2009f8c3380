package service

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"short username", RegisterInput{Username: "al", Email: "al@example.com", Password: "correct-horse"}},
		{"long username", RegisterInput{Username: strings.Repeat("a", 51), Email: "a@example.com", Password: "correct-horse"}},
		{"bad email", RegisterInput{Username: "alice", Email: "not-an-email", Password: "correct-horse"}},
		{"display name email", RegisterInput{Username: "alice", Email: "Alice <alice@example.com>", Password: "correct-horse"}},
		{"short password", RegisterInput{Username: "alice", Email: "alice@example.com", Password: "short"}},
		{"long password", RegisterInput{Username: "alice", Email: "alice@example.com", Password: strings.Repeat("p", 73)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Register(context.Background(), tt.in)
			if KindOf(err) != KindValidation {
				t.Errorf("Register kind = %v (err %v), want validation", KindOf(err), err)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	_, err := env.users.Register(context.Background(), RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "correct-horse",
	})
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username = %v, want ErrUserExists", err)
	}
	_, err = env.users.Register(context.Background(), RegisterInput{
		Username: "alice2", Email: "alice@example.com", Password: "correct-horse",
	})
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate email = %v, want ErrUserExists", err)
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "alice")
	if u.PasswordHash == "" || u.PasswordHash == "correct-horse" {
		t.Errorf("password hash = %q", u.PasswordHash)
	}
	if !u.IsActive {
		t.Error("new users should be active")
	}
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	for _, login := range []string{"alice", "alice@example.com", "  alice  "} {
		res, err := env.users.Login(context.Background(), login, "correct-horse")
		if err != nil {
			t.Fatalf("Login(%q): %v", login, err)
		}
		if res.User.ID != alice.ID || res.Token == "" {
			t.Errorf("Login(%q) = %+v", login, res)
		}
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	ctx := context.Background()

	if _, err := env.users.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.users.Login(ctx, "nobody", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user = %v, want ErrInvalidCredentials", err)
	}

	if err := env.store.SetUserActive(ctx, alice.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if _, err := env.users.Login(ctx, "alice", "correct-horse"); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("inactive user = %v, want ErrInactiveUser", err)
	}
	// A wrong password on an inactive account does not reveal the state.
	if _, err := env.users.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive user, wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.users.User(ctx, alice.ID); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("User(inactive) = %v, want ErrInactiveUser", err)
	}
}
