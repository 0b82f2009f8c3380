package config

import (
	"context"
	"fmt"
	"time"

	"github.com/toolnest/toolnest/internal/model"
)

const userColumns = `id, username, email, password_hash, is_active, created_at`

// CreateUser inserts a new account. ID and CreatedAt are populated after a
// successful insert. A taken username or email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO users
		(username, email, password_hash, is_active, created_at)
		VALUES
		(:username, :email, :password_hash, :is_active, :created_at)`

	id, err := s.insert(ctx, s.db, q, user)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	q := s.db.Rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	if err := s.db.GetContext(ctx, &user, q, id); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByLogin returns the user whose username or email equals login.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	var user model.User
	q := s.db.Rebind("SELECT " + userColumns + " FROM users WHERE username = ? OR email = ?")
	if err := s.db.GetContext(ctx, &user, q, login, login); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return &user, nil
}

// UserExists reports whether the username or the email is already taken.
func (s *Store) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM users WHERE username = ? OR email = ?")
	if err := s.db.GetContext(ctx, &count, q, username, email); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// ListUsers returns all accounts ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserActive toggles the active flag of an account.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET is_active = ? WHERE id = ?"), active, id)
	if err != nil {
		return fmt.Errorf("update user active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user active rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
