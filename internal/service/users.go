package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/model"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

// UserStore is the subset of the credential store used for accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
}

// UserService registers accounts and exchanges passwords for bearer tokens.
type UserService struct {
	store      UserStore
	tokens     *TokenIssuer
	bcryptCost int
	now        func() time.Time

	// dummyHash is compared against when the login is unknown so both
	// paths spend the same bcrypt time.
	dummyHash []byte
}

// NewUserService creates a user service. A zero bcryptCost uses bcrypt.DefaultCost.
func NewUserService(store UserStore, tokens *TokenIssuer, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("toolnest-timing-dummy"), bcryptCost)
	return &UserService{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		now:        time.Now,
		dummyHash:  dummy,
	}
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field constraints.
func (in *RegisterInput) Validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	n := utf8.RuneCountInString(in.Username)
	if n < minUsernameLen || n > maxUsernameLen {
		return ValidationError("username must be between %d and %d characters", minUsernameLen, maxUsernameLen)
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return ValidationError("email is not a valid address")
	}
	if len(in.Password) < minPasswordLen {
		return ValidationError("password must be at least %d characters", minPasswordLen)
	}
	if len(in.Password) > maxPasswordLen {
		return ValidationError("password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}

// Register creates an active account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(ctx, in.Username, in.Email)
	if err != nil {
		return nil, storageError("check existing user", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, config.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, storageError("create user", err)
	}
	return user, nil
}

// LoginResult is a freshly issued session token.
type LoginResult struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	User      *model.User
}

// Login checks a username or email and password and issues a token.
func (s *UserService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("look up user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	issuedAt := s.now().Truncate(time.Second)
	token, expiresAt, err := s.tokens.Issue(user, issuedAt)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, IssuedAt: issuedAt, ExpiresAt: expiresAt, User: user}, nil
}

// User returns the account behind a verified token.
func (s *UserService) User(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("get user", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}
