package service

import (
	"context"
	"errors"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/model"
)

// ErrNoCredentials is returned when a request carries neither credential.
var ErrNoCredentials = newError(KindAuth, "missing credentials")

// Authenticator resolves the caller of a request from its credentials.
//
// An API key, when present, takes priority and decides alone: a bad key is
// rejected even if a valid bearer token accompanies it. The bearer token is
// only consulted when no key is presented. Either way the owning account
// must still exist and be active.
type Authenticator struct {
	tokens *TokenIssuer
	keys   *KeyManager
}

func NewAuthenticator(tokens *TokenIssuer, keys *KeyManager) *Authenticator {
	return &Authenticator{tokens: tokens, keys: keys}
}

// Resolve returns the identity behind apiKey or bearer.
func (a *Authenticator) Resolve(ctx context.Context, apiKey, bearer string) (*model.AuthIdentity, error) {
	if apiKey != "" {
		key, err := a.keys.Authenticate(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return &model.AuthIdentity{Kind: model.IdentityAPIKey, Key: key}, nil
	}

	if bearer != "" {
		claims, err := a.tokens.Verify(bearer)
		if err != nil {
			return nil, err
		}
		if err := a.checkAccount(ctx, claims.UserID); err != nil {
			return nil, err
		}
		return &model.AuthIdentity{Kind: model.IdentityToken, Token: claims}, nil
	}

	return nil, ErrNoCredentials
}


// checkAccount rejects tokens whose subject was removed or deactivated after
// the token was issued.
func (a *Authenticator) checkAccount(ctx context.Context, userID int64) error {
	user, err := a.keys.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return storageError("look up token subject", err)
	}
	if !user.IsActive {
		return ErrInactiveUser
	}
	return nil
}
