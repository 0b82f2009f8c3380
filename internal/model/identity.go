package model

// IdentityKind tells which credential authenticated a request.
type IdentityKind string

const (
	IdentityToken  IdentityKind = "token"
	IdentityAPIKey IdentityKind = "api_key"
)

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// AuthIdentity is the caller resolved once per request. Exactly one of
// Token or Key is set, matching Kind.
type AuthIdentity struct {
	Kind  IdentityKind
	Token *TokenClaims
	Key   *APIKey
}

// UserID returns the id of the user behind the identity.
func (a *AuthIdentity) UserID() int64 {
	switch a.Kind {
	case IdentityToken:
		return a.Token.UserID
	case IdentityAPIKey:
		return a.Key.UserID
	}
	return 0
}

// APIKeyID returns the id of the authenticating key, or 0 for token callers.
func (a *AuthIdentity) APIKeyID() int64 {
	if a.Kind == IdentityAPIKey && a.Key != nil {
		return a.Key.ID
	}
	return 0
}
