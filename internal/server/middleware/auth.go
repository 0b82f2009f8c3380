package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/toolnest/toolnest/internal/metrics"
	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/service"
)

type contextKeyAuth string

const (
	// AuthIdentityKey is the context key for the resolved caller.
	AuthIdentityKey contextKeyAuth = "auth_identity"

	// DefaultAPIKeyHeader carries the raw API key.
	DefaultAPIKeyHeader = "X-API-Key"
)

// Resolver turns presented credentials into an identity.
type Resolver interface {
	Resolve(ctx context.Context, apiKey, bearer string) (*model.AuthIdentity, error)
}

// Authenticate returns an HTTP middleware that resolves the caller from
// either credential:
//
//  1. API key via the key header. When present it decides alone.
//  2. JWT Bearer token via the Authorization header.
//
// On success the identity is attached to the request context. Failures are
// answered with 401 (403 for a deactivated account, 503 when the store is
// unavailable).
func Authenticate(resolver Resolver, keyHeader string) func(http.Handler) http.Handler {
	if keyHeader == "" {
		keyHeader = DefaultAPIKeyHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := strings.TrimSpace(r.Header.Get(keyHeader))
			bearer := bearerToken(r)

			identity, err := resolver.Resolve(r.Context(), apiKey, bearer)
			if err != nil {
				credential := "token"
				if apiKey != "" {
					credential = "api_key"
				}
				writeResolveError(w, credential, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeResolveError(w http.ResponseWriter, credential string, err error) {
	switch {
	case errors.Is(err, service.ErrNoCredentials):
		metrics.AuthFailuresTotal.WithLabelValues("none", "missing").Inc()
		w.Header().Set("WWW-Authenticate", `Bearer, APIKey`)
		writeError(w, http.StatusUnauthorized,
			"Authentication required. Provide X-API-Key header or Bearer token.")
	case errors.Is(err, service.ErrInactiveUser):
		metrics.AuthFailuresTotal.WithLabelValues(credential, "inactive").Inc()
		writeError(w, http.StatusForbidden, "Inactive user")
	case service.KindOf(err) == service.KindStorage:
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "Authentication temporarily unavailable")
	default:
		metrics.AuthFailuresTotal.WithLabelValues(credential, failureReason(err)).Inc()
		if credential == "api_key" {
			w.Header().Set("WWW-Authenticate", "APIKey")
			writeError(w, http.StatusUnauthorized, "Invalid API key: "+err.Error())
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Could not validate credentials: "+err.Error())
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "expired"
	case errors.Is(err, service.ErrInvalidSignature):
		return "signature"
	case errors.Is(err, service.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, service.ErrKeyRevoked):
		return "revoked"
	case errors.Is(err, service.ErrKeyNotFound):
		return "not_found"
	default:
		return "other"
	}
}

// RequireUser returns an HTTP middleware that only admits bearer-token
// sessions. Account and key management are not available to API keys.
// It must be used after Authenticate in the middleware chain.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if identity.Kind != model.IdentityToken {
				writeError(w, http.StatusForbidden, "This endpoint requires a user session (Bearer token)")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the resolved caller from the context.
// Returns nil for unauthenticated requests.
func GetIdentity(ctx context.Context) *model.AuthIdentity {
	if id, ok := ctx.Value(AuthIdentityKey).(*model.AuthIdentity); ok {
		return id
	}
	return nil
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *model.AuthIdentity) context.Context {
	return context.WithValue(ctx, AuthIdentityKey, identity)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoded here to avoid an import cycle with the handler package.
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
