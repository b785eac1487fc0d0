// Package auth provides authentication middleware and the bearer-token
// validation boundary toward the external tenant/identity registry.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

// ClaimsContextKey is the context key for storing claims.
const ClaimsContextKey contextKey = "claims"

// Authenticator is the external identity registry boundary spec.md §1
// treats as pinned/out-of-scope: whatever the registry turns out to be
// (a shared-secret API-key service, mTLS, something else), the HTTP
// surface only needs a chi-compatible middleware function. *Middleware
// below is the bearer-token implementation; other registries plug in by
// satisfying this interface rather than by changing
// internal/transport/httpapi.
type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}

var (
	errMissingHeader = errors.New("authorization header required")
	errBadFormat     = errors.New("invalid authorization header format")
)

// Middleware enforces spec.md §6's wire contract: every request carries
// X-Tenant-Id and an opaque bearer credential, and the credential's
// validity is resolved entirely by the injected Validator (the external
// registry's pinned interface). With no validator configured, auth is a
// no-op -- acceptable for local/dev, never for a production deployment.
type Middleware struct {
	validator Validator
	log       *zap.Logger
}

// NewMiddleware creates authentication middleware backed by validator.
// A nil validator disables authentication entirely.
func NewMiddleware(validator Validator, log *zap.Logger) *Middleware {
	return &Middleware{validator: validator, log: log}
}

// requestTenantID mirrors internal/transport/httpapi's tenant resolution:
// the {tenant} path segment when present, else the X-Tenant-Id header.
func requestTenantID(r *http.Request) string {
	if t := chi.URLParam(r, "tenant"); t != "" {
		return t
	}
	return r.Header.Get("X-Tenant-Id")
}

func (m *Middleware) validate(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errMissingHeader
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, errBadFormat
	}
	return m.validator.Validate(requestTenantID(r), parts[1])
}

// Authenticate is HTTP middleware that validates authentication tokens.
// It returns 401 for missing or invalid tokens when a validator is configured.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.validator == nil {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.validate(r)
		if err != nil {
			switch {
			case errors.Is(err, errMissingHeader):
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
			case errors.Is(err, errBadFormat):
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			default:
				m.log.Warn("token validation failed", zap.Error(err))
				http.Error(w, "Invalid token", http.StatusUnauthorized)
			}
			return
		}

		m.log.Debug("authenticated request", zap.String("subject", claims.Subject), zap.String("tenant_id", claims.TenantID))
		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth is HTTP middleware that validates tokens if present but allows unauthenticated requests.
// If a valid token is provided, claims are added to the request context.
// If no token is provided, the request proceeds without claims.
// If an invalid token is provided, the request is rejected with 401.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.validator == nil {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.validate(r)
		if err != nil {
			if errors.Is(err, errBadFormat) {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			} else {
				m.log.Warn("token validation failed", zap.Error(err))
				http.Error(w, "Invalid token", http.StatusUnauthorized)
			}
			return
		}

		m.log.Debug("authenticated request", zap.String("subject", claims.Subject), zap.String("tenant_id", claims.TenantID))
		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims retrieves claims from the request context.
// Returns nil if no claims are present (unauthenticated request with optional auth).
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
