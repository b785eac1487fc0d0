package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the external tenant/identity registry asserts about a
// validated bearer credential.
type Claims struct {
	TenantID  string
	Subject   string
	Scopes    []string
	ExpiresAt int64
}

// HasScope reports whether claims grants the named scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Validator is the narrow interface through which the external tenant/
// identity registry (API-key issuance and validation -- spec.md §1 pins
// this as out of scope) asserts a bearer credential's claims for a given
// tenant. The core never issues or stores keys; it only verifies what the
// registry signed.
type Validator interface {
	Validate(tenantID, token string) (*Claims, error)
}

// HMACValidator validates tenant-scoped API key tokens: HS256 JWTs carrying
// a tenant_id claim that MUST match the tenant the request claims to act
// on. The core and the registry share a verification secret distributed
// out of band (ENCRYPTION_MASTER_KEY_REF's sibling); unlike an OIDC
// identity provider, there is no live discovery or JWKS fetch -- the
// registry is a pinned external collaborator, not a network dependency of
// every request.
type HMACValidator struct {
	secret []byte
}

// NewHMACValidator constructs a validator around a shared verification
// secret. An empty secret makes every token invalid.
func NewHMACValidator(secret []byte) *HMACValidator {
	return &HMACValidator{secret: secret}
}

// Validate parses tokenString as an HS256 JWT, verifies its signature
// against the shared secret, and checks that its tenant_id claim matches
// tenantID. A token valid for one tenant is never valid for another, even
// if correctly signed.
func (v *HMACValidator) Validate(tenantID, tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("registry verification secret not configured")
	}
	if tokenString == "" {
		return nil, errors.New("token is required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("failed to parse claims")
	}

	claimedTenant, _ := mapClaims["tenant_id"].(string)
	if claimedTenant == "" {
		return nil, errors.New("token missing tenant_id claim")
	}
	if tenantID != "" && claimedTenant != tenantID {
		return nil, fmt.Errorf("token scoped to tenant %s, not %s", claimedTenant, tenantID)
	}

	claims := &Claims{TenantID: claimedTenant}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}
	if rawScopes, ok := mapClaims["scopes"].([]interface{}); ok {
		for _, s := range rawScopes {
			if str, ok := s.(string); ok {
				claims.Scopes = append(claims.Scopes, str)
			}
		}
	}
	return claims, nil
}
