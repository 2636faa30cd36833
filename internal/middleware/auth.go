package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys
type contextKey string

// ClaimsContextKey is the key for storing token claims in context
const ClaimsContextKey contextKey = "claims"

// Token scopes. The game plugin gets "game", operator tooling gets "admin";
// an admin token passes game-scoped routes too.
const (
	ScopeGame  = "game"
	ScopeAdmin = "admin"
)

// TokenClaims is the JWT payload for API callers.
type TokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// NewToken issues an HS256 token with the given scope. Used by operator
// tooling and tests; deployments can also mint tokens out of band with the
// shared secret.
func NewToken(secret, scope string, ttl time.Duration) (string, error) {
	claims := &TokenClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RequireScope validates the Bearer token and enforces its scope. Admin
// tokens are accepted on every scoped route.
func RequireScope(secret, scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &TokenClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			if claims.Scope != scope && claims.Scope != ScopeAdmin {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts token claims from the request context.
func GetClaims(r *http.Request) *TokenClaims {
	claims, _ := r.Context().Value(ClaimsContextKey).(*TokenClaims)
	return claims
}
