// Package auth resolves an authenticated principal from a bearer token
// and gates privileged routes. Credential issuance lives with the
// identity provider; this package only validates what it is handed.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/accessly-app/accessly/internal/model"
)

// ErrInvalidToken is returned for missing, malformed, or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

type contextKey struct{}

// FromContext returns the principal attached by Middleware.
func FromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(model.Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context. Exposed for tests
// that exercise handlers without the HTTP middleware.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// ValidateToken parses and validates a bearer token, returning the
// embedded principal.
func ValidateToken(secret, tokenString string) (model.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Principal{}, ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return model.Principal{}, ErrInvalidToken
	}
	if role == "" {
		role = model.RoleUser
	}

	return model.Principal{UserID: userID, Role: role}, nil
}

// MintToken signs a token for the given principal. Used by the seed
// command and tests; the service itself never issues credentials.
func MintToken(secret, issuer, userID, role string, ttl time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// Middleware validates the Authorization bearer token and injects the
// principal into the request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeUnauthorized(w, "no token, authorization denied")
				return
			}

			principal, err := ValidateToken(secret, raw)
			if err != nil {
				writeUnauthorized(w, "token is not valid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects requests whose principal lacks the admin role.
// Must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			writeUnauthorized(w, "no token, authorization denied")
			return
		}
		if !p.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(model.ErrorResponse{
				Error: "access denied, admin required",
				Code:  model.CodeForbidden,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: msg,
		Code:  model.CodeUnauthorized,
	})
}
