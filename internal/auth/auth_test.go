package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessly-app/accessly/internal/model"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := MintToken(testSecret, "accessly", "user-1", model.RoleAdmin, time.Hour, time.Now())
	require.NoError(t, err)

	p, err := ValidateToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, model.RoleAdmin, p.Role)
	assert.True(t, p.IsAdmin())
}

func TestValidateTokenRejections(t *testing.T) {
	t.Parallel()

	t.Run("wrong secret", func(t *testing.T) {
		token, err := MintToken("other-secret", "accessly", "user-1", model.RoleUser, time.Hour, time.Now())
		require.NoError(t, err)

		_, err = ValidateToken(testSecret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := MintToken(testSecret, "accessly", "user-1", model.RoleUser, time.Hour, time.Now().Add(-2*time.Hour))
		require.NoError(t, err)

		_, err = ValidateToken(testSecret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ValidateToken(testSecret, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var captured model.Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := Middleware(testSecret)(inner)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "token-without-bearer")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token injects principal", func(t *testing.T) {
		token, err := MintToken(testSecret, "accessly", "user-7", model.RoleUser, time.Hour, time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-7", captured.UserID)
		assert.Equal(t, model.RoleUser, captured.Role)
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gated := RequireAdmin(inner)

	t.Run("no principal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		gated.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("plain user forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), model.Principal{UserID: "u", Role: model.RoleUser}))
		rec := httptest.NewRecorder()
		gated.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), model.Principal{UserID: "a", Role: model.RoleAdmin}))
		rec := httptest.NewRecorder()
		gated.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
