package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islandgrocer/islandgrocer/internal/domain/auth"
)

type fakeTokenRepo struct {
	byHash map[string]auth.Identity
}

func (f *fakeTokenRepo) FindByTokenHash(_ context.Context, hash string) (*auth.Identity, error) {
	id, ok := f.byHash[hash]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	return &id, nil
}

func TestHashToken_Deterministic(t *testing.T) {
	pepper := []byte("test-pepper")

	h1 := HashToken("token-a", pepper)
	h2 := HashToken("token-a", pepper)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256

	// Different token or different pepper, different hash.
	assert.NotEqual(t, h1, HashToken("token-b", pepper))
	assert.NotEqual(t, h1, HashToken("token-a", []byte("other-pepper")))
}

func TestAuthenticate(t *testing.T) {
	pepper := []byte("test-pepper")
	repo := &fakeTokenRepo{byHash: map[string]auth.Identity{
		HashToken("valid-token", pepper): {UserID: "u1", Name: "Maria Santos", Role: auth.RoleCustomer},
	}}

	var seen *auth.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.IdentityFrom(r.Context()); ok {
			seen = &id
		}
		w.WriteHeader(http.StatusNoContent)
	})
	protected := Authenticate(repo, pepper)(next)

	t.Run("valid token", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "u1", seen.UserID)
		assert.Equal(t, auth.RoleCustomer, seen.Role)
	})

	t.Run("lowercase scheme accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "bearer valid-token")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("unknown token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer wrong-token")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
