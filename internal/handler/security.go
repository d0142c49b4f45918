package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/islandgrocer/islandgrocer/internal/domain/auth"
	"github.com/islandgrocer/islandgrocer/pkg/httpmiddleware"
)

// HashToken computes the stored form of a bearer token: HMAC-SHA256 under
// the service pepper, hex encoded. The seeder uses the same function so the
// hash scheme lives in exactly one place.
func HashToken(token string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate returns a middleware that resolves the Authorization bearer
// token to an identity and stores it in the request context. Tokens are
// looked up by HMAC hash, so the token table never holds usable
// credentials. Requests without a valid token get 401.
func Authenticate(tokens auth.Repository, pepper []byte) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			id, err := tokens.FindByTokenHash(r.Context(), HashToken(token, pepper))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), *id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
