package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/workitems/internal/api/middleware"
)

const testSecret = "test-secret-key-for-unit-tests"

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(authHeader string) (*httptest.ResponseRecorder, string) {
	var seen string
	h := middleware.JWTAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuth_ValidToken(t *testing.T) {
	tok := sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec, user := serve("Bearer " + tok)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-123", user)
}

func TestJWTAuth_Rejects(t *testing.T) {
	expired := sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, "other-secret", jwt.RegisteredClaims{Subject: "user-123"})
	wrongAlg := sign(t, jwt.SigningMethodHS512, testSecret, jwt.RegisteredClaims{Subject: "user-123"})
	noSubject := sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{})

	tests := map[string]string{
		"missing header": "",
		"not bearer":     "Basic dXNlcjpwYXNz",
		"garbage":        "Bearer not.a.token",
		"expired":        "Bearer " + expired,
		"wrong key":      "Bearer " + wrongKey,
		"wrong alg":      "Bearer " + wrongAlg,
		"no subject":     "Bearer " + noSubject,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			rec, user := serve(header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, user)
		})
	}
}
