package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"leakwatch/internal/config"
)

func testManager(t *testing.T) *AuthManager {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthManager(config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: 10,
		APIKeys:       []string{"ingest-key"},
		Users:         []config.User{{Username: "gateway", PasswordHash: string(hash), Role: "service"}},
	})
}

func TestLoginAndValidate(t *testing.T) {
	am := testManager(t)
	token, exp, err := am.Login("gateway", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)

	claims, err := am.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "gateway", claims.Username)
	assert.Equal(t, "service", claims.Role)

	_, _, err = am.Login("gateway", "nope")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	_, _, err = am.Login("ghost", "s3cret")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestExpiredTokenRejected(t *testing.T) {
	am := testManager(t)
	am.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := am.GenerateJWT("gateway", "service")
	require.NoError(t, err)
	_, err = am.ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSession(t *testing.T) {
	am := testManager(t)
	s := NewSession(am, "gateway", "s3cret")
	assert.False(t, s.SignedIn())
	require.NoError(t, s.SignIn())
	assert.True(t, s.SignedIn())
	assert.Equal(t, "gateway", s.UID())

	s.SignOut()
	assert.False(t, s.SignedIn())
	assert.Empty(t, s.UID())

	bad := NewSession(am, "gateway", "wrong")
	assert.Error(t, bad.SignIn())
	assert.False(t, bad.SignedIn())
}

func TestAPIKeyMiddleware(t *testing.T) {
	am := testManager(t)
	h := am.APIKeyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		key  string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"wrong", http.StatusUnauthorized},
		{"ingest-key", http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
		if tc.key != "" {
			req.Header.Set(IngestHeader, tc.key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "key %q", tc.key)
	}
}

func TestJWTMiddlewareSetsUser(t *testing.T) {
	am := testManager(t)
	token, _, err := am.GenerateJWT("gateway", "service")
	require.NoError(t, err)

	var user, role string
	h := am.JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, role = Username(r.Context()), Role(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gateway", user)
	assert.Equal(t, "service", role)

	req = httptest.NewRequest(http.MethodPost, "/api/alerts/test", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"invalid_format"`)
}

func TestEmptySecretRejectsEveryToken(t *testing.T) {
	am := NewAuthManager(config.AuthConfig{})

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Username: "mallory", Role: "admin"}).SignedString([]byte(""))
	require.NoError(t, err)
	_, err = am.ValidateJWT(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = am.GenerateJWT("gateway", "service")
	assert.ErrorIs(t, err, ErrNoSecret)
}
