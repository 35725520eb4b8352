package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripsync/backend/internal/middleware"
)

var secret = []byte("test-secret")

// whoAmI writes the authenticated user id, or fails the request.
var whoAmI = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(id.String()))
})

func TestAuth_BearerHeader(t *testing.T) {
	user := uuid.New()
	token, err := middleware.NewToken(secret, user, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	middleware.NewAuth(secret)(whoAmI).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.String(), rec.Body.String())
}

func TestAuth_QueryParam(t *testing.T) {
	user := uuid.New()
	token, err := middleware.NewToken(secret, user, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/trips/x/items/feed?access_token="+token, nil)
	rec := httptest.NewRecorder()
	middleware.NewAuth(secret)(whoAmI).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.String(), rec.Body.String())
}

func TestAuth_Rejects(t *testing.T) {
	user := uuid.New()
	expired, err := middleware.NewToken(secret, user, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := middleware.NewToken([]byte("other"), user, time.Hour)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "tripsync",
		Subject:   user.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not.a.jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"alg none", "Bearer " + noneAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/trips", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			middleware.NewAuth(secret)(whoAmI).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"unauthenticated"`)
		})
	}
}

func TestSubjectUnverified(t *testing.T) {
	user := uuid.New()
	token, err := middleware.NewToken(secret, user, time.Hour)
	require.NoError(t, err)

	got, err := middleware.SubjectUnverified(token)

	require.NoError(t, err)
	assert.Equal(t, user, got)
}
