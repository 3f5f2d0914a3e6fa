package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())
		_, _ = w.Write([]byte(owner))
	})
}

func call(t *testing.T, h http.Handler, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	h := JWTMiddleware("s3cret")(ownerEcho())

	token, err := IssueToken("s3cret", "alice", time.Hour)
	require.NoError(t, err)

	rec := call(t, h, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(t, h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, token).Code)

	other, err := IssueToken("different", "alice", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, "Bearer "+other).Code)

	expired, err := IssueToken("s3cret", "alice", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, "Bearer "+expired).Code)
}

func TestJWTMiddleware_RequiresUserClaim(t *testing.T) {
	h := JWTMiddleware("s3cret")(ownerEcho())
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, "Bearer "+token).Code)
}

func TestIssueToken_EmptySecret(t *testing.T) {
	_, err := IssueToken("", "alice", time.Hour)
	assert.Error(t, err)
}
