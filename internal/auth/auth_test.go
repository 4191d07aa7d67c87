package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	v := NewVerifier("secret", "authenticated", "pm_session")

	token, err := v.Issue("u1", "a@b.c", time.Hour)
	require.NoError(t, err)
	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u1", Email: "a@b.c"}, user)

	expired, err := v.Issue("u1", "", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.Error(t, err)

	_, err = NewVerifier("other", "authenticated", "").Verify(token)
	assert.Error(t, err, "wrong secret")

	_, err = NewVerifier("secret", "service_role", "").Verify(token)
	assert.Error(t, err, "wrong audience")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.Error(t, err, "alg none")

	_, err = NewVerifier("", "", "").Verify(token)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret", "", "pm_session")
	token, err := v.Issue("u1", "", time.Hour)
	require.NoError(t, err)

	var seen *User
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "pm_session", Value: token}) }, http.StatusNoContent},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.ID)
			} else {
				assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestOptional(t *testing.T) {
	v := NewVerifier("secret", "", "")
	var ok bool
	h := Optional(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = UserFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
