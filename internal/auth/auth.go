// Package auth verifies session tokens and puts the signed-in user on the
// request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken       = errors.New("no session token")
	ErrNotConfigured = errors.New("session verification is not configured")
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens.
type Verifier struct {
	secret     []byte
	audience   string
	cookieName string
}

func NewVerifier(secret, audience, cookieName string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience, cookieName: cookieName}
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*User, error) {
	if len(v.secret) == 0 {
		return nil, ErrNotConfigured
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("invalid session token: missing subject")
	}
	return &User{ID: c.Subject, Email: c.Email}, nil
}

// FromRequest verifies the bearer token, or the session cookie when there
// is no Authorization header.
func (v *Verifier) FromRequest(r *http.Request) (*User, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return nil, ErrNoToken
		}
		return v.Verify(token)
	}
	if v.cookieName != "" {
		if c, err := r.Cookie(v.cookieName); err == nil && c.Value != "" {
			return v.Verify(c.Value)
		}
	}
	return nil, ErrNoToken
}

// Issue signs a session token for userID. Used by tooling and tests.
func (v *Verifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	now := time.Now()
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user set by Middleware.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil
}

// Middleware rejects requests without a valid session with 401.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.FromRequest(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// Optional attaches the user when a valid session is present and never
// rejects.
func Optional(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := v.FromRequest(r); err == nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}
