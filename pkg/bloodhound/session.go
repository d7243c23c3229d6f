package bloodhound

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the bearer credential for one authenticated run. It is an
// explicit value handed to every operation; a nil Session means
// unauthenticated. The token string itself is the credential; UserID and
// ExpiresAt are decoded from it for diagnostics and local expiry checks.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the session token's expiry has passed. Tokens
// without a decodable expiry never expire locally; the server still
// enforces its own lifetime.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}

// newSession decodes the token's registered claims without verifying the
// signature. Verification belongs to the server; the client only wants the
// expiry and subject. An undecodable token is kept as an opaque credential.
func newSession(token string) *Session {
	s := &Session{Token: token}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return s
	}

	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.Subject != "" {
		s.UserID = claims.Subject
	}
	return s
}
