package domain

import "time"

// AuthSession is the persisted login. The token is opaque and never sent to the
// bot backend.
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
}

func (s *AuthSession) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
