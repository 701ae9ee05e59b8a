package domain

import "time"

// Session timeout policy. A session stays valid only while both clocks are
// inside their windows: the idle clock resets on activity, the absolute
// clock is fixed at creation.
const (
	SessionIdleTimeout     = 30 * time.Minute
	SessionAbsoluteTimeout = 8 * time.Hour
)

// Session represents a persisted bearer session. The raw token never rests
// in the store; records are keyed by its SHA-256 digest. Signature is an
// HMAC over the raw token and owning user id, so a record whose user id has
// been tampered with fails validation even with store access.
type Session struct {
	ID             string
	UserID         string
	TokenDigest    string
	Signature      string
	SourceAddress  *string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// IdleDeadline returns the instant at which the idle window closes.
func (s Session) IdleDeadline(idle time.Duration) time.Time {
	return s.LastActivityAt.Add(idle)
}

// AbsoluteDeadline returns the instant at which the absolute window closes.
func (s Session) AbsoluteDeadline(absolute time.Duration) time.Time {
	return s.CreatedAt.Add(absolute)
}

// Expired reports whether either timeout has elapsed at the supplied moment.
func (s Session) Expired(at time.Time, idle, absolute time.Duration) bool {
	if !at.Before(s.IdleDeadline(idle)) {
		return true
	}
	return !at.Before(s.AbsoluteDeadline(absolute))
}

// Touch refreshes the idle clock when activity occurs.
func (s *Session) Touch(at time.Time) {
	s.LastActivityAt = at
}
