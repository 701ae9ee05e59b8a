package domain

import "time"

// EventType enumerates the closed set of auditable security events.
type EventType string

const (
	EventLoginSuccess    EventType = "LOGIN_SUCCESS"
	EventLoginFailure    EventType = "LOGIN_FAILURE"
	EventLogout          EventType = "LOGOUT"
	EventUserCreated     EventType = "USER_CREATED"
	EventUserDeleted     EventType = "USER_DELETED"
	EventPasswordChanged EventType = "PASSWORD_CHANGED"
	EventPasswordReset   EventType = "PASSWORD_RESET"
	EventAccountLocked   EventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked EventType = "ACCOUNT_UNLOCKED"
	EventRoleChanged     EventType = "ROLE_CHANGED"
	EventAccessDenied    EventType = "ACCESS_DENIED"
	EventSessionExpired  EventType = "SESSION_EXPIRED"
)

// validEventTypes backs IsValidEventType; the audit store rejects anything
// outside this set so the trail stays a closed vocabulary.
var validEventTypes = map[EventType]struct{}{
	EventLoginSuccess:    {},
	EventLoginFailure:    {},
	EventLogout:          {},
	EventUserCreated:     {},
	EventUserDeleted:     {},
	EventPasswordChanged: {},
	EventPasswordReset:   {},
	EventAccountLocked:   {},
	EventAccountUnlocked: {},
	EventRoleChanged:     {},
	EventAccessDenied:    {},
	EventSessionExpired:  {},
}

// IsValidEventType reports whether the event type belongs to the closed enum.
func IsValidEventType(t EventType) bool {
	_, ok := validEventTypes[t]
	return ok
}

// AuditEvent is one append-only record in the trail. Sequence, not the
// wall clock, is the ordering authority; it is assigned by the store,
// strictly monotonic and gap-free across concurrent writers. Username is
// denormalized so records survive deletion of the user they describe.
type AuditEvent struct {
	Sequence      int64
	Timestamp     time.Time
	EventType     EventType
	Username      string
	Details       map[string]any
	SourceAddress *string
}

// AuditFilter narrows audit queries. Zero values mean "no constraint";
// results are always ordered by sequence ascending.
type AuditFilter struct {
	Username  string
	EventType EventType
	Since     *time.Time
	Limit     int
}
