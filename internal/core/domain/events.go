package domain

import "time"

// AuditWriteFailedAlarm represents the payload for authcore.alarm.audit_write_failed
// messages. It is raised whenever an audit append fails, since at that point
// the trail can no longer vouch for the operation that triggered it.
type AuditWriteFailedAlarm struct {
	EventID   string
	EventType EventType
	Username  string
	Reason    string
	FailedAt  time.Time
	Metadata  map[string]any
}

// AccountLockedAlert represents the payload for authcore.alert.account_locked
// messages mirrored to the operations bus when a lockout trips.
type AccountLockedAlert struct {
	EventID     string
	UserID      string
	Username    string
	Attempts    int
	LockedAt    time.Time
	LockedUntil *time.Time
	Manual      bool
	Metadata    map[string]any
}

// SessionPurgedEvent represents the payload for authcore.session.purged
// messages emitted by the maintenance sweep.
type SessionPurgedEvent struct {
	EventID  string
	Count    int64
	PurgedAt time.Time
	Metadata map[string]any
}
