package domain

import (
	"strings"
	"time"
)

// Role enumerates the closed set of account roles. There is no dynamic role
// table; authorization derives from the static permission catalog in rbac.go.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// ParseRole maps a case-insensitive role name onto the closed enum.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleAnalyst:
		return RoleAnalyst, true
	case RoleViewer:
		return RoleViewer, true
	default:
		return "", false
	}
}

// Valid reports whether the role is one of the enumerated values.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID                  string
	Username            string
	Email               string
	FullName            string
	PasswordDigest      string
	Role                Role
	IsActive            bool
	IsLocked            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockExpired reports whether a countdown lock has elapsed at the given
// instant. Administrative locks carry no LockedUntil and never expire on
// their own.
func (u *User) LockExpired(at time.Time) bool {
	if u == nil || !u.IsLocked {
		return false
	}
	if u.LockedUntil == nil {
		return false
	}
	return !at.Before(*u.LockedUntil)
}

// LockRemaining returns how long a countdown lock still has to run at the
// given instant; zero for unlocked accounts and for administrative locks.
func (u *User) LockRemaining(at time.Time) time.Duration {
	if u == nil || !u.IsLocked || u.LockedUntil == nil {
		return 0
	}
	remaining := u.LockedUntil.Sub(at)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanAuthenticate reports whether the account may hold a valid session at
// the given instant: active and not under a still-running lock.
func (u *User) CanAuthenticate(at time.Time) bool {
	if u == nil || !u.IsActive {
		return false
	}
	if u.IsLocked && !u.LockExpired(at) {
		return false
	}
	return true
}

// PasswordHistoryEntry tracks a superseded password digest for reuse
// prevention. At most the five most recent entries are retained per user.
type PasswordHistoryEntry struct {
	ID        string
	UserID    string
	Digest    string
	CreatedAt time.Time
}

// PasswordHistoryDepth bounds the reuse-prevention ring per user.
const PasswordHistoryDepth = 5
