package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a user record as returned by the API. Credential
// material never appears here.
type UserSummary struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	IsLocked    bool       `json:"is_locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SessionPayload provides a view of a session record. The raw token and its
// signature are never serialized.
type SessionPayload struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	SourceAddress  *string   `json:"source_address,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IsCurrent      bool      `json:"is_current,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the opaque session token and the authenticated
// identity after a successful login.
type LoginResponse struct {
	Token   string         `json:"token"`
	Session SessionPayload `json:"session"`
	User    UserSummary    `json:"user"`
}

// SessionInfoResponse describes the caller's current session.
type SessionInfoResponse struct {
	Session SessionPayload `json:"session"`
	User    UserSummary    `json:"user"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// CreateUserRequest defines the payload for provisioning a new account.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// UserListResponse wraps a collection of user summaries.
type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Total int           `json:"total"`
}

// ChangePasswordRequest defines the payload for a self-service password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ResetPasswordRequest defines the payload for an administrative password reset.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangeRoleRequest defines the payload for reassigning a user's role.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// AuditEventPayload describes a single audit trail entry.
type AuditEventPayload struct {
	Sequence      int64          `json:"sequence"`
	Timestamp     time.Time      `json:"timestamp"`
	EventType     string         `json:"event_type"`
	Username      string         `json:"username"`
	SourceAddress *string        `json:"source_address,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// AuditListResponse wraps an ordered slice of audit events.
type AuditListResponse struct {
	Events []AuditEventPayload `json:"events"`
	Total  int                 `json:"total"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newUserSummary converts a domain user to a summary suitable for API responses.
func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        string(user.Role),
		IsActive:    user.IsActive,
		IsLocked:    user.IsLocked,
		LockedUntil: user.LockedUntil,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

// newSessionPayload converts a domain session for API responses.
func newSessionPayload(session domain.Session) SessionPayload {
	return SessionPayload{
		ID:             session.ID,
		UserID:         session.UserID,
		SourceAddress:  session.SourceAddress,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
	}
}

// newAuditEventPayload converts an audit event for API responses.
func newAuditEventPayload(event domain.AuditEvent) AuditEventPayload {
	return AuditEventPayload{
		Sequence:      event.Sequence,
		Timestamp:     event.Timestamp,
		EventType:     string(event.EventType),
		Username:      event.Username,
		SourceAddress: event.SourceAddress,
		Details:       event.Details,
	}
}
