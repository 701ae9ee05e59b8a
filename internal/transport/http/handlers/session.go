package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/middleware"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// SessionHandler exposes administrative session endpoints.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session administration routes.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, guard PermissionGuard) {
	if r == nil || guard == nil {
		return
	}

	r.GET("", guard(domain.PermissionSessionList), h.ListSessions)
	r.DELETE("/:session_id", guard(domain.PermissionSessionRevoke), h.RevokeSession)
}

// ListSessions returns every session still inside both validity windows.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), actor)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, newSessionListResponse(c, sessions))
}

// ListUserSessions returns the active sessions belonging to one account.
func (h *SessionHandler) ListUserSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListUserSessions(c.Request.Context(), actor, userID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, newSessionListResponse(c, sessions))
}

// RevokeSession terminates a session by identifier.
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id is required"))
		return
	}

	if err := h.sessions.RevokeSession(c.Request.Context(), actor, sessionID); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to revoke session")
		return
	}

	c.Status(http.StatusNoContent)
}

// newSessionListResponse converts sessions for transport, flagging the
// caller's own session when it appears in the list.
func newSessionListResponse(c *gin.Context, sessions []domain.Session) SessionListResponse {
	currentID := ""
	if current, ok := middleware.CurrentSession(c); ok && current != nil {
		currentID = current.ID
	}

	payloads := make([]SessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payload := newSessionPayload(session)
		if currentID != "" && session.ID == currentID {
			payload.IsCurrent = true
		}
		payloads = append(payloads, payload)
	}

	return SessionListResponse{Sessions: payloads, Total: len(payloads)}
}
