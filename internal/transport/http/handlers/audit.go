package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// AuditHandler exposes read access to the audit trail.
type AuditHandler struct {
	audit *usecase.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes binds the audit query route.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup, guard PermissionGuard) {
	if r == nil || guard == nil {
		return
	}

	r.GET("", guard(domain.PermissionAuditRead), h.Query)
}

// Query returns audit events matching the optional username, event_type,
// since and limit query parameters, ordered by sequence ascending.
func (h *AuditHandler) Query(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	input := usecase.QueryInput{
		Username:  strings.TrimSpace(c.Query("username")),
		EventType: strings.TrimSpace(c.Query("event_type")),
		Limit:     parseQueryInt(c, "limit", 0),
	}

	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "since must be an RFC3339 timestamp"))
			return
		}
		input.Since = &since
	}

	events, err := h.audit.Query(c.Request.Context(), actor, input)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrUnknownEventType, Status: http.StatusBadRequest, Message: "unknown event type"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to query audit trail")
		return
	}

	payloads := make([]AuditEventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, newAuditEventPayload(event))
	}

	c.JSON(http.StatusOK, AuditListResponse{Events: payloads, Total: len(payloads)})
}
