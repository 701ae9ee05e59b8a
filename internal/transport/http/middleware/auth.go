package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// BearerToken extracts the opaque session token from the Authorization
// header.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

// RequireSession resolves the bearer token to a session and its owner. The
// rejection message is the same for every failure cause; the trail records
// the specifics.
func RequireSession(auth *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing bearer token"))
			return
		}

		session, user, err := auth.ValidateSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrSessionInvalid) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session is not valid"))
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				newErrorResponse(c, "authentication unavailable"))
			return
		}

		storeIdentity(c, session, user)
		c.Next()
	}
}

// RequirePermission authenticates the bearer token and requires one
// permission in a single step. A dead session and a missing permission
// draw the same 403, so the response never tells which check failed.
func RequirePermission(auth *usecase.AuthService, permission domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing bearer token"))
			return
		}

		user, err := auth.Authorize(c.Request.Context(), token, permission)
		if err != nil {
			if errors.Is(err, usecase.ErrPermissionDenied) {
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "permission denied"))
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				newErrorResponse(c, "authentication unavailable"))
			return
		}

		storeIdentity(c, nil, user)
		c.Next()
	}
}

func storeIdentity(c *gin.Context, session *domain.Session, user *domain.User) {
	c.Set(UserIDKey, user.ID)
	c.Set(UserKey, user)
	if session != nil {
		c.Set(SessionKey, session)
	}
}

// CurrentUser retrieves the authenticated account from the request context.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	value, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok
}

// CurrentSession retrieves the resolved session from the request context.
func CurrentSession(c *gin.Context) (*domain.Session, bool) {
	value, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*domain.Session)
	return session, ok
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
