package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/middleware"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// AuthHandler exposes authentication endpoints backed by the auth facade.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.Login)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.Login)
	}

	r.POST("/logout", h.Logout)
	r.GET("/session", middleware.RequireSession(h.auth), h.SessionInfo)
}

// Login validates the provided credentials and returns an opaque session
// token on success.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication unavailable"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	}
	if ip := strings.TrimSpace(c.ClientIP()); ip != "" {
		input.SourceAddress = &ip
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:   result.Token,
		Session: newSessionPayload(result.Session),
		User:    newUserSummary(result.User),
	})
}

// respondLoginError maps authentication failures to transport responses. The
// locked answer carries a Retry-After hint but never the reason for the lock.
func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var lockedErr *usecase.AccountLockedError
	if errors.As(err, &lockedErr) {
		if seconds := retryAfterSeconds(lockedErr.RetryAfter); seconds > 0 {
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.JSON(http.StatusLocked, NewErrorResponse(c, "account is temporarily locked"))
		return
	}

	switch {
	case errors.Is(err, usecase.ErrAccountLocked):
		c.JSON(http.StatusLocked, NewErrorResponse(c, "account is temporarily locked"))
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	default:
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication unavailable"))
	}
}

// Logout terminates the caller's session. Repeating the call, or calling it
// without a token, still answers 204.
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication unavailable"))
		return
	}

	token, ok := middleware.BearerToken(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "logout unavailable"))
		return
	}

	c.Status(http.StatusNoContent)
}

// SessionInfo describes the caller's current session and account.
func (h *AuthHandler) SessionInfo(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok || user == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	session, ok := middleware.CurrentSession(c)
	if !ok || session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	payload := newSessionPayload(*session)
	payload.IsCurrent = true

	c.JSON(http.StatusOK, SessionInfoResponse{
		Session: payload,
		User:    newUserSummary(*user),
	})
}

// retryAfterSeconds rounds a lock duration up to whole seconds.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	return seconds
}
