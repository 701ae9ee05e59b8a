package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/middleware"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// PermissionGuard builds route middleware enforcing a single permission.
type PermissionGuard func(permission domain.Permission) gin.HandlerFunc

// UserHandler exposes account administration endpoints plus the self-service
// password change.
type UserHandler struct {
	users *usecase.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes binds user administration routes. Each route is guarded by
// the permission it exercises; the service layer checks again before acting.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup, guard PermissionGuard) {
	if r == nil || guard == nil {
		return
	}

	r.POST("", guard(domain.PermissionUserCreate), h.CreateUser)
	r.GET("", guard(domain.PermissionUserRead), h.ListUsers)
	r.GET("/:user_id", guard(domain.PermissionUserRead), h.GetUser)
	r.DELETE("/:user_id", guard(domain.PermissionUserDelete), h.DeleteUser)
	r.POST("/:user_id/lock", guard(domain.PermissionUserLock), h.LockUser)
	r.POST("/:user_id/unlock", guard(domain.PermissionUserUnlock), h.UnlockUser)
	r.PUT("/:user_id/role", guard(domain.PermissionRoleChange), h.ChangeRole)
	r.POST("/:user_id/password/reset", guard(domain.PermissionPasswordReset), h.ResetPassword)
}

// CreateUser provisions a new account.
func (h *UserHandler) CreateUser(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user payload"))
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), actor, usecase.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrPasswordPolicyViolation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
			return
		}
		cases := []ErrorCase{
			{Err: usecase.ErrUserExists, Status: http.StatusConflict, Message: "username or email already exists"},
			{Err: usecase.ErrUnknownRole, Status: http.StatusBadRequest, Message: "unknown role"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to create user")
		return
	}

	c.JSON(http.StatusCreated, newUserSummary(*user))
}

// ListUsers returns a page of accounts.
func (h *UserHandler) ListUsers(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	limit := parseQueryInt(c, "limit", 0)
	offset := parseQueryInt(c, "offset", 0)

	users, err := h.users.ListUsers(c.Request.Context(), actor, limit, offset)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to list users")
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, newUserSummary(user))
	}

	c.JSON(http.StatusOK, UserListResponse{Users: summaries, Total: len(summaries)})
}

// GetUser returns a single account by identifier.
func (h *UserHandler) GetUser(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
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

	user, err := h.users.GetUser(c.Request.Context(), actor, userID)
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases(), http.StatusServiceUnavailable, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

// DeleteUser removes an account and its sessions.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
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

	if err := h.users.DeleteUser(c.Request.Context(), actor, userID); err != nil {
		RespondWithMappedError(c, err, userErrorCases(), http.StatusServiceUnavailable, "failed to delete user")
		return
	}

	c.Status(http.StatusNoContent)
}

// LockUser applies an administrative lock with no automatic expiry.
func (h *UserHandler) LockUser(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
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

	if err := h.users.LockUser(c.Request.Context(), actor, userID); err != nil {
		RespondWithMappedError(c, err, userErrorCases(), http.StatusServiceUnavailable, "failed to lock user")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account locked"})
}

// UnlockUser clears a lock regardless of how it was applied.
func (h *UserHandler) UnlockUser(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
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

	if err := h.users.UnlockUser(c.Request.Context(), actor, userID); err != nil {
		RespondWithMappedError(c, err, userErrorCases(), http.StatusServiceUnavailable, "failed to unlock user")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account unlocked"})
}

// ChangeRole reassigns the target account's role.
func (h *UserHandler) ChangeRole(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
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

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role is required"))
		return
	}

	if err := h.users.ChangeRole(c.Request.Context(), actor, userID, req.Role); err != nil {
		cases := append(userErrorCases(),
			ErrorCase{Err: usecase.ErrUnknownRole, Status: http.StatusBadRequest, Message: "unknown role"},
		)
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to change role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role updated"})
}

// ResetPassword sets a new password for the target account and revokes its
// sessions.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
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

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "new_password is required"))
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), actor, userID, req.NewPassword); err != nil {
		if errors.Is(err, usecase.ErrPasswordPolicyViolation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
			return
		}
		cases := append(userErrorCases(),
			ErrorCase{Err: usecase.ErrPasswordReuse, Status: http.StatusConflict, Message: "password was used recently"},
		)
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}

// ChangePassword lets the authenticated account rotate its own password. The
// session presenting the request survives; all others are revoked.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user service unavailable"))
		return
	}

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	input := usecase.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}
	if session, ok := middleware.CurrentSession(c); ok && session != nil {
		input.CurrentSessionID = session.ID
	}

	if err := h.users.ChangePassword(c.Request.Context(), actor, input); err != nil {
		if errors.Is(err, usecase.ErrPasswordPolicyViolation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
			return
		}
		cases := []ErrorCase{
			{Err: usecase.ErrCurrentPasswordInvalid, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPasswordReuse, Status: http.StatusConflict, Message: "password was used recently"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
		}
		RespondWithMappedError(c, err, cases, http.StatusServiceUnavailable, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

// userErrorCases covers the mappings shared by the administration endpoints.
func userErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		{Err: usecase.ErrSelfTarget, Status: http.StatusConflict, Message: "action cannot target own account"},
		{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "permission denied"},
	}
}

// requireActor pulls the authenticated account placed in the context by the
// auth middleware.
func requireActor(c *gin.Context) (*domain.User, bool) {
	actor, ok := middleware.CurrentUser(c)
	if !ok || actor == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return nil, false
	}

	return actor, true
}

func pathUserID(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return "", false
	}
	return userID, true
}

func parseQueryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
