package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/logger"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/security"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

var (
	// ErrUserExists indicates the username or email is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates no user matches the supplied identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrCurrentPasswordInvalid indicates the provided current password is incorrect.
	ErrCurrentPasswordInvalid = errors.New("current password is incorrect")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrPasswordReuse indicates the password matches one of the recently used ones.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrUnknownRole indicates the supplied role name is not part of the catalog.
	ErrUnknownRole = errors.New("unknown role")
	// ErrSelfTarget indicates an administrative action aimed at the caller's own account.
	ErrSelfTarget = errors.New("action cannot target own account")
)

// CreateUserInput captures the payload for provisioning an account.
type CreateUserInput struct {
	Username string
	Email    string
	FullName string
	Password string
	Role     string
}

// ChangePasswordInput captures the payload for a self-service password
// change. CurrentSessionID, when set, names the session to keep alive while
// every other session of the user is revoked.
type ChangePasswordInput struct {
	CurrentPassword  string
	NewPassword      string
	CurrentSessionID string
}

// UserService handles the administrative user lifecycle and password
// rotation. Every mutation lands in the audit trail before the call
// returns.
type UserService struct {
	cfg      *config.AppConfig
	users    port.UserRepository
	sessions port.SessionRepository
	recorder *AuditRecorder
	perms    *PermissionService
	policy   *security.PasswordPolicy
	alarms   port.AlarmPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	recorder *AuditRecorder,
	perms *PermissionService,
	policy *security.PasswordPolicy,
	alarms port.AlarmPublisher,
	logger *zap.Logger,
) (*UserService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if perms == nil {
		return nil, fmt.Errorf("permission service is required")
	}
	if policy == nil {
		policy = security.DefaultPasswordPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &UserService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		recorder: recorder,
		perms:    perms,
		policy:   policy,
		alarms:   alarms,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *UserService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateUser provisions an active account with the supplied role.
func (s *UserService) CreateUser(ctx context.Context, actor *domain.User, input CreateUserInput) (*domain.User, error) {
	if err := s.perms.Require(ctx, actor, domain.PermissionUserCreate); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}
	role, ok := domain.ParseRole(input.Role)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, input.Role)
	}

	if err := s.policy.Validate(input.Password, username, email, fullName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	digest, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		FullName:       fullName,
		PasswordDigest: digest,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: now,
		EventType: domain.EventUserCreated,
		Username:  user.Username,
		Details: map[string]any{
			"actor": actor.Username,
			"role":  string(role),
		},
	}); err != nil {
		return nil, err
	}

	s.logger.Info("user account created",
		zap.String("username", user.Username),
		zap.String("email", logger.MaskEmail(user.Email)),
		zap.String("role", string(role)))

	sanitized := user
	sanitized.PasswordDigest = ""
	return &sanitized, nil
}

// GetUser fetches one account for the admin surface.
func (s *UserService) GetUser(ctx context.Context, actor *domain.User, userID string) (*domain.User, error) {
	if err := s.perms.Require(ctx, actor, domain.PermissionUserRead); err != nil {
		return nil, err
	}

	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sanitized := *user
	sanitized.PasswordDigest = ""
	return &sanitized, nil
}

// ListUsers returns accounts ordered by creation time.
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User, limit, offset int) ([]domain.User, error) {
	if err := s.perms.Require(ctx, actor, domain.PermissionUserRead); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	for i := range users {
		users[i].PasswordDigest = ""
	}

	return users, nil
}

// DeleteUser removes an account and its sessions. Audit records referring
// to the deleted user survive because the trail stores the username, not a
// reference.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, userID string) error {
	if err := s.perms.Require(ctx, actor, domain.PermissionUserDelete); err != nil {
		return err
	}

	target, err := s.fetchUser(ctx, userID)
	if err != nil {
		return err
	}
	if target.ID == actor.ID {
		return fmt.Errorf("%w: cannot delete own account", ErrSelfTarget)
	}

	if err := s.users.Delete(ctx, target.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	// Session removal can be lazy here: validation fails closed once the
	// owner row is gone.
	revoked, err := s.sessions.DeleteByUser(ctx, target.ID)
	if err != nil {
		s.logger.Warn("revoke sessions for deleted user failed",
			zap.String("user_id", target.ID),
			zap.Error(err),
		)
	}

	details := map[string]any{"actor": actor.Username}
	if revoked > 0 {
		details["sessions_revoked"] = revoked
	}

	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: s.now(),
		EventType: domain.EventUserDeleted,
		Username:  target.Username,
		Details:   details,
	})
}

// LockUser applies an administrative lock with no automatic expiry.
// Locking an already locked account is a no-op without a second event.
func (s *UserService) LockUser(ctx context.Context, actor *domain.User, userID string) error {
	if err := s.perms.Require(ctx, actor, domain.PermissionUserLock); err != nil {
		return err
	}

	target, err := s.fetchUser(ctx, userID)
	if err != nil {
		return err
	}
	if target.ID == actor.ID {
		return fmt.Errorf("%w: cannot lock own account", ErrSelfTarget)
	}
	if target.IsLocked {
		return nil
	}

	now := s.now()
	if err := s.users.SetLock(ctx, target.ID, nil, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}

	revoked, err := s.sessions.DeleteByUser(ctx, target.ID)
	if err != nil {
		s.logger.Warn("revoke sessions for locked user failed",
			zap.String("user_id", target.ID),
			zap.Error(err),
		)
	}

	details := map[string]any{
		"actor":  actor.Username,
		"manual": true,
	}
	if revoked > 0 {
		details["sessions_revoked"] = revoked
	}

	if err := s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: now,
		EventType: domain.EventAccountLocked,
		Username:  target.Username,
		Details:   details,
	}); err != nil {
		return err
	}

	s.publishManualLock(ctx, target, now)
	return nil
}

// UnlockUser lifts a lock of either kind and resets the failure counter.
// Unlocking an account that is not locked is a no-op without an event.
func (s *UserService) UnlockUser(ctx context.Context, actor *domain.User, userID string) error {
	if err := s.perms.Require(ctx, actor, domain.PermissionUserUnlock); err != nil {
		return err
	}

	target, err := s.fetchUser(ctx, userID)
	if err != nil {
		return err
	}

	cleared, err := s.users.ClearLock(ctx, target.ID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("unlock user: %w", err)
	}
	if !cleared {
		return nil
	}

	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: s.now(),
		EventType: domain.EventAccountUnlocked,
		Username:  target.Username,
		Details: map[string]any{
			"actor":  actor.Username,
			"reason": "admin_unlock",
		},
	})
}

// ChangeRole moves the account to another role in the closed enum. Sessions
// survive a role change; authorization reads the role live on every check.
func (s *UserService) ChangeRole(ctx context.Context, actor *domain.User, userID, role string) error {
	if err := s.perms.Require(ctx, actor, domain.PermissionRoleChange); err != nil {
		return err
	}

	newRole, ok := domain.ParseRole(role)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownRole, role)
	}

	target, err := s.fetchUser(ctx, userID)
	if err != nil {
		return err
	}
	if target.ID == actor.ID {
		return fmt.Errorf("%w: cannot change own role", ErrSelfTarget)
	}
	if target.Role == newRole {
		return nil
	}

	now := s.now()
	if err := s.users.UpdateRole(ctx, target.ID, newRole, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}

	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: now,
		EventType: domain.EventRoleChanged,
		Username:  target.Username,
		Details: map[string]any{
			"actor":    actor.Username,
			"old_role": string(target.Role),
			"new_role": string(newRole),
		},
	})
}

// ResetPassword sets a new password on behalf of the user. Reuse rules
// apply to administrative resets the same as to self-service changes, and
// every session of the user is revoked.
func (s *UserService) ResetPassword(ctx context.Context, actor *domain.User, userID, newPassword string) error {
	if err := s.perms.Require(ctx, actor, domain.PermissionPasswordReset); err != nil {
		return err
	}

	target, err := s.fetchUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.policy.Validate(newPassword, target.Username, target.Email, target.FullName); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	used, err := s.passwordRecentlyUsed(ctx, target, newPassword)
	if err != nil {
		return err
	}
	if used {
		return ErrPasswordReuse
	}

	now := s.now()
	if err := s.rotatePassword(ctx, target, newPassword, now); err != nil {
		return err
	}

	// A reset must cut off anyone holding the old credential's sessions;
	// nothing else on the validation path would.
	if _, err := s.sessions.DeleteByUser(ctx, target.ID); err != nil {
		return fmt.Errorf("revoke sessions after reset: %w", err)
	}

	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: now,
		EventType: domain.EventPasswordReset,
		Username:  target.Username,
		Details:   map[string]any{"actor": actor.Username},
	})
}

// ChangePassword rotates the caller's own password after verifying the
// current one. Other sessions of the user are revoked; the session named in
// CurrentSessionID stays alive.
func (s *UserService) ChangePassword(ctx context.Context, actor *domain.User, input ChangePasswordInput) error {
	if actor == nil {
		return ErrPermissionDenied
	}
	if strings.TrimSpace(input.CurrentPassword) == "" {
		return fmt.Errorf("current password is required")
	}

	// The actor copy from the session layer is sanitized; fetch the row
	// that still carries the digest.
	user, err := s.fetchUser(ctx, actor.ID)
	if err != nil {
		return err
	}

	match, err := security.VerifyPassword(input.CurrentPassword, user.PasswordDigest)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !match {
		return ErrCurrentPasswordInvalid
	}

	if err := s.policy.Validate(input.NewPassword, user.Username, user.Email, user.FullName); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	used, err := s.passwordRecentlyUsed(ctx, user, input.NewPassword)
	if err != nil {
		return err
	}
	if used {
		return ErrPasswordReuse
	}

	now := s.now()
	if err := s.rotatePassword(ctx, user, input.NewPassword, now); err != nil {
		return err
	}

	revoked, err := s.revokeOtherSessions(ctx, user.ID, input.CurrentSessionID, now)
	if err != nil {
		return fmt.Errorf("revoke other sessions: %w", err)
	}

	details := map[string]any{}
	if revoked > 0 {
		details["sessions_revoked"] = revoked
	}

	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: now,
		EventType: domain.EventPasswordChanged,
		Username:  user.Username,
		Details:   details,
	})
}

func (s *UserService) fetchUser(ctx context.Context, userID string) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	return user, nil
}

// passwordRecentlyUsed answers the reuse question by re-verifying the
// candidate against the current digest and each retained history entry.
// Digest equality would always miss because every hash carries a fresh
// salt; the loop is bounded by the history depth.
func (s *UserService) passwordRecentlyUsed(ctx context.Context, user *domain.User, candidate string) (bool, error) {
	match, err := security.VerifyPassword(candidate, user.PasswordDigest)
	if err != nil {
		return false, fmt.Errorf("verify against current digest: %w", err)
	}
	if match {
		return true, nil
	}

	entries, err := s.users.ListPasswordHistory(ctx, user.ID, domain.PasswordHistoryDepth)
	if err != nil {
		return false, fmt.Errorf("list password history: %w", err)
	}

	for _, entry := range entries {
		match, err := security.VerifyPassword(candidate, entry.Digest)
		if err != nil {
			return false, fmt.Errorf("verify against history entry: %w", err)
		}
		if match {
			return true, nil
		}
	}

	return false, nil
}

// rotatePassword installs the new digest and pushes the superseded one into
// the bounded history ring.
func (s *UserService) rotatePassword(ctx context.Context, user *domain.User, newPassword string, at time.Time) error {
	digest, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, digest, at); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	entry := domain.PasswordHistoryEntry{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Digest:    user.PasswordDigest,
		CreatedAt: at,
	}
	if err := s.users.AddPasswordHistory(ctx, entry); err != nil {
		return fmt.Errorf("add password history: %w", err)
	}
	if err := s.users.TrimPasswordHistory(ctx, user.ID, domain.PasswordHistoryDepth); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}

	user.PasswordDigest = digest
	return nil
}

func (s *UserService) revokeOtherSessions(ctx context.Context, userID, keepSessionID string, now time.Time) (int, error) {
	idleCutoff := now.Add(-s.sessionIdleTTL())
	absoluteCutoff := now.Add(-s.sessionAbsoluteTTL())

	sessions, err := s.sessions.ListActiveByUser(ctx, userID, idleCutoff, absoluteCutoff)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	revoked := 0
	for _, session := range sessions {
		if session.ID == keepSessionID {
			continue
		}
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return revoked, fmt.Errorf("delete session %s: %w", session.ID, err)
		}
		revoked++
	}

	return revoked, nil
}

func (s *UserService) sessionIdleTTL() time.Duration {
	if s.cfg.Session.IdleTTL > 0 {
		return s.cfg.Session.IdleTTL
	}
	return domain.SessionIdleTimeout
}

func (s *UserService) sessionAbsoluteTTL() time.Duration {
	if s.cfg.Session.AbsoluteTTL > 0 {
		return s.cfg.Session.AbsoluteTTL
	}
	return domain.SessionAbsoluteTimeout
}

func (s *UserService) publishManualLock(ctx context.Context, target *domain.User, at time.Time) {
	if s.alarms == nil {
		return
	}
	alert := domain.AccountLockedAlert{
		EventID:  uuid.NewString(),
		UserID:   target.ID,
		Username: target.Username,
		LockedAt: at,
		Manual:   true,
	}
	if err := s.alarms.PublishAccountLocked(ctx, alert); err != nil {
		s.logger.Warn("publish manual lock alert failed",
			zap.String("user_id", target.ID),
			zap.Error(err),
		)
	}
}
