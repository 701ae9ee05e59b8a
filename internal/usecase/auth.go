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
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/security"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/telemetry"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided username or password are
	// incorrect. The message never distinguishes an unknown username from a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is locked. The message never
	// distinguishes a failed-login lockout from an administrative lock.
	ErrAccountLocked = errors.New("account is locked")
	// ErrSessionInvalid indicates the presented session token is not valid.
	// The message never reveals which validation check failed.
	ErrSessionInvalid = errors.New("session is not valid")
	// ErrPermissionDenied indicates the caller lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// AccountLockedError carries the remaining lock duration alongside the
// generic sentinel. RetryAfter is zero for administrative locks, which have
// no automatic expiry.
type AccountLockedError struct {
	RetryAfter time.Duration
}

// Error implements error with a message that stays identical across lock
// causes.
func (e *AccountLockedError) Error() string {
	return ErrAccountLocked.Error()
}

// Is lets errors.Is match the ErrAccountLocked sentinel.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// LoginInput captures a credential presentation.
type LoginInput struct {
	Username      string
	Password      string
	SourceAddress *string
}

// LoginResult carries the raw session token issued on success. The token is
// returned exactly once and never persisted.
type LoginResult struct {
	Token   string
	Session domain.Session
	User    domain.User
}

// dummyDigest absorbs a verification pass when no real digest applies, so
// lookup misses cost the same as a wrong password.
const dummyDigest = "argon2id$v=19$m=65536,t=2,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthService is the authentication facade. It is the sole writer of users,
// sessions, and audit events; collaborating modules go through it rather
// than touching the repositories directly.
type AuthService struct {
	cfg      *config.AppConfig
	users    port.UserRepository
	sessions port.SessionRepository
	recorder *AuditRecorder
	perms    *PermissionService
	signer   *security.SessionSigner
	alarms   port.AlarmPublisher
	metrics  *telemetry.Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs the facade.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	recorder *AuditRecorder,
	perms *PermissionService,
	signer *security.SessionSigner,
	alarms port.AlarmPublisher,
	metrics *telemetry.Provider,
	logger *zap.Logger,
) (*AuthService, error) {
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
	if signer == nil {
		return nil, fmt.Errorf("session signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		recorder: recorder,
		perms:    perms,
		signer:   signer,
		alarms:   alarms,
		metrics:  metrics,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func (s *AuthService) idleTTL() time.Duration {
	if s.cfg.Session.IdleTTL > 0 {
		return s.cfg.Session.IdleTTL
	}
	return domain.SessionIdleTimeout
}

func (s *AuthService) absoluteTTL() time.Duration {
	if s.cfg.Session.AbsoluteTTL > 0 {
		return s.cfg.Session.AbsoluteTTL
	}
	return domain.SessionAbsoluteTimeout
}

func (s *AuthService) lockoutThreshold() int {
	if s.cfg.Lockout.Threshold > 0 {
		return s.cfg.Lockout.Threshold
	}
	return 5
}

func (s *AuthService) lockoutWindow() time.Duration {
	if s.cfg.Lockout.Window > 0 {
		return s.cfg.Lockout.Window
	}
	return 30 * time.Minute
}

// Login verifies credentials and issues a session. Failures never reveal
// whether the username exists; a lookup miss still pays for one
// verification pass.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(input.Username)
	now := s.now()

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if _, verifyErr := security.VerifyPassword(input.Password, dummyDigest); verifyErr != nil {
				s.logger.Warn("dummy verification failed", zap.Error(verifyErr))
			}
			if err := s.recordLoginFailure(ctx, username, input.SourceAddress, now, map[string]any{
				"reason": "unknown_username",
			}); err != nil {
				return nil, err
			}
			s.metrics.RecordLogin(telemetry.LoginResultInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	user, err = s.liftExpiredLock(ctx, user, input.SourceAddress)
	if err != nil {
		return nil, err
	}

	if user.IsLocked {
		if err := s.recordLoginFailure(ctx, user.Username, input.SourceAddress, now, map[string]any{
			"reason": "account_locked",
		}); err != nil {
			return nil, err
		}
		s.metrics.RecordLogin(telemetry.LoginResultLocked)
		return nil, &AccountLockedError{RetryAfter: user.LockRemaining(now)}
	}

	if !user.IsActive {
		// Burn a verification pass so a disabled account is not
		// distinguishable from a wrong password by timing.
		if _, verifyErr := security.VerifyPassword(input.Password, user.PasswordDigest); verifyErr != nil {
			s.logger.Warn("verification failed", zap.String("user_id", user.ID), zap.Error(verifyErr))
		}
		if err := s.recordLoginFailure(ctx, user.Username, input.SourceAddress, now, map[string]any{
			"reason": "account_inactive",
		}); err != nil {
			return nil, err
		}
		s.metrics.RecordLogin(telemetry.LoginResultInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	match, err := security.VerifyPassword(input.Password, user.PasswordDigest)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, s.handleFailedPassword(ctx, user, input.SourceAddress, now)
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("reset failure counter: %w", err)
	}

	token, session, err := s.issueSession(ctx, user, input.SourceAddress, now)
	if err != nil {
		return nil, err
	}

	if err := s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp:     now,
		EventType:     domain.EventLoginSuccess,
		Username:      user.Username,
		Details:       map[string]any{"session_id": session.ID},
		SourceAddress: input.SourceAddress,
	}); err != nil {
		return nil, err
	}
	s.metrics.RecordLogin(telemetry.LoginResultSuccess)

	sanitized := *user
	sanitized.PasswordDigest = ""

	return &LoginResult{Token: token, Session: session, User: sanitized}, nil
}

// handleFailedPassword advances the failure counter and trips the lockout
// when the incremented value reaches the threshold. The repository performs
// the increment as one linearizable step, so exactly one of any set of
// concurrent failures observes the threshold value and emits ACCOUNT_LOCKED.
func (s *AuthService) handleFailedPassword(ctx context.Context, user *domain.User, source *string, now time.Time) error {
	threshold := s.lockoutThreshold()
	lockUntil := now.Add(s.lockoutWindow())

	attempts, locked, err := s.users.RecordLoginFailure(ctx, user.ID, threshold, lockUntil, now)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}

	if err := s.recordLoginFailure(ctx, user.Username, source, now, map[string]any{
		"reason":   "invalid_password",
		"attempts": attempts,
	}); err != nil {
		return err
	}

	if locked && attempts == threshold {
		if err := s.recorder.Record(ctx, domain.AuditEvent{
			Timestamp: now,
			EventType: domain.EventAccountLocked,
			Username:  user.Username,
			Details: map[string]any{
				"attempts":     attempts,
				"locked_until": lockUntil.Format(time.RFC3339),
			},
			SourceAddress: source,
		}); err != nil {
			return err
		}
		s.metrics.RecordLockout()
		s.publishAccountLocked(ctx, user, attempts, &lockUntil, false, now)
	}

	if locked {
		retry := lockUntil.Sub(now)
		if attempts != threshold {
			if fresh, err := s.users.GetByID(ctx, user.ID); err == nil {
				retry = fresh.LockRemaining(now)
			}
		}
		s.metrics.RecordLogin(telemetry.LoginResultLocked)
		return &AccountLockedError{RetryAfter: retry}
	}

	s.metrics.RecordLogin(telemetry.LoginResultInvalidCredentials)
	return ErrInvalidCredentials
}

func (s *AuthService) recordLoginFailure(ctx context.Context, username string, source *string, now time.Time, details map[string]any) error {
	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp:     now,
		EventType:     domain.EventLoginFailure,
		Username:      username,
		Details:       details,
		SourceAddress: source,
	})
}

// liftExpiredLock clears a countdown lock whose window has elapsed. The
// clearing write is conditional in the repository, so of any number of
// concurrent readers only one observes the transition and writes the
// ACCOUNT_UNLOCKED record.
func (s *AuthService) liftExpiredLock(ctx context.Context, user *domain.User, source *string) (*domain.User, error) {
	now := s.now()
	if user == nil || !user.LockExpired(now) {
		return user, nil
	}

	cleared, err := s.users.ClearLock(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("clear expired lock: %w", err)
	}
	if cleared {
		if err := s.recorder.Record(ctx, domain.AuditEvent{
			Timestamp:     now,
			EventType:     domain.EventAccountUnlocked,
			Username:      user.Username,
			Details:       map[string]any{"reason": "lock_expired"},
			SourceAddress: source,
		}); err != nil {
			return nil, err
		}
	}

	updated := *user
	updated.IsLocked = false
	updated.LockedUntil = nil
	updated.FailedLoginAttempts = 0
	return &updated, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User, source *string, now time.Time) (string, domain.Session, error) {
	token, err := security.GenerateSessionToken()
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("generate session token: %w", err)
	}

	session := domain.Session{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		TokenDigest:    security.DigestToken(token),
		Signature:      s.signer.Sign(token, user.ID),
		SourceAddress:  source,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return "", domain.Session{}, fmt.Errorf("store session: %w", err)
	}

	return token, session, nil
}

// ValidateSession resolves a bearer token to its session and owner. Every
// failure is terminal: the record, if one exists, is removed so the token
// cannot be retried, and the caller only ever learns that the session is
// not valid.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.Session, *domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, ErrSessionInvalid
	}

	session, err := s.sessions.GetByTokenDigest(ctx, security.DigestToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("fetch session: %w", err)
	}

	if !s.signer.Verify(token, session.UserID, session.Signature) {
		s.discardSession(ctx, session)
		return nil, nil, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.discardSession(ctx, session)
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("lookup session owner: %w", err)
	}

	user, err = s.liftExpiredLock(ctx, user, session.SourceAddress)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	idleExpired := !now.Before(session.IdleDeadline(s.idleTTL()))
	absoluteExpired := !now.Before(session.AbsoluteDeadline(s.absoluteTTL()))
	if idleExpired || absoluteExpired {
		s.discardSession(ctx, session)
		reason := "idle_timeout"
		if absoluteExpired {
			reason = "absolute_timeout"
		}
		if err := s.recorder.Record(ctx, domain.AuditEvent{
			Timestamp:     now,
			EventType:     domain.EventSessionExpired,
			Username:      user.Username,
			Details:       map[string]any{"session_id": session.ID, "reason": reason},
			SourceAddress: session.SourceAddress,
		}); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrSessionInvalid
	}

	if !user.IsActive || user.IsLocked {
		s.discardSession(ctx, session)
		return nil, nil, ErrSessionInvalid
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("refresh session activity: %w", err)
	}
	session.Touch(now)

	sanitized := *user
	sanitized.PasswordDigest = ""

	return session, &sanitized, nil
}

// discardSession removes a session record that failed validation. Removal
// is best-effort; validation fails closed either way.
func (s *AuthService) discardSession(ctx context.Context, session *domain.Session) {
	if _, err := s.sessions.DeleteByTokenDigest(ctx, session.TokenDigest); err != nil {
		s.logger.Warn("discard session failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

// Logout terminates the session for the presented token. It is idempotent:
// a token with no backing session is a silent no-op, and LOGOUT is recorded
// only when a record was actually removed.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	digest := security.DigestToken(token)
	session, err := s.sessions.GetByTokenDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fetch session: %w", err)
	}

	username := session.UserID
	if user, err := s.users.GetByID(ctx, session.UserID); err == nil {
		username = user.Username
	}

	existed, err := s.sessions.DeleteByTokenDigest(ctx, digest)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !existed {
		return nil
	}

	now := s.now()
	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp:     now,
		EventType:     domain.EventLogout,
		Username:      username,
		Details:       map[string]any{"session_id": session.ID},
		SourceAddress: session.SourceAddress,
	})
}

// Authorize resolves the token to its owner and answers the permission
// check in one step. A missing permission is recorded as ACCESS_DENIED.
// Both failure modes answer with the same denial, so the caller cannot
// tell a dead session from a missing permission; the audit trail holds
// the precise cause.
func (s *AuthService) Authorize(ctx context.Context, token string, permission domain.Permission) (*domain.User, error) {
	session, user, err := s.ValidateSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}

	if !s.perms.HasPermission(user, permission) {
		if err := s.recorder.Record(ctx, domain.AuditEvent{
			Timestamp: s.now(),
			EventType: domain.EventAccessDenied,
			Username:  user.Username,
			Details: map[string]any{
				"permission": string(permission),
				"session_id": session.ID,
			},
			SourceAddress: session.SourceAddress,
		}); err != nil {
			return nil, err
		}
		return nil, ErrPermissionDenied
	}

	return user, nil
}

func (s *AuthService) publishAccountLocked(ctx context.Context, user *domain.User, attempts int, until *time.Time, manual bool, at time.Time) {
	if s.alarms == nil {
		return
	}
	alert := domain.AccountLockedAlert{
		EventID:     uuid.NewString(),
		UserID:      user.ID,
		Username:    user.Username,
		Attempts:    attempts,
		LockedAt:    at,
		LockedUntil: until,
		Manual:      manual,
	}
	if err := s.alarms.PublishAccountLocked(ctx, alert); err != nil {
		s.logger.Warn("publish account locked alert failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}
