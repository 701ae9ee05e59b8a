package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/telemetry"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

// ErrSessionNotFound indicates no session matches the supplied identifier.
var ErrSessionNotFound = errors.New("session not found")

// SessionService exposes the administrative session surface and the
// background expiry sweep. Interactive validation lives on AuthService;
// this service only reads and revokes.
type SessionService struct {
	cfg      *config.AppConfig
	sessions port.SessionRepository
	users    port.UserRepository
	recorder *AuditRecorder
	perms    *PermissionService
	alarms   port.AlarmPublisher
	metrics  *telemetry.Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(
	cfg *config.AppConfig,
	sessions port.SessionRepository,
	users port.UserRepository,
	recorder *AuditRecorder,
	perms *PermissionService,
	alarms port.AlarmPublisher,
	metrics *telemetry.Provider,
	logger *zap.Logger,
) (*SessionService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if perms == nil {
		return nil, fmt.Errorf("permission service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &SessionService{
		cfg:      cfg,
		sessions: sessions,
		users:    users,
		recorder: recorder,
		perms:    perms,
		alarms:   alarms,
		metrics:  metrics,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ListActive returns every session still inside both timeout windows,
// newest activity first.
func (s *SessionService) ListActive(ctx context.Context, actor *domain.User) ([]domain.Session, error) {
	if err := s.perms.Require(ctx, actor, domain.PermissionSessionList); err != nil {
		return nil, err
	}

	now := s.now()
	sessions, err := s.sessions.ListActive(ctx, now.Add(-s.idleTTL()), now.Add(-s.absoluteTTL()))
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	return sessions, nil
}

// ListUserSessions returns the active sessions of one user.
func (s *SessionService) ListUserSessions(ctx context.Context, actor *domain.User, userID string) ([]domain.Session, error) {
	if err := s.perms.Require(ctx, actor, domain.PermissionSessionList); err != nil {
		return nil, err
	}

	now := s.now()
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, now.Add(-s.idleTTL()), now.Add(-s.absoluteTTL()))
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}

	return sessions, nil
}

// RevokeSession terminates one session by id on behalf of an administrator.
func (s *SessionService) RevokeSession(ctx context.Context, actor *domain.User, sessionID string) error {
	if err := s.perms.Require(ctx, actor, domain.PermissionSessionRevoke); err != nil {
		return err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}

	username := session.UserID
	if owner, err := s.users.GetByID(ctx, session.UserID); err == nil {
		username = owner.Username
	}

	return s.recorder.Record(ctx, domain.AuditEvent{
		Timestamp: s.now(),
		EventType: domain.EventLogout,
		Username:  username,
		Details: map[string]any{
			"session_id": session.ID,
			"revoked_by": actor.Username,
		},
	})
}

// CleanupExpired removes every session past either timeout window and
// returns the number removed. Expiry events for sessions swept here are
// not audited; SESSION_EXPIRED marks a rejected validation attempt, not
// housekeeping.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	purged, err := s.sessions.DeleteExpired(ctx, now.Add(-s.idleTTL()), now.Add(-s.absoluteTTL()))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	if purged > 0 {
		s.metrics.RecordSessionsPurged(purged)
		s.publishPurge(ctx, purged, now)
		s.logger.Info("expired sessions purged", zap.Int64("count", purged))
	}

	return purged, nil
}

// RunCleanup sweeps expired sessions on the given interval until the
// context is cancelled.
func (s *SessionService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.logger.Error("session cleanup sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *SessionService) publishPurge(ctx context.Context, count int64, at time.Time) {
	if s.alarms == nil {
		return
	}
	event := domain.SessionPurgedEvent{
		EventID:  uuid.NewString(),
		Count:    count,
		PurgedAt: at,
	}
	if err := s.alarms.PublishSessionPurged(ctx, event); err != nil {
		s.logger.Warn("publish session purge event failed", zap.Error(err))
	}
}

func (s *SessionService) idleTTL() time.Duration {
	if s.cfg.Session.IdleTTL > 0 {
		return s.cfg.Session.IdleTTL
	}
	return domain.SessionIdleTimeout
}

func (s *SessionService) absoluteTTL() time.Duration {
	if s.cfg.Session.AbsoluteTTL > 0 {
		return s.cfg.Session.AbsoluteTTL
	}
	return domain.SessionAbsoluteTimeout
}
