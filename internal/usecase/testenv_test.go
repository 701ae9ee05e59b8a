package usecase

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/security"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository/memory"
)

func TestMain(m *testing.M) {
	// Lighter hashing parameters keep the suite fast. Digests are
	// self-describing, so verification code paths are identical.
	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// testClock is a manually advanced clock shared by every service in a test
// environment.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start.UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// alarmRecorder captures alarm channel traffic.
type alarmRecorder struct {
	mu          sync.Mutex
	writeFailed []domain.AuditWriteFailedAlarm
	lockAlerts  []domain.AccountLockedAlert
	purgeEvents []domain.SessionPurgedEvent
}

func (a *alarmRecorder) PublishAuditWriteFailed(_ context.Context, alarm domain.AuditWriteFailedAlarm) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeFailed = append(a.writeFailed, alarm)
	return nil
}

func (a *alarmRecorder) PublishAccountLocked(_ context.Context, alert domain.AccountLockedAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lockAlerts = append(a.lockAlerts, alert)
	return nil
}

func (a *alarmRecorder) PublishSessionPurged(_ context.Context, event domain.SessionPurgedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purgeEvents = append(a.purgeEvents, event)
	return nil
}

func (a *alarmRecorder) WriteFailures() []domain.AuditWriteFailedAlarm {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditWriteFailedAlarm, len(a.writeFailed))
	copy(out, a.writeFailed)
	return out
}

func (a *alarmRecorder) LockAlerts() []domain.AccountLockedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AccountLockedAlert, len(a.lockAlerts))
	copy(out, a.lockAlerts)
	return out
}

func (a *alarmRecorder) PurgeEvents() []domain.SessionPurgedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.SessionPurgedEvent, len(a.purgeEvents))
	copy(out, a.purgeEvents)
	return out
}

// testEnv wires the full service graph over in-memory repositories with a
// controllable clock.
type testEnv struct {
	clock      *testClock
	cfg        *config.AppConfig
	users      *memory.UserRepository
	sessions   *memory.SessionRepository
	audit      *memory.AuditRepository
	alarms     *alarmRecorder
	signer     *security.SessionSigner
	recorder   *AuditRecorder
	perms      *PermissionService
	auth       *AuthService
	userSvc    *UserService
	sessionSvc *SessionService
	auditSvc   *AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newTestClock(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	cfg := &config.AppConfig{}
	cfg.Session.IdleTTL = domain.SessionIdleTimeout
	cfg.Session.AbsoluteTTL = domain.SessionAbsoluteTimeout
	cfg.Lockout.Threshold = 5
	cfg.Lockout.Window = 30 * time.Minute

	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	audit := memory.NewAuditRepository()
	alarms := &alarmRecorder{}

	signer, err := security.NewSessionSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to build signer: %v", err)
	}

	recorder, err := NewAuditRecorder(audit, alarms, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build audit recorder: %v", err)
	}
	recorder.WithClock(clock.Now)

	perms := NewPermissionService(recorder)
	perms.WithClock(clock.Now)

	auth, err := NewAuthService(cfg, users, sessions, recorder, perms, signer, alarms, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build auth service: %v", err)
	}
	auth.WithClock(clock.Now)

	userSvc, err := NewUserService(cfg, users, sessions, recorder, perms, nil, alarms, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	userSvc.WithClock(clock.Now)

	sessionSvc, err := NewSessionService(cfg, sessions, users, recorder, perms, alarms, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build session service: %v", err)
	}
	sessionSvc.WithClock(clock.Now)

	return &testEnv{
		clock:      clock,
		cfg:        cfg,
		users:      users,
		sessions:   sessions,
		audit:      audit,
		alarms:     alarms,
		signer:     signer,
		recorder:   recorder,
		perms:      perms,
		auth:       auth,
		userSvc:    userSvc,
		sessionSvc: sessionSvc,
		auditSvc:   NewAuditService(audit, perms),
	}
}

// seedUser writes an account straight into the repository, bypassing the
// admin surface so tests can start from arbitrary states.
func (e *testEnv) seedUser(t *testing.T, username, password string, role domain.Role) domain.User {
	t.Helper()

	digest, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	now := e.clock.Now()
	user := domain.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          username + "@example.com",
		FullName:       "Test Account",
		PasswordDigest: digest,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, username, password string) *LoginResult {
	t.Helper()

	result, err := e.auth.Login(context.Background(), LoginInput{Username: username, Password: password})
	if err != nil {
		t.Fatalf("login as %s failed: %v", username, err)
	}
	return result
}

// auditEvents returns the trail entries of one type in sequence order.
func (e *testEnv) auditEvents(t *testing.T, eventType domain.EventType) []domain.AuditEvent {
	t.Helper()

	events, err := e.audit.Query(context.Background(), domain.AuditFilter{EventType: eventType})
	if err != nil {
		t.Fatalf("failed to query audit trail: %v", err)
	}
	return events
}

func (e *testEnv) allAuditEvents(t *testing.T) []domain.AuditEvent {
	t.Helper()

	events, err := e.audit.Query(context.Background(), domain.AuditFilter{})
	if err != nil {
		t.Fatalf("failed to query audit trail: %v", err)
	}
	return events
}
