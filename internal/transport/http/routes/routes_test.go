package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/security"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository/memory"
	httproutes "github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/routes"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

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

// routerEnv carries the engine plus the repositories behind it so tests can
// seed accounts directly.
type routerEnv struct {
	router *gin.Engine
	users  *memory.UserRepository
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	cfg := &config.AppConfig{}
	cfg.App.Env = "test"
	cfg.Session.IdleTTL = domain.SessionIdleTimeout
	cfg.Session.AbsoluteTTL = domain.SessionAbsoluteTimeout
	cfg.Lockout.Threshold = 5
	cfg.Lockout.Window = 30 * time.Minute

	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	audit := memory.NewAuditRepository()

	signer, err := security.NewSessionSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to build signer: %v", err)
	}

	recorder, err := usecase.NewAuditRecorder(audit, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build audit recorder: %v", err)
	}
	perms := usecase.NewPermissionService(recorder)

	auth, err := usecase.NewAuthService(cfg, users, sessions, recorder, perms, signer, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build auth service: %v", err)
	}
	userSvc, err := usecase.NewUserService(cfg, users, sessions, recorder, perms, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	sessionSvc, err := usecase.NewSessionService(cfg, sessions, users, recorder, perms, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build session service: %v", err)
	}

	router := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
		Services: httproutes.ServiceSet{
			Auth:     auth,
			Users:    userSvc,
			Sessions: sessionSvc,
			Audit:    usecase.NewAuditService(audit, perms),
		},
	})

	return &routerEnv{router: router, users: users}
}

func (e *routerEnv) seedUser(t *testing.T, username, password string, role domain.Role) domain.User {
	t.Helper()

	digest, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	now := time.Now().UTC()
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

func (e *routerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, payload)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *routerEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login as %s failed with status %d: %s", username, w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a session token in the login response")
	}
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	env := newRouterEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}

func TestReadyEndpointWithoutCheckers(t *testing.T) {
	env := newRouterEnv(t)

	w := env.do(t, http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "alice", "Str0ng!Passw0rd", domain.RoleAnalyst)

	token := env.login(t, "alice", "Str0ng!Passw0rd")

	w := env.do(t, http.MethodGet, "/api/v1/auth/session", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for session info, got %d: %s", w.Code, w.Body.String())
	}

	var info struct {
		User struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
		Session struct {
			IsCurrent bool `json:"is_current"`
		} `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to decode session info: %v", err)
	}
	if info.User.Username != "alice" {
		t.Errorf("expected username alice, got %q", info.User.Username)
	}
	if info.User.Role != string(domain.RoleAnalyst) {
		t.Errorf("expected role Analyst, got %q", info.User.Role)
	}
	if !info.Session.IsCurrent {
		t.Error("expected the session to be flagged as current")
	}

	if w := env.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for logout, got %d", w.Code)
	}

	// Logout is idempotent even with the now dead token.
	if w := env.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for repeated logout, got %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/auth/session", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d", w.Code)
	}
}

func TestLoginRejectionsAreUniform(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "alice", "Str0ng!Passw0rd", domain.RoleAnalyst)

	wrongPassword := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "Wr0ng!Passw0rd",
	})
	unknownUser := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "Wr0ng!Passw0rd",
	})

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both rejections, got %d and %d", wrongPassword.Code, unknownUser.Code)
	}

	var a, b struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(wrongPassword.Body.Bytes(), &a); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if err := json.Unmarshal(unknownUser.Body.Bytes(), &b); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if a.Error != b.Error {
		t.Errorf("rejection messages differ: %q vs %q", a.Error, b.Error)
	}
}

func TestLoginLockoutAnswersLocked(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "bob", "Str0ng!Passw0rd", domain.RoleViewer)

	for i := 0; i < 4; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "bob",
			"password": fmt.Sprintf("Wr0ng!Passw0rd%d", i),
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected status 401, got %d", i+1, w.Code)
		}
	}

	fifth := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "bob",
		"password": "Wr0ng!Passw0rd4",
	})
	if fifth.Code != http.StatusLocked {
		t.Fatalf("expected status 423 on the locking attempt, got %d", fifth.Code)
	}
	if fifth.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on the locked response")
	}

	// The correct password makes no difference while the lock holds.
	locked := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "bob",
		"password": "Str0ng!Passw0rd",
	})
	if locked.Code != http.StatusLocked {
		t.Fatalf("expected status 423 while locked, got %d", locked.Code)
	}
}

func TestAdminProvisionsUser(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "root", "Sup3r!Secure#Pass", domain.RoleAdmin)
	adminToken := env.login(t, "root", "Sup3r!Secure#Pass")

	w := env.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"username":  "carol",
		"email":     "carol@example.com",
		"full_name": "Carol Chen",
		"password":  "Val1d!Passw0rd#",
		"role":      "Analyst",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if created.Username != "carol" || created.Role != string(domain.RoleAnalyst) {
		t.Errorf("unexpected summary: %+v", created)
	}

	// The fresh account can authenticate.
	env.login(t, "carol", "Val1d!Passw0rd#")

	// A weak password is refused with the violated rule in the message.
	weak := env.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"username":  "dave",
		"email":     "dave@example.com",
		"full_name": "Dave Diaz",
		"password":  "short",
		"role":      "Viewer",
	})
	if weak.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for a weak password, got %d", weak.Code)
	}
}

func TestPermissionGuardDeniesNonAdmin(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "root", "Sup3r!Secure#Pass", domain.RoleAdmin)
	env.seedUser(t, "alice", "Str0ng!Passw0rd", domain.RoleAnalyst)

	analystToken := env.login(t, "alice", "Str0ng!Passw0rd")
	adminToken := env.login(t, "root", "Sup3r!Secure#Pass")

	denied := env.do(t, http.MethodGet, "/api/v1/audit", analystToken, nil)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for analyst audit query, got %d", denied.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(denied.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "permission denied" {
		t.Errorf("expected a non-specific denial, got %q", resp.Error)
	}

	granted := env.do(t, http.MethodGet, "/api/v1/audit?event_type=LOGIN_SUCCESS", adminToken, nil)
	if granted.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin audit query, got %d: %s", granted.Code, granted.Body.String())
	}

	var trail struct {
		Events []struct {
			Sequence  int64  `json:"sequence"`
			EventType string `json:"event_type"`
			Username  string `json:"username"`
		} `json:"events"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(granted.Body.Bytes(), &trail); err != nil {
		t.Fatalf("failed to decode audit response: %v", err)
	}
	if trail.Total != 2 {
		t.Fatalf("expected 2 login events, got %d", trail.Total)
	}
	for _, event := range trail.Events {
		if event.EventType != "LOGIN_SUCCESS" {
			t.Errorf("unexpected event type %q", event.EventType)
		}
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "alice", "Str0ng!Passw0rd", domain.RoleAnalyst)

	first := env.login(t, "alice", "Str0ng!Passw0rd")
	second := env.login(t, "alice", "Str0ng!Passw0rd")

	w := env.do(t, http.MethodPost, "/api/v1/password/change", first, map[string]string{
		"current_password": "Str0ng!Passw0rd",
		"new_password":     "An0ther!Passw0rd",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for password change, got %d: %s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodGet, "/api/v1/auth/session", first, nil); w.Code != http.StatusOK {
		t.Errorf("expected the changing session to survive, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/auth/session", second, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected the other session to be revoked, got %d", w.Code)
	}

	// Old credential is dead, the new one works.
	old := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "Str0ng!Passw0rd",
	})
	if old.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for the old password, got %d", old.Code)
	}
	env.login(t, "alice", "An0ther!Passw0rd")
}

func TestAdminRevokesSession(t *testing.T) {
	env := newRouterEnv(t)
	env.seedUser(t, "root", "Sup3r!Secure#Pass", domain.RoleAdmin)
	alice := env.seedUser(t, "alice", "Str0ng!Passw0rd", domain.RoleAnalyst)

	adminToken := env.login(t, "root", "Sup3r!Secure#Pass")
	aliceToken := env.login(t, "alice", "Str0ng!Passw0rd")

	w := env.do(t, http.MethodGet, "/api/v1/users/"+alice.ID+"/sessions", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 listing sessions, got %d: %s", w.Code, w.Body.String())
	}

	var list struct {
		Sessions []struct {
			ID     string `json:"id"`
			UserID string `json:"user_id"`
		} `json:"sessions"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode session list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("expected 1 session for alice, got %d", list.Total)
	}

	if w := env.do(t, http.MethodDelete, "/api/v1/sessions/"+list.Sessions[0].ID, adminToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 revoking the session, got %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/auth/session", aliceToken, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for the revoked session, got %d", w.Code)
	}

	// Revoking again answers 404.
	if w := env.do(t, http.MethodDelete, "/api/v1/sessions/"+list.Sessions[0].ID, adminToken, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for a repeated revoke, got %d", w.Code)
	}
}

func TestGuardedRouteDenials(t *testing.T) {
	env := newRouterEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/users", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without a token, got %d", w.Code)
	}

	// A dead token draws the same denial as a missing permission, never a
	// hint that the session was the failing check.
	w = env.do(t, http.MethodGet, "/api/v1/users", "not-a-real-token", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for a bogus token, got %d", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error != "permission denied" {
		t.Errorf("expected the uniform denial body, got %q", resp.Error)
	}
}
