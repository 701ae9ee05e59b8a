package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

// PermissionService answers authorization questions against the static
// role table. Roles form a closed enum and every set is explicit, so the
// engine only ever consults the table; it never assumes one role subsumes
// another.
type PermissionService struct {
	recorder *AuditRecorder
	now      func() time.Time
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(recorder *AuditRecorder) *PermissionService {
	service := &PermissionService{recorder: recorder}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PermissionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// HasPermission reports whether the user currently holds the permission.
// A nil, inactive, or locked user holds nothing regardless of role.
func (s *PermissionService) HasPermission(user *domain.User, permission domain.Permission) bool {
	if user == nil || !user.IsActive || user.IsLocked {
		return false
	}
	return domain.RoleHasPermission(user.Role, permission)
}

// PermissionsForRole returns the role's explicit permission set.
func (s *PermissionService) PermissionsForRole(role domain.Role) ([]domain.Permission, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return domain.PermissionsForRole(role), nil
}

// Require denies with ErrPermissionDenied unless the actor holds the
// permission. Denials for an identified actor are recorded as
// ACCESS_DENIED; the error itself never says which check failed.
func (s *PermissionService) Require(ctx context.Context, actor *domain.User, permission domain.Permission) error {
	if s.HasPermission(actor, permission) {
		return nil
	}

	if actor != nil && s.recorder != nil {
		if err := s.recorder.Record(ctx, domain.AuditEvent{
			Timestamp: s.now(),
			EventType: domain.EventAccessDenied,
			Username:  actor.Username,
			Details:   map[string]any{"permission": string(permission)},
		}); err != nil {
			return err
		}
	}

	return ErrPermissionDenied
}
