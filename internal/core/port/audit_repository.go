package port

import (
	"context"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

// AuditRepository is the append-only sink for security events. It lives in a
// physically separate store from users and sessions. Append assigns the next
// sequence number; implementations must serialize that assignment so the
// sequence stays strictly monotonic and gap-free under concurrent writers.
// No update or delete operation exists on this contract.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (int64, error)
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}
