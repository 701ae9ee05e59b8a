package port

import (
	"context"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

// AlarmPublisher raises operational alarms on the message bus. The audit
// trail itself stays synchronous and store-backed; the bus only carries
// escalations operators need to see immediately.
type AlarmPublisher interface {
	PublishAuditWriteFailed(ctx context.Context, alarm domain.AuditWriteFailedAlarm) error
	PublishAccountLocked(ctx context.Context, alert domain.AccountLockedAlert) error
	PublishSessionPurged(ctx context.Context, event domain.SessionPurgedEvent) error
}
