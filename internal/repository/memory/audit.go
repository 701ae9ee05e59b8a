package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
)

// AuditRepository implements port.AuditRepository in process memory. The
// mutex serializes appends, so assigned sequences are dense even under
// concurrent writers.
type AuditRepository struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

// NewAuditRepository constructs an empty in-memory audit repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Append records an event and returns its assigned sequence number.
func (r *AuditRepository) Append(_ context.Context, event domain.AuditEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.Sequence = int64(len(r.events)) + 1
	if event.Details != nil {
		details := make(map[string]any, len(event.Details))
		for k, v := range event.Details {
			details[k] = v
		}
		event.Details = details
	}
	r.events = append(r.events, event)

	return event.Sequence, nil
}

// Query returns events matching the filter in ascending sequence order.
func (r *AuditRepository) Query(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AuditEvent, 0, len(r.events))
	for _, event := range r.events {
		if filter.Username != "" && !strings.EqualFold(event.Username, filter.Username) {
			continue
		}
		if filter.EventType != "" && event.EventType != filter.EventType {
			continue
		}
		if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	return out, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
