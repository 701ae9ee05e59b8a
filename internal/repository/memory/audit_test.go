package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

func TestAuditRepositoryAppendAssignsDenseSequence(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		seq, err := repo.Append(ctx, domain.AuditEvent{
			Timestamp: now,
			EventType: domain.EventLoginSuccess,
			Username:  "alice",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if seq != int64(i) {
			t.Fatalf("expected sequence %d, got %d", i, seq)
		}
	}

	events, err := repo.Query(ctx, domain.AuditFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for i, event := range events {
		if event.Sequence != int64(i+1) {
			t.Fatalf("event %d has sequence %d", i, event.Sequence)
		}
	}
}

func TestAuditRepositoryConcurrentAppendsStayGapFree(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()

	const workers = 16
	const perWorker = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := repo.Append(ctx, domain.AuditEvent{
					Timestamp: time.Now().UTC(),
					EventType: domain.EventLoginFailure,
					Username:  "bob",
				}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	events, err := repo.Query(ctx, domain.AuditFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != workers*perWorker {
		t.Fatalf("expected %d events, got %d", workers*perWorker, len(events))
	}

	seen := make(map[int64]bool, len(events))
	for _, event := range events {
		seen[event.Sequence] = true
	}
	for seq := int64(1); seq <= int64(workers*perWorker); seq++ {
		if !seen[seq] {
			t.Fatalf("sequence %d missing", seq)
		}
	}
}

func TestAuditRepositoryQueryFilters(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	fixtures := []domain.AuditEvent{
		{Timestamp: base, EventType: domain.EventLoginSuccess, Username: "alice"},
		{Timestamp: base.Add(time.Minute), EventType: domain.EventLoginFailure, Username: "bob"},
		{Timestamp: base.Add(2 * time.Minute), EventType: domain.EventLoginSuccess, Username: "Alice"},
		{Timestamp: base.Add(3 * time.Minute), EventType: domain.EventAccountLocked, Username: "bob"},
	}
	for _, event := range fixtures {
		if _, err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	byUser, err := repo.Query(ctx, domain.AuditFilter{Username: "ALICE"})
	if err != nil {
		t.Fatalf("query by user: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected 2 alice events, got %d", len(byUser))
	}

	since := base.Add(90 * time.Second)
	byType, err := repo.Query(ctx, domain.AuditFilter{EventType: domain.EventLoginSuccess, Since: &since})
	if err != nil {
		t.Fatalf("query by type: %v", err)
	}
	if len(byType) != 1 || byType[0].Sequence != 3 {
		t.Fatalf("unexpected filtered result: %+v", byType)
	}

	limited, err := repo.Query(ctx, domain.AuditFilter{Limit: 2})
	if err != nil {
		t.Fatalf("query limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Sequence != 1 || limited[1].Sequence != 2 {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func TestAuditRepositoryDetailsAreCopied(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()

	details := map[string]any{"reason": "bad_password"}
	if _, err := repo.Append(ctx, domain.AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: domain.EventLoginFailure,
		Username:  "bob",
		Details:   details,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	details["reason"] = "mutated"

	events, err := repo.Query(ctx, domain.AuditFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if events[0].Details["reason"] != "bad_password" {
		t.Fatalf("stored details mutated: %+v", events[0].Details)
	}
}
