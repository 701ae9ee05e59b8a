package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

func testUser(id, username, email string) domain.User {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return domain.User{
		ID:             id,
		Username:       username,
		Email:          email,
		PasswordDigest: "argon2id$v=19$m=65536,t=2,p=4$c2FsdA$aGFzaA",
		FullName:       "Test User",
		Role:           domain.RoleAnalyst,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestUserRepositoryCreateRejectsDuplicates(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, testUser("user-1", "alice", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.Create(ctx, testUser("user-2", "ALICE", "other@example.com"))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}

	err = repo.Create(ctx, testUser("user-3", "bob", "Alice@Example.com"))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}
}

func TestUserRepositoryGetByUsernameCaseInsensitive(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, testUser("user-1", "Alice", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByUsername(ctx, "aLiCe")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != "user-1" {
		t.Fatalf("expected user-1, got %s", got.ID)
	}

	if _, err := repo.GetByUsername(ctx, "mallory"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepositoryRecordLoginFailureLocksAtThreshold(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	lockUntil := now.Add(30 * time.Minute)

	if err := repo.Create(ctx, testUser("user-1", "bob", "bob@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 1; i <= 4; i++ {
		attempts, locked, err := repo.RecordLoginFailure(ctx, "user-1", 5, lockUntil, now)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if attempts != i || locked {
			t.Fatalf("failure %d: attempts=%d locked=%v", i, attempts, locked)
		}
	}

	attempts, locked, err := repo.RecordLoginFailure(ctx, "user-1", 5, lockUntil, now)
	if err != nil {
		t.Fatalf("fifth failure: %v", err)
	}
	if attempts != 5 || !locked {
		t.Fatalf("expected lock at fifth failure, attempts=%d locked=%v", attempts, locked)
	}

	user, err := repo.GetByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.LockedUntil == nil || !user.LockedUntil.Equal(lockUntil) {
		t.Fatalf("expected locked_until %v, got %v", lockUntil, user.LockedUntil)
	}
}

func TestUserRepositoryRecordLoginFailureConcurrent(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, testUser("user-1", "bob", "bob@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 32
	results := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts, _, err := repo.RecordLoginFailure(ctx, "user-1", 5, now.Add(30*time.Minute), now)
			if err != nil {
				t.Errorf("record failure: %v", err)
				return
			}
			results <- attempts
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, workers)
	for attempts := range results {
		if seen[attempts] {
			t.Fatalf("duplicate attempt count %d", attempts)
		}
		seen[attempts] = true
	}
	for i := 1; i <= workers; i++ {
		if !seen[i] {
			t.Fatalf("missing attempt count %d", i)
		}
	}
}

func TestUserRepositoryLockedUntilNotExtendedAfterLock(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	firstUntil := now.Add(30 * time.Minute)

	if err := repo.Create(ctx, testUser("user-1", "bob", "bob@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, _, err := repo.RecordLoginFailure(ctx, "user-1", 5, firstUntil, now); err != nil {
			t.Fatalf("failure: %v", err)
		}
	}

	laterUntil := now.Add(90 * time.Minute)
	attempts, locked, err := repo.RecordLoginFailure(ctx, "user-1", 5, laterUntil, now)
	if err != nil {
		t.Fatalf("sixth failure: %v", err)
	}
	if attempts != 6 || !locked {
		t.Fatalf("expected attempts=6 locked=true, got %d %v", attempts, locked)
	}

	user, err := repo.GetByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.LockedUntil == nil || !user.LockedUntil.Equal(firstUntil) {
		t.Fatalf("lock window should not move, got %v", user.LockedUntil)
	}
}

func TestUserRepositoryClearLockReportsTransition(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, testUser("user-1", "bob", "bob@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}
	until := now.Add(30 * time.Minute)
	if err := repo.SetLock(ctx, "user-1", &until, now); err != nil {
		t.Fatalf("set lock: %v", err)
	}

	cleared, err := repo.ClearLock(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("clear lock: %v", err)
	}
	if !cleared {
		t.Fatal("expected first clear to report the transition")
	}

	cleared, err = repo.ClearLock(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if cleared {
		t.Fatal("expected second clear to be a no-op")
	}

	user, err := repo.GetByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.IsLocked || user.LockedUntil != nil || user.FailedLoginAttempts != 0 {
		t.Fatalf("lock state not cleared: %+v", user)
	}
}

func TestUserRepositoryRecordLoginSuccessResetsCounter(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, testUser("user-1", "bob", "bob@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, _, err := repo.RecordLoginFailure(ctx, "user-1", 5, now.Add(30*time.Minute), now); err != nil {
			t.Fatalf("failure: %v", err)
		}
	}

	if err := repo.RecordLoginSuccess(ctx, "user-1", now); err != nil {
		t.Fatalf("success: %v", err)
	}

	user, err := repo.GetByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", user.FailedLoginAttempts)
	}
	if user.IsLocked {
		t.Fatal("success must not lock the account")
	}
}

func TestUserRepositoryPasswordHistoryOrderAndTrim(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		entry := domain.PasswordHistoryEntry{
			UserID:    "user-1",
			Digest:    fmt.Sprintf("digest-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.AddPasswordHistory(ctx, entry); err != nil {
			t.Fatalf("add history %d: %v", i, err)
		}
	}
	if err := repo.TrimPasswordHistory(ctx, "user-1", domain.PasswordHistoryDepth); err != nil {
		t.Fatalf("trim: %v", err)
	}

	entries, err := repo.ListPasswordHistory(ctx, "user-1", domain.PasswordHistoryDepth)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != domain.PasswordHistoryDepth {
		t.Fatalf("expected %d entries, got %d", domain.PasswordHistoryDepth, len(entries))
	}
	if entries[0].Digest != "digest-5" {
		t.Fatalf("expected newest entry first, got %s", entries[0].Digest)
	}
	for _, entry := range entries {
		if entry.Digest == "digest-0" {
			t.Fatal("oldest digest should have been evicted")
		}
		if entry.ID == "" {
			t.Fatal("expected generated entry id")
		}
	}
}

func TestUserRepositoryListPagination(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		user := testUser(fmt.Sprintf("user-%d", i), fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i))
		user.CreatedAt = user.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := repo.Create(ctx, user); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "user-0" || page[1].ID != "user-1" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(page) != 1 || page[0].ID != "user-2" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}
