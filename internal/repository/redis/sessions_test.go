package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testSession(id, userID, digest string, createdAt time.Time) domain.Session {
	return domain.Session{
		ID:             id,
		UserID:         userID,
		TokenDigest:    digest,
		Signature:      "sig-" + id,
		CreatedAt:      createdAt,
		LastActivityAt: createdAt,
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	ctx := context.Background()
	createdAt := time.Now().UTC().Truncate(time.Second)
	source := "198.51.100.10"

	session := testSession("session-1", "user-1", "digest-1", createdAt)
	session.SourceAddress = &source

	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.GetByTokenDigest(ctx, "digest-1")
	if err != nil {
		t.Fatalf("GetByTokenDigest returned error: %v", err)
	}
	if got.ID != session.ID || got.UserID != session.UserID {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Signature != session.Signature {
		t.Fatalf("expected signature to round-trip, got %s", got.Signature)
	}
	if got.SourceAddress == nil || *got.SourceAddress != source {
		t.Fatal("expected source address to round-trip")
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected created_at %v, got %v", createdAt, got.CreatedAt)
	}

	byID, err := repo.GetByID(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if byID.TokenDigest != "digest-1" {
		t.Fatalf("unexpected digest: %s", byID.TokenDigest)
	}
}

func TestSessionRepository_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	if _, err := repo.GetByTokenDigest(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Touch(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	ctx := context.Background()
	createdAt := time.Now().UTC().Truncate(time.Second)

	if err := repo.Create(ctx, testSession("session-1", "user-1", "digest-1", createdAt)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	touchedAt := createdAt.Add(5 * time.Minute)
	if err := repo.Touch(ctx, "session-1", touchedAt); err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}

	got, err := repo.GetByTokenDigest(ctx, "digest-1")
	if err != nil {
		t.Fatalf("GetByTokenDigest returned error: %v", err)
	}
	if !got.LastActivityAt.Equal(touchedAt) {
		t.Fatalf("expected last activity %v, got %v", touchedAt, got.LastActivityAt)
	}

	if err := repo.Touch(ctx, "missing", touchedAt); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}
}

func TestSessionRepository_DeleteByTokenDigest(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	ctx := context.Background()
	createdAt := time.Now().UTC().Truncate(time.Second)

	if err := repo.Create(ctx, testSession("session-1", "user-1", "digest-1", createdAt)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	existed, err := repo.DeleteByTokenDigest(ctx, "digest-1")
	if err != nil {
		t.Fatalf("DeleteByTokenDigest returned error: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report an existing record")
	}

	existed, err = repo.DeleteByTokenDigest(ctx, "digest-1")
	if err != nil {
		t.Fatalf("DeleteByTokenDigest returned error: %v", err)
	}
	if existed {
		t.Fatal("expected repeat delete to report no record")
	}

	if _, err := repo.GetByID(ctx, "session-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected id index to be removed, got %v", err)
	}
}

func TestSessionRepository_DeleteByUser(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	ctx := context.Background()
	createdAt := time.Now().UTC().Truncate(time.Second)

	for i, digest := range []string{"digest-1", "digest-2"} {
		session := testSession("session-"+digest, "user-1", digest, createdAt.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}
	if err := repo.Create(ctx, testSession("session-other", "user-2", "digest-other", createdAt)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	deleted, err := repo.DeleteByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("DeleteByUser returned error: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted sessions, got %d", deleted)
	}

	if _, err := repo.GetByTokenDigest(ctx, "digest-other"); err != nil {
		t.Fatalf("expected other user's session to survive, got %v", err)
	}
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	stale := testSession("session-stale", "user-1", "digest-stale", now.Add(-2*time.Hour))
	fresh := testSession("session-fresh", "user-1", "digest-fresh", now)
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	idleCutoff := now.Add(-30 * time.Minute)
	absoluteCutoff := now.Add(-8 * time.Hour)

	deleted, err := repo.DeleteExpired(ctx, idleCutoff, absoluteCutoff)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}

	if _, err := repo.GetByTokenDigest(ctx, "digest-stale"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected stale session removed, got %v", err)
	}
	if _, err := repo.GetByTokenDigest(ctx, "digest-fresh"); err != nil {
		t.Fatalf("expected fresh session to survive, got %v", err)
	}
}

func TestSessionRepository_ListActiveByUser(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "authcore:session", 8*time.Hour)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	older := testSession("session-older", "user-1", "digest-older", now.Add(-10*time.Minute))
	newer := testSession("session-newer", "user-1", "digest-newer", now)
	idle := testSession("session-idle", "user-1", "digest-idle", now.Add(-2*time.Hour))
	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.Create(ctx, idle); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	idleCutoff := now.Add(-30 * time.Minute)
	absoluteCutoff := now.Add(-8 * time.Hour)

	sessions, err := repo.ListActiveByUser(ctx, "user-1", idleCutoff, absoluteCutoff)
	if err != nil {
		t.Fatalf("ListActiveByUser returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two active sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "session-newer" || sessions[1].ID != "session-older" {
		t.Fatalf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
}
