package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

const (
	defaultSessionPrefix = "authcore:session"

	fieldSessionID      = "id"
	fieldUserID         = "user_id"
	fieldTokenDigest    = "token_digest"
	fieldSignature      = "signature"
	fieldSourceAddress  = "source_address"
	fieldCreatedAt      = "created_at"
	fieldLastActivityAt = "last_activity_at"
)

// SessionRepository implements port.SessionRepository on Redis. Records are
// hashes keyed by token digest, with id and user indexes for the admin
// surface. Key TTLs track the absolute timeout so abandoned records age out
// even without a sweep; the logical idle/absolute checks stay with the caller.
type SessionRepository struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewSessionRepository constructs a Redis-backed session repository. The TTL
// should match the absolute session timeout.
func NewSessionRepository(client *red.Client, keyPrefix string, ttl time.Duration) *SessionRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}

	return &SessionRepository{client: client, prefix: prefix, ttl: ttl}
}

// Create persists a new session record and registers it in the indexes.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	if strings.TrimSpace(session.TokenDigest) == "" {
		return errors.New("token digest is required")
	}
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id is required")
	}

	fields := map[string]any{
		fieldSessionID:      session.ID,
		fieldUserID:         session.UserID,
		fieldTokenDigest:    session.TokenDigest,
		fieldSignature:      session.Signature,
		fieldCreatedAt:      strconv.FormatInt(session.CreatedAt.UTC().Unix(), 10),
		fieldLastActivityAt: strconv.FormatInt(session.LastActivityAt.UTC().Unix(), 10),
	}
	if session.SourceAddress != nil && strings.TrimSpace(*session.SourceAddress) != "" {
		fields[fieldSourceAddress] = strings.TrimSpace(*session.SourceAddress)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.digestKey(session.TokenDigest), fields)
	pipe.Set(ctx, r.idKey(session.ID), session.TokenDigest, r.ttl)
	pipe.SAdd(ctx, r.userKey(session.UserID), session.TokenDigest)
	pipe.SAdd(ctx, r.indexKey(), session.TokenDigest)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.digestKey(session.TokenDigest), r.ttl)
		pipe.Expire(ctx, r.userKey(session.UserID), r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}

	return nil
}

// GetByTokenDigest fetches a session by the digest of its bearer token.
func (r *SessionRepository) GetByTokenDigest(ctx context.Context, digest string) (*domain.Session, error) {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return nil, errors.New("token digest is required")
	}

	values, err := r.client.HGetAll(ctx, r.digestKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	return sessionFromHash(values)
}

// GetByID fetches a session by identifier via the id index.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	digest, err := r.digestForID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.GetByTokenDigest(ctx, digest)
}

// Touch refreshes last_activity_at for the session.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	digest, err := r.digestForID(ctx, id)
	if err != nil {
		return err
	}

	key := r.digestKey(digest)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis check session: %w", err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}

	value := strconv.FormatInt(at.UTC().Unix(), 10)
	if err := r.client.HSet(ctx, key, fieldLastActivityAt, value).Err(); err != nil {
		return fmt.Errorf("redis touch session: %w", err)
	}

	return nil
}

// Delete removes a session by identifier.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	digest, err := r.digestForID(ctx, id)
	if err != nil {
		return err
	}

	existed, err := r.DeleteByTokenDigest(ctx, digest)
	if err != nil {
		return err
	}
	if !existed {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteByTokenDigest removes the session keyed by digest and reports whether
// a record existed.
func (r *SessionRepository) DeleteByTokenDigest(ctx context.Context, digest string) (bool, error) {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return false, errors.New("token digest is required")
	}

	values, err := r.client.HGetAll(ctx, r.digestKey(digest)).Result()
	if err != nil {
		return false, fmt.Errorf("redis get session: %w", err)
	}
	if len(values) == 0 {
		// Prune any dangling index entry left behind by TTL eviction.
		_ = r.client.SRem(ctx, r.indexKey(), digest).Err()
		return false, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.digestKey(digest))
	if id := values[fieldSessionID]; id != "" {
		pipe.Del(ctx, r.idKey(id))
	}
	if userID := values[fieldUserID]; userID != "" {
		pipe.SRem(ctx, r.userKey(userID), digest)
	}
	pipe.SRem(ctx, r.indexKey(), digest)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis delete session: %w", err)
	}

	return true, nil
}

// DeleteByUser drops every session owned by the user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("user id is required")
	}

	digests, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}

	var deleted int64
	for _, digest := range digests {
		existed, err := r.DeleteByTokenDigest(ctx, digest)
		if err != nil {
			return deleted, err
		}
		if existed {
			deleted++
		}
	}

	if err := r.client.Del(ctx, r.userKey(userID)).Err(); err != nil {
		return deleted, fmt.Errorf("redis delete user session index: %w", err)
	}

	return deleted, nil
}

// DeleteExpired sweeps sessions outside either timeout window and prunes
// index entries whose records were already TTL-evicted.
func (r *SessionRepository) DeleteExpired(ctx context.Context, idleCutoff, absoluteCutoff time.Time) (int64, error) {
	digests, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list session index: %w", err)
	}

	var deleted int64
	for _, digest := range digests {
		session, err := r.GetByTokenDigest(ctx, digest)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				_ = r.client.SRem(ctx, r.indexKey(), digest).Err()
				continue
			}
			return deleted, err
		}

		if session.LastActivityAt.Before(idleCutoff) || session.CreatedAt.Before(absoluteCutoff) {
			existed, err := r.DeleteByTokenDigest(ctx, digest)
			if err != nil {
				return deleted, err
			}
			if existed {
				deleted++
			}
		}
	}

	return deleted, nil
}

// ListActive returns sessions inside both timeout windows ordered by last activity.
func (r *SessionRepository) ListActive(ctx context.Context, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	digests, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list session index: %w", err)
	}

	return r.collectActive(ctx, digests, idleCutoff, absoluteCutoff)
}

// ListActiveByUser returns the user's sessions inside both timeout windows.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	digests, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}

	return r.collectActive(ctx, digests, idleCutoff, absoluteCutoff)
}

func (r *SessionRepository) collectActive(ctx context.Context, digests []string, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	sessions := make([]domain.Session, 0, len(digests))
	for _, digest := range digests {
		session, err := r.GetByTokenDigest(ctx, digest)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}

		if session.LastActivityAt.Before(idleCutoff) || session.CreatedAt.Before(absoluteCutoff) {
			continue
		}

		sessions = append(sessions, *session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})

	return sessions, nil
}

func (r *SessionRepository) digestForID(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("session id is required")
	}

	digest, err := r.client.Get(ctx, r.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get session id index: %w", err)
	}

	return digest, nil
}

func (r *SessionRepository) digestKey(digest string) string {
	return fmt.Sprintf("%s:digest:%s", r.prefix, digest)
}

func (r *SessionRepository) idKey(id string) string {
	return fmt.Sprintf("%s:id:%s", r.prefix, id)
}

func (r *SessionRepository) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, userID)
}

func (r *SessionRepository) indexKey() string {
	return fmt.Sprintf("%s:index", r.prefix)
}

func sessionFromHash(values map[string]string) (*domain.Session, error) {
	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	lastActivityAt, err := parseUnix(values[fieldLastActivityAt])
	if err != nil {
		return nil, fmt.Errorf("parse last_activity_at: %w", err)
	}

	session := domain.Session{
		ID:             values[fieldSessionID],
		UserID:         values[fieldUserID],
		TokenDigest:    values[fieldTokenDigest],
		Signature:      values[fieldSignature],
		CreatedAt:      createdAt,
		LastActivityAt: lastActivityAt,
	}

	if source := strings.TrimSpace(values[fieldSourceAddress]); source != "" {
		session.SourceAddress = &source
	}

	return &session, nil
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
