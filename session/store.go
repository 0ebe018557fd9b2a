package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session exists for the given ID or token.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the session exists but its expiry has passed.
	// The store deletes the row before returning this.
	ErrExpired = errors.New("session expired")
	// ErrTokenMismatch is returned by Rotate when the presented refresh token
	// hash does not match the stored one. The store has already revoked the
	// session: a mismatch means an older token from this lineage was replayed.
	ErrTokenMismatch = errors.New("refresh token hash mismatch")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateScript compares the stored refresh hash against the presented one and
// swaps in the next hash in a single atomic step. Expired and mismatched
// sessions are torn down inside the script so no half-revoked state is
// observable between commands.
const rotateScript = `
local session_key = KEYS[1]
local old_token_key = KEYS[2]
local new_token_key = KEYS[3]
local user_key = KEYS[4]

local session_id = ARGV[1]
local provided = ARGV[2]
local replacement = ARGV[3]
local now = tonumber(ARGV[4])
local token_prefix = ARGV[5]

local fields = redis.call("HMGET", session_key, "user_id", "token_hash", "expires_at")
local user_id = fields[1]
local current = fields[2]
local expires_at = tonumber(fields[3])

if not user_id then
  redis.call("DEL", old_token_key)
  redis.call("SREM", user_key, session_id)
  return {0}
end

if not expires_at or expires_at <= now then
  redis.call("DEL", session_key, old_token_key)
  if current then
    redis.call("DEL", token_prefix .. current)
  end
  redis.call("SREM", user_key, session_id)
  return {1}
end

if current ~= provided then
  redis.call("DEL", session_key, old_token_key)
  if current then
    redis.call("DEL", token_prefix .. current)
  end
  redis.call("SREM", user_key, session_id)
  return {2}
end

redis.call("HSET", session_key, "token_hash", replacement, "last_accessed_at", now)
redis.call("DEL", old_token_key)
local ttl_ms = redis.call("PTTL", session_key)
if ttl_ms > 0 then
  redis.call("SET", new_token_key, session_id, "PX", ttl_ms)
else
  redis.call("SET", new_token_key, session_id)
end
return {3}
`

var rotateLua = redis.NewScript(rotateScript)

// Store is the Redis-backed session registry. One HASH per session, a SET of
// session IDs per user, and a token-hash lookup key per active refresh token.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "auth"
	}
	return &Store{redis: client, prefix: prefix, now: time.Now}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":sess:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":usess:" + userID
}

func (s *Store) tokenKey(tokenHash string) string {
	return s.prefix + ":tok:" + tokenHash
}

// Create persists a new session and its token index entry. The Redis TTL
// mirrors the session expiry; lazy checks in Get cover clock drift.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrExpired
	}

	sessionKey := s.key(sess.ID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey, sess.fields())
		pipe.Expire(ctx, sessionKey, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Set(ctx, s.tokenKey(sess.TokenHash), sess.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a session by ID. Sessions past their expiry are deleted on
// read and reported as ErrExpired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}

	sess := sessionFromMap(sessionID, m)
	if sess.Expired(s.now()) {
		if err := s.remove(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	return sess, nil
}

// FindByToken resolves a refresh token hash to its session. The engine keys
// its own paths by session ID; this lookup exists for hosts that only hold
// the refresh token.
func (s *Store) FindByToken(ctx context.Context, tokenHash string) (*Session, error) {
	sessionID, err := s.redis.Get(ctx, s.tokenKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.Get(ctx, sessionID)
}

// Rotate atomically swaps the session's refresh token hash from providedHash
// to nextHash. On any failure the session is already revoked when Rotate
// returns: a not-found, expired, or mismatched rotation must never leave a
// renewable session behind.
func (s *Store) Rotate(ctx context.Context, sessionID, userID, providedHash, nextHash string) error {
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{
			s.key(sessionID),
			s.tokenKey(providedHash),
			s.tokenKey(nextHash),
			s.userKey(userID),
		},
		sessionID,
		providedHash,
		nextHash,
		s.now().Unix(),
		s.prefix+":tok:",
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusExpired:
		return ErrExpired
	case rotateStatusMismatch:
		return ErrTokenMismatch
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, code)
	}
}

// Touch updates the last-accessed timestamp. Best effort; callers treat
// failures as non-fatal.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	err := s.redis.HSet(ctx, s.key(sessionID), "last_accessed_at", s.now().Unix()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Revoke deletes one session, its token index entry, and its user index
// membership. Revoking an absent session is a no-op.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil
	}

	return s.remove(ctx, sessionFromMap(sessionID, m))
}

// RevokeAll removes every session for a user and returns how many were
// dropped. Not atomic against a concurrent login; a session created mid-call
// survives and is caught by its own expiry or the next RevokeAll.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		m, err := s.redis.HGetAll(ctx, s.key(id)).Result()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(m) == 0 {
			continue
		}
		if err := s.remove(ctx, sessionFromMap(id, m)); err != nil {
			return revoked, err
		}
		revoked++
	}

	if err := s.redis.Del(ctx, userKey).Err(); err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return revoked, nil
}

// ListActive returns the user's live sessions, dropping expired ones from
// the index as it goes.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		m, err := s.redis.HGetAll(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(m) == 0 {
			s.redis.SRem(ctx, s.userKey(userID), id)
			continue
		}

		sess := sessionFromMap(id, m)
		if sess.Expired(now) {
			if err := s.remove(ctx, sess); err != nil {
				return nil, err
			}
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Ping reports Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, sess *Session) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sess.ID))
		pipe.Del(ctx, s.tokenKey(sess.TokenHash))
		pipe.SRem(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
