// Package session is the Redis-backed device session registry. Each login
// from a distinct device creates one session; the session holds the hash of
// the refresh token currently allowed to renew it, which is what makes
// rotation and reuse detection possible.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Session is one device session row. Times are stored in Redis as unix
// seconds; the token hash is the hex SHA-256 of the active refresh token.
type Session struct {
	ID             string
	UserID         string
	TokenHash      string
	UserAgent      string
	IP             string
	Location       string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
}

// Expired reports whether the session's absolute expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// HashToken returns the hex SHA-256 digest of a refresh token. Only digests
// are persisted; a Redis dump never yields usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Session) fields() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          s.UserID,
		"token_hash":       s.TokenHash,
		"user_agent":       s.UserAgent,
		"ip":               s.IP,
		"location":         s.Location,
		"created_at":       s.CreatedAt.Unix(),
		"expires_at":       s.ExpiresAt.Unix(),
		"last_accessed_at": s.LastAccessedAt.Unix(),
	}
}

func sessionFromMap(id string, m map[string]string) *Session {
	return &Session{
		ID:             id,
		UserID:         m["user_id"],
		TokenHash:      m["token_hash"],
		UserAgent:      m["user_agent"],
		IP:             m["ip"],
		Location:       m["location"],
		CreatedAt:      unixField(m, "created_at"),
		ExpiresAt:      unixField(m, "expires_at"),
		LastAccessedAt: unixField(m, "last_accessed_at"),
	}
}

func unixField(m map[string]string, key string) time.Time {
	v, err := strconv.ParseInt(m[key], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(v, 0)
}
