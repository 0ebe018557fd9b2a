package authcore

import (
	"context"
	"encoding/base32"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeUserStore is an in-memory UserStore with the same conflict and
// not-found semantics as the Postgres implementation.
type fakeUserStore struct {
	mu          sync.Mutex
	users       map[string]*User
	backupCodes map[string]map[string]bool

	failCreate error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:       make(map[string]*User),
		backupCodes: make(map[string]map[string]bool),
	}
}

func (s *fakeUserStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
		if existing.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) UpdateLastLogin(_ context.Context, id string, at time.Time, ip string) error {
	return s.mutate(id, func(u *User) {
		u.LastLoginAt = &at
		u.LastLoginIP = ip
	})
}

func (s *fakeUserStore) SetTwoFactorSecret(_ context.Context, id, secret string) error {
	return s.mutate(id, func(u *User) { u.TwoFactorSecret = secret })
}

func (s *fakeUserStore) EnableTwoFactor(_ context.Context, id string) error {
	return s.mutate(id, func(u *User) { u.TwoFactorEnabled = true })
}

func (s *fakeUserStore) DisableTwoFactor(_ context.Context, id string) error {
	return s.mutate(id, func(u *User) {
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = ""
	})
}

func (s *fakeUserStore) ReplaceBackupCodes(_ context.Context, id string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	s.backupCodes[id] = set
	return nil
}

func (s *fakeUserStore) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.backupCodes[id]
	if !set[hash] {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

// removeUser drops the account entirely, as a hard delete would.
func (s *fakeUserStore) removeUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *fakeUserStore) mutate(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(user)
	return nil
}

// recordingEventStore captures every inserted event for assertions.
type recordingEventStore struct {
	mu      sync.Mutex
	events  []*SecurityEvent
	failErr error
}

func (s *recordingEventStore) Insert(_ context.Context, event *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *recordingEventStore) Query(_ context.Context, userID string, filter EventFilter, page, limit int) ([]*SecurityEvent, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SecurityEvent
	for _, ev := range s.events {
		if ev.UserID != userID {
			continue
		}
		if filter.EventType != "" && ev.EventType != filter.EventType {
			continue
		}
		if filter.Severity != "" && ev.Severity != filter.Severity {
			continue
		}
		out = append(out, ev)
	}
	total := int64(len(out))
	start := (page - 1) * limit
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (s *recordingEventStore) byType(eventType string) []*SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SecurityEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	engine *Engine
	users  *fakeUserStore
	events *recordingEventStore
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := defaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	// Minimum bcrypt cost keeps the suite fast.
	cfg.Password.Cost = 4
	for _, fn := range mutate {
		fn(&cfg)
	}

	users := newFakeUserStore()
	events := &recordingEventStore{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithEventStore(events).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, events: events, redis: mr}
}

func testCtx() context.Context {
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	return WithUserAgent(ctx, "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0")
}

var testUserSeq int

// registerTestUser creates an account through the engine and returns the
// result of its initial auto-login.
func registerTestUser(t *testing.T, env *testEnv) (*User, *AuthResult) {
	t.Helper()

	testUserSeq++
	email := fmt.Sprintf("user%d@example.com", testUserSeq)
	username := fmt.Sprintf("user%d", testUserSeq)

	result, err := env.engine.Register(testCtx(), RegisterInput{
		Email:    email,
		Username: username,
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := env.users.GetUserByID(context.Background(), result.UserID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	return user, result
}

// currentTOTPCode computes the code an authenticator app would show now.
func currentTOTPCode(t *testing.T, secret string) string {
	t.Helper()
	raw, err := base32.StdEncoding.DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	return hotpCode(raw, time.Now().Unix()/30, 6)
}

// enrollTwoFactor runs the full Setup+Confirm flow and returns the secret
// and plaintext backup codes.
func enrollTwoFactor(t *testing.T, env *testEnv, userID string) (string, []string) {
	t.Helper()

	setup, err := env.engine.SetupTwoFactor(testCtx(), userID)
	if err != nil {
		t.Fatalf("SetupTwoFactor: %v", err)
	}
	if err := env.engine.ConfirmTwoFactor(testCtx(), userID, currentTOTPCode(t, setup.Secret)); err != nil {
		t.Fatalf("ConfirmTwoFactor: %v", err)
	}
	return setup.Secret, setup.BackupCodes
}
