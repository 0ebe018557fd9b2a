package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterCreatesAccountAndLogsIn(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.Register(testCtx(), RegisterInput{
		Email:     "Alice@Example.com",
		Username:  "alice",
		Password:  "correct horse battery",
		FirstName: " Alice ",
		LastName:  "Liddell",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if result.Tokens == nil || result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if result.Tokens.ExpiresIn != 3600 {
		t.Fatalf("ExpiresIn = %d, want 3600", result.Tokens.ExpiresIn)
	}
	if result.SessionID == "" {
		t.Fatal("expected a session id")
	}

	user, err := env.users.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("email not normalized to lower case: %v", err)
	}
	if user.PasswordHash == "correct horse battery" || user.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}
	if user.Role != "user" || !user.IsActive {
		t.Fatalf("unexpected defaults: %+v", user)
	}
	if user.FirstName != "Alice" || user.LastName != "Liddell" {
		t.Fatalf("profile fields not stored: %q %q", user.FirstName, user.LastName)
	}

	if got := env.events.byType(EventRegister); len(got) != 1 {
		t.Fatalf("register events = %d, want 1", len(got))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	user, _ := registerTestUser(t, env)

	_, err := env.engine.Register(testCtx(), RegisterInput{
		Email:    user.Email,
		Username: "someoneelse",
		Password: "correct horse battery",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	user, _ := registerTestUser(t, env)

	_, err := env.engine.Register(testCtx(), RegisterInput{
		Email:    "fresh@example.com",
		Username: user.Username,
		Password: "correct horse battery",
	})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("got %v, want ErrUsernameTaken", err)
	}
}

func TestRegisterStoreConflictWinsRace(t *testing.T) {
	env := newTestEnv(t)

	// Pre-checks pass but the store reports the constraint violation, as it
	// would when two registrations race.
	env.users.failCreate = ErrEmailTaken
	_, err := env.engine.Register(testCtx(), RegisterInput{
		Email:    "race@example.com",
		Username: "racer",
		Password: "correct horse battery",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name  string
		input RegisterInput
	}{
		{"empty email", RegisterInput{Username: "alice", Password: "correct horse battery"}},
		{"malformed email", RegisterInput{Email: "not-an-email", Username: "alice", Password: "correct horse battery"}},
		{"short username", RegisterInput{Email: "a@example.com", Username: "ab", Password: "correct horse battery"}},
		{"bad username chars", RegisterInput{Email: "a@example.com", Username: "al ice!", Password: "correct horse battery"}},
		{"short password", RegisterInput{Email: "a@example.com", Username: "alice", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.Register(testCtx(), tc.input); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegisterSucceedsWhenEventStoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.events.failErr = ErrEventStoreUnavailable

	result, err := env.engine.Register(testCtx(), RegisterInput{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("Register must not fail on event log trouble: %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("expected tokens despite event store failure")
	}
	if env.engine.MetricsSnapshot().Counters[MetricEventWriteFailure] == 0 {
		t.Fatal("expected event write failure counter")
	}
}
