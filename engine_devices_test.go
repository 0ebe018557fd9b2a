package authcore

import (
	"context"
	"errors"
	"testing"
)

func loginFrom(t *testing.T, env *testEnv, email, ip, userAgent string) *AuthResult {
	t.Helper()
	ctx := WithUserAgent(WithClientIP(context.Background(), ip), userAgent)
	result, err := env.engine.Login(ctx, email, "correct horse battery", "")
	if err != nil {
		t.Fatalf("Login from %s: %v", ip, err)
	}
	return result
}

func TestActiveDevices(t *testing.T) {
	env := newTestEnv(t)
	user, first := registerTestUser(t, env)

	phone := loginFrom(t, env, user.Email, "198.51.100.20",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148 Safari/604.1")

	devices, err := env.engine.ActiveDevices(context.Background(), user.ID, phone.SessionID)
	if err != nil {
		t.Fatalf("ActiveDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}

	byID := make(map[string]DeviceInfo, len(devices))
	for _, d := range devices {
		byID[d.SessionID] = d
	}

	desktop, ok := byID[first.SessionID]
	if !ok {
		t.Fatalf("registration session missing from %v", devices)
	}
	if desktop.DeviceType != "desktop" || desktop.Browser != "Chrome" || desktop.OS != "Windows" {
		t.Fatalf("desktop classified as %+v", desktop)
	}
	if desktop.Current {
		t.Fatal("desktop session marked current")
	}
	if desktop.IP != "203.0.113.7" {
		t.Fatalf("desktop IP = %q", desktop.IP)
	}

	mobile := byID[phone.SessionID]
	if mobile.DeviceType != "mobile" || mobile.Browser != "Safari" || mobile.OS != "iOS" {
		t.Fatalf("mobile classified as %+v", mobile)
	}
	if !mobile.Current {
		t.Fatal("mobile session not marked current")
	}
	if len(mobile.Fingerprint) != 32 {
		t.Fatalf("fingerprint = %q", mobile.Fingerprint)
	}
}

func TestRevokeDevice(t *testing.T) {
	env := newTestEnv(t)
	user, login := registerTestUser(t, env)

	if err := env.engine.RevokeDevice(context.Background(), user.ID, login.SessionID); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}

	// The revoked session can no longer refresh.
	_, err := env.engine.Refresh(testCtx(), login.Tokens.RefreshToken)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}

	events := env.events.byType(EventDeviceRevoked)
	if len(events) != 1 || events[0].Metadata["session_id"] != login.SessionID {
		t.Fatalf("unexpected device_revoked events: %+v", events)
	}
}

func TestRevokeDeviceOwnership(t *testing.T) {
	env := newTestEnv(t)
	_, victim := registerTestUser(t, env)
	attacker, _ := registerTestUser(t, env)

	err := env.engine.RevokeDevice(context.Background(), attacker.ID, victim.SessionID)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}

	// The victim's session survives.
	if _, err := env.engine.Refresh(testCtx(), victim.Tokens.RefreshToken); err != nil {
		t.Fatalf("victim Refresh: %v", err)
	}
}

func TestRevokeDeviceUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	user, _ := registerTestUser(t, env)

	err := env.engine.RevokeDevice(context.Background(), user.ID, "no-such-session")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}
}

func TestLogoutAllDevices(t *testing.T) {
	env := newTestEnv(t)
	user, first := registerTestUser(t, env)
	second := loginFrom(t, env, user.Email, "198.51.100.20",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148 Safari/604.1")
	_, otherLogin := registerTestUser(t, env)

	n, err := env.engine.LogoutAllDevices(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("LogoutAllDevices: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d sessions, want 2", n)
	}

	for _, tok := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
		if _, err := env.engine.Refresh(testCtx(), tok); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("got %v, want ErrSessionNotFound", err)
		}
	}

	// The other account is untouched.
	if _, err := env.engine.Refresh(testCtx(), otherLogin.Tokens.RefreshToken); err != nil {
		t.Fatalf("other user's Refresh: %v", err)
	}

	if got := env.events.byType(EventLogoutAllDevices); len(got) != 1 || got[0].Severity != SeverityMedium {
		t.Fatalf("unexpected logout_all_devices events: %+v", got)
	}
}
