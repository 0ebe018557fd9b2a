package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/quantconsole/authcore/password"
)

// Login authenticates by email and password, enforcing 2FA when the account
// has it enabled. All credential failures collapse to ErrInvalidCredentials
// so the response does not reveal whether the email exists.
//
// When 2FA is enabled and twoFactorCode is empty, Login returns
// ErrTwoFactorRequired; the caller re-submits with a TOTP code or a backup
// code in the same field.
func (e *Engine) Login(ctx context.Context, email, pass, twoFactorCode string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := e.passwords.Verify(pass, user.PasswordHash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			e.metricInc(MetricLoginFailure)
			e.recordEvent(ctx, user.ID, EventLoginFailed, "wrong password", SeverityMedium, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		e.metricInc(MetricLoginFailure)
		e.recordEvent(ctx, user.ID, EventLoginFailed, "inactive account", SeverityMedium, nil)
		return nil, ErrUserInactive
	}

	if user.TwoFactorEnabled {
		if twoFactorCode == "" {
			e.metricInc(MetricLogin2FARequired)
			return nil, ErrTwoFactorRequired
		}
		if err := e.verifySecondFactor(ctx, user, twoFactorCode); err != nil {
			return nil, err
		}
	}

	// Last-login is bookkeeping; a store hiccup must not fail the login.
	if err := e.userStore.UpdateLastLogin(ctx, user.ID, time.Now().UTC(), ClientIPFromContext(ctx)); err != nil {
		e.logger.WarnContext(ctx, "last login update failed",
			"user_id", user.ID, "error", err)
	}

	result, err := e.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.recordEvent(ctx, user.ID, EventLogin, "successful login", SeverityLow, map[string]string{
		"session_id": result.SessionID,
	})

	return result, nil
}

// verifySecondFactor accepts either a current TOTP code or an unused backup
// code. Backup codes are consumed on success and never work twice.
func (e *Engine) verifySecondFactor(ctx context.Context, user *User, code string) error {
	ok, err := e.totp.VerifyCode(user.TwoFactorSecret, code)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if looksLikeBackupCode(code) {
		used, err := e.userStore.ConsumeBackupCode(ctx, user.ID, hashBackupCode(code))
		if err != nil {
			return err
		}
		if used {
			e.metricInc(MetricBackupCodeUsed)
			e.recordEvent(ctx, user.ID, EventLogin, "backup code used", SeverityMedium, nil)
			return nil
		}
	}

	e.metricInc(MetricLogin2FAFailure)
	e.recordEvent(ctx, user.ID, EventLoginFailed2FA, "invalid two-factor code", SeverityMedium, nil)
	return ErrInvalidTwoFactorCode
}

func looksLikeBackupCode(code string) bool {
	if len(code) != 9 || code[4] != '-' {
		return false
	}
	for i, r := range code {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
