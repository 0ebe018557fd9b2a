package authcore

import (
	"context"
	"errors"

	"github.com/quantconsole/authcore/password"
)

// SetupTwoFactor begins 2FA enrollment: it generates and stores a secret
// and a fresh backup code set, but does not enable enforcement until the
// user proves possession through ConfirmTwoFactor. Calling it again before
// confirmation simply re-rolls the secret and codes.
func (e *Engine) SetupTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.userStore.SetTwoFactorSecret(ctx, user.ID, secret); err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashBackupCode(code)
	}
	if err := e.userStore.ReplaceBackupCodes(ctx, user.ID, hashes); err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURL: e.totp.ProvisioningURL(secret, user.Email),
		BackupCodes:     codes,
	}, nil
}

// ConfirmTwoFactor completes enrollment by verifying a live code against
// the pending secret, then turns enforcement on.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, userID, code string) error {
	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorSecret == "" {
		return ErrTwoFactorNotEnrolled
	}

	ok, err := e.totp.VerifyCode(user.TwoFactorSecret, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTwoFactorCode
	}

	if err := e.userStore.EnableTwoFactor(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.recordEvent(ctx, user.ID, EventTwoFactorEnabled, "two-factor enabled", SeverityLow, nil)

	return nil
}

// DisableTwoFactor turns enforcement off. It demands both the password and
// a current code so a hijacked session alone cannot strip the account's
// second factor.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, pass, code string) error {
	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnrolled
	}

	if err := e.passwords.Verify(pass, user.PasswordHash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := e.verifySecondFactor(ctx, user, code); err != nil {
		return err
	}

	if err := e.userStore.DisableTwoFactor(ctx, user.ID); err != nil {
		return err
	}
	if err := e.userStore.ReplaceBackupCodes(ctx, user.ID, nil); err != nil {
		return err
	}

	// Every session predates the weakened account state; drop them all.
	if n, err := e.sessionStore.RevokeAll(ctx, user.ID); err != nil {
		e.logger.ErrorContext(ctx, "session revocation after 2fa disable failed",
			"user_id", user.ID, "error", err)
	} else if n > 0 {
		e.metricInc(MetricSessionRevoked)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.recordEvent(ctx, user.ID, EventTwoFactorDisabled, "two-factor disabled", SeverityMedium, nil)

	return nil
}

// RegenerateBackupCodes replaces the remaining backup codes with a fresh
// set, invalidating every unused old code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnrolled
	}

	codes, err := generateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashBackupCode(code)
	}
	if err := e.userStore.ReplaceBackupCodes(ctx, user.ID, hashes); err != nil {
		return nil, err
	}

	return codes, nil
}
