package authcore

import (
	"context"
	"time"
)

// User is the account record the engine authenticates against. Persistence
// is the caller's concern: the engine only ever touches users through the
// UserStore interface.
type User struct {
	ID               string
	Email            string
	Username         string
	FirstName        string
	LastName         string
	PasswordHash     string
	Role             string
	IsActive         bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	CreatedAt        time.Time
	LastLoginAt      *time.Time
	LastLoginIP      string
}

// Sanitize returns a copy safe to serialize outward: the password hash and
// TOTP secret never leave the store boundary.
func (u User) Sanitize() User {
	u.PasswordHash = ""
	u.TwoFactorSecret = ""
	return u
}

// UserStore is the persistence contract for accounts and their 2FA state.
// Lookups return ErrUserNotFound for missing rows; CreateUser returns
// ErrEmailTaken or ErrUsernameTaken on unique-constraint conflicts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time, ip string) error

	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id string) error
	DisableTwoFactor(ctx context.Context, id string) error

	// ReplaceBackupCodes stores the hashes of a freshly generated backup
	// code set, discarding any previous set. ConsumeBackupCode atomically
	// removes one matching hash and reports whether it existed.
	ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error)
}

// TokenPair is an issued access/refresh pair. ExpiresIn is the access token
// lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthResult is the outcome of a successful Register, Login, or access
// token validation.
type AuthResult struct {
	UserID    string
	Email     string
	Username  string
	Role      string
	SessionID string
	Tokens    *TokenPair
}

// TwoFactorSetup carries the enrollment material returned by
// SetupTwoFactor. The plaintext backup codes appear here once and are never
// recoverable afterwards.
type TwoFactorSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURL string   `json:"qr_code_url"`
	BackupCodes     []string `json:"backup_codes"`
}

// DeviceInfo describes one active session from the user's point of view.
type DeviceInfo struct {
	SessionID      string    `json:"session_id"`
	DeviceType     string    `json:"device_type"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	IP             string    `json:"ip_address"`
	Location       string    `json:"location"`
	Fingerprint    string    `json:"fingerprint"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Current        bool      `json:"current"`
}
