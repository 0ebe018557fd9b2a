package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned for any failed email/password check.
	// The message is deliberately generic: callers must not be able to tell
	// whether the account exists or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidInput rejects malformed registration or request fields
	// before any store call happens.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTwoFactorRequired is returned by Login when the account has a
	// confirmed second factor and no code was submitted.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrInvalidTwoFactorCode is returned when a submitted TOTP or backup
	// code does not verify.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnrolled is returned when a two-factor operation needs a
	// stored secret and none exists.
	ErrTwoFactorNotEnrolled = errors.New("two-factor not enrolled")
	// ErrEmailTaken is returned by Register when the email is already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned by Register when the username is already in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound is returned when a user id resolves to no record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive is returned when the account has been deactivated.
	ErrUserInactive = errors.New("user account inactive")
	// ErrInvalidToken is returned for tokens that fail signature validation,
	// carry the wrong type, or no longer back an active session.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for structurally valid but expired tokens
	// and for refresh attempts against an expired session.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionNotFound is returned when a session id resolves to no active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEventStoreUnavailable is returned by SecurityEvents when the event
	// store cannot be queried. Event writes never surface this; they are
	// logged and swallowed.
	ErrEventStoreUnavailable = errors.New("security event store unavailable")
	// ErrStoreUnavailable wraps credential-store connectivity failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when a method is called on an engine
	// missing a required dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind classifies engine errors into the coarse taxonomy the boundary
// maps onto HTTP status codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindConflict
	KindNotFound
)

// Kind maps an engine error to its ErrorKind. Unknown errors classify as
// KindInternal, which is the fail-closed choice for the boundary.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrInvalidTwoFactorCode),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrUserInactive):
		return KindAuthentication
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken):
		return KindConflict
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrTwoFactorNotEnrolled):
		return KindNotFound
	default:
		return KindInternal
	}
}
