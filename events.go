package authcore

import "github.com/quantconsole/authcore/internal/eventlog"

// Security event vocabulary. Event types are stable strings: downstream
// alerting keys on them, so renaming one is a breaking change.
const (
	EventRegister            = "register"
	EventLogin               = "login"
	EventLoginFailed         = "login_failed"
	EventLoginFailed2FA      = "login_failed_2fa"
	EventSuspiciousIP        = "suspicious_ip"
	EventSuspiciousUserAgent = "suspicious_user_agent"
	EventRefreshReuse        = "refresh_reuse"
	EventDeviceRevoked       = "device_revoked"
	EventLogout              = "logout"
	EventLogoutAllDevices    = "logout_all_devices"
	EventTwoFactorEnabled    = "two_factor_enabled"
	EventTwoFactorDisabled   = "two_factor_disabled"
)

// SecurityEvent is one row of the per-user security log.
type SecurityEvent = eventlog.Event

// EventFilter narrows SecurityEvents queries by type and severity.
type EventFilter = eventlog.Filter

// EventStore persists and queries security events. Implementations live
// outside the engine; see the pgstore package for the Postgres one.
type EventStore = eventlog.Store

// EventSink receives a copy of every recorded event asynchronously.
type EventSink = eventlog.Sink

// Severity levels for security events.
type Severity = eventlog.Severity

const (
	SeverityLow    = eventlog.SeverityLow
	SeverityMedium = eventlog.SeverityMedium
	SeverityHigh   = eventlog.SeverityHigh
)
