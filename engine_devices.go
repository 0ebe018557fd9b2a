package authcore

import (
	"context"
	"errors"

	"github.com/quantconsole/authcore/internal/device"
	"github.com/quantconsole/authcore/session"
)

// ActiveDevices lists the user's live sessions with the device metadata
// derived from each session's User-Agent. currentSessionID marks which
// entry belongs to the caller; pass "" if unknown.
func (e *Engine) ActiveDevices(ctx context.Context, userID, currentSessionID string) ([]DeviceInfo, error) {
	sessions, err := e.sessionStore.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	devices := make([]DeviceInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := device.Classify(sess.UserAgent)
		devices = append(devices, DeviceInfo{
			SessionID:      sess.ID,
			DeviceType:     info.Class,
			Browser:        info.Browser,
			OS:             info.OS,
			IP:             sess.IP,
			Location:       sess.Location,
			Fingerprint:    device.Fingerprint(sess.UserAgent, sess.IP),
			CreatedAt:      sess.CreatedAt,
			LastAccessedAt: sess.LastAccessedAt,
			Current:        sess.ID == currentSessionID,
		})
	}

	return devices, nil
}

// RevokeDevice terminates one of the user's sessions. The ownership check
// stops a user from revoking someone else's session by guessing IDs.
func (e *Engine) RevokeDevice(ctx context.Context, userID, sessionID string) error {
	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			return ErrSessionNotFound
		default:
			return err
		}
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}

	if err := e.sessionStore.Revoke(ctx, sessionID); err != nil {
		return err
	}

	e.metricInc(MetricSessionRevoked)
	e.recordEvent(ctx, userID, EventDeviceRevoked, "device session revoked", SeverityLow,
		map[string]string{"session_id": sessionID})

	return nil
}

// LogoutAllDevices revokes every session the user has and returns how many
// were dropped.
func (e *Engine) LogoutAllDevices(ctx context.Context, userID string) (int, error) {
	n, err := e.sessionStore.RevokeAll(ctx, userID)
	if err != nil {
		return n, err
	}

	e.metricInc(MetricLogoutAll)
	e.recordEvent(ctx, userID, EventLogoutAllDevices, "all devices logged out", SeverityMedium, nil)

	return n, nil
}

// deviceFingerprint is a stable identifier for a user-agent/IP pairing.
func deviceFingerprint(userAgent, ip string) string {
	if userAgent == "" && ip == "" {
		return ""
	}
	return device.Fingerprint(userAgent, ip)
}
