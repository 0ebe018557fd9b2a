package authcore

import (
	"context"
	"errors"

	"github.com/quantconsole/authcore/jwt"
	"github.com/quantconsole/authcore/session"
)

// Refresh exchanges a refresh token for a new access/refresh pair and
// rotates the session's stored token hash. A refresh token works exactly
// once: presenting a superseded token revokes the whole session, since it
// means two parties hold tokens from the same lineage.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.tokens.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	sess, err := e.sessionStore.Get(ctx, claims.SessionID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			return nil, ErrSessionNotFound
		default:
			return nil, err
		}
	}

	if err := e.checkSessionBinding(ctx, sess); err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	// Re-fetch the account so a deleted or deactivated user cannot keep
	// renewing, and so role or email changes land in the fresh tokens.
	user, err := e.userStore.GetUserByID(ctx, sess.UserID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrUserNotFound) {
			e.revokeDeadUserSession(ctx, sess.ID)
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		e.metricInc(MetricRefreshFailure)
		e.revokeDeadUserSession(ctx, sess.ID)
		return nil, ErrUserInactive
	}

	pair, err := e.tokens.IssuePair(jwt.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
	}, sess.ID, claims.DeviceID, ClientIPFromContext(ctx))
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	err = e.sessionStore.Rotate(ctx, sess.ID, sess.UserID,
		session.HashToken(refreshToken), session.HashToken(pair.RefreshToken))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenMismatch):
			// Reuse of a superseded token. The store has already torn the
			// session down; record it loudly.
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionRevoked)
			e.recordEvent(ctx, sess.UserID, EventRefreshReuse,
				"superseded refresh token replayed, session revoked", SeverityHigh,
				map[string]string{"session_id": sess.ID})
			return nil, ErrInvalidToken
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			e.metricInc(MetricRefreshFailure)
			return nil, ErrSessionNotFound
		default:
			e.metricInc(MetricRefreshFailure)
			return nil, err
		}
	}

	e.metricInc(MetricRefreshSuccess)

	return &TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// VerifySessionSecurity runs the session binding checks for one of the
// user's sessions against the caller's current network identity. Refresh
// performs the same checks implicitly; this entry point lets hosts audit a
// session on other sensitive operations. A session belonging to a different
// user reads as not found.
func (e *Engine) VerifySessionSecurity(ctx context.Context, userID, sessionID string) error {
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

	if err := e.checkSessionBinding(ctx, sess); err != nil {
		return err
	}

	// A passing check counts as session activity.
	if err := e.sessionStore.Touch(ctx, sessionID); err != nil {
		e.logger.WarnContext(ctx, "session touch failed",
			"session_id", sessionID, "error", err)
	}
	return nil
}

// revokeDeadUserSession tears down a session whose account no longer allows
// token renewal. Best effort; the refresh is rejected either way.
func (e *Engine) revokeDeadUserSession(ctx context.Context, sessionID string) {
	if err := e.sessionStore.Revoke(ctx, sessionID); err != nil {
		e.logger.ErrorContext(ctx, "session revoke failed",
			"session_id", sessionID, "error", err)
		return
	}
	e.metricInc(MetricSessionRevoked)
}

// checkSessionBinding compares the caller's network identity against the
// one the session was created with. An IP change is treated as hijack
// evidence: the session is revoked and the refresh rejected. A User-Agent
// change is only flagged; browser upgrades rewrite the string routinely.
func (e *Engine) checkSessionBinding(ctx context.Context, sess *session.Session) error {
	ip := ClientIPFromContext(ctx)
	if e.config.Security.RejectIPMismatch && sess.IP != "" && ip != "" && ip != sess.IP {
		e.metricInc(MetricSuspiciousIP)
		e.metricInc(MetricSessionRevoked)
		e.recordEvent(ctx, sess.UserID, EventSuspiciousIP,
			"refresh from unexpected IP, session revoked", SeverityHigh,
			map[string]string{"session_id": sess.ID, "session_ip": sess.IP})
		if err := e.sessionStore.Revoke(ctx, sess.ID); err != nil {
			e.logger.ErrorContext(ctx, "session revoke failed",
				"session_id", sess.ID, "error", err)
		}
		return ErrInvalidToken
	}

	userAgent := UserAgentFromContext(ctx)
	if e.config.Security.FlagUserAgentMismatch && sess.UserAgent != "" && userAgent != "" && userAgent != sess.UserAgent {
		e.metricInc(MetricSuspiciousUserAgent)
		e.recordEvent(ctx, sess.UserID, EventSuspiciousUserAgent,
			"refresh with changed user agent", SeverityMedium,
			map[string]string{"session_id": sess.ID})
	}

	return nil
}

// Logout revokes the session behind a refresh token. Idempotent: logging
// out an already-dead session succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.tokens.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Expired token, expired session. Nothing to revoke.
			return nil
		}
		return ErrInvalidToken
	}

	if err := e.sessionStore.Revoke(ctx, claims.SessionID); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.recordEvent(ctx, claims.Subject, EventLogout, "session logged out", SeverityLow,
		map[string]string{"session_id": claims.SessionID})

	return nil
}
