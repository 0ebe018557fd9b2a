package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantconsole/authcore/internal/eventlog"
	"github.com/quantconsole/authcore/jwt"
	"github.com/quantconsole/authcore/password"
	"github.com/quantconsole/authcore/session"
)

// Engine is the authentication core. Construct through the Builder;
// immutable and safe for concurrent use afterwards.
type Engine struct {
	config       Config
	logger       *slog.Logger
	sessionStore *session.Store
	userStore    UserStore
	eventStore   EventStore
	dispatcher   *eventlog.Dispatcher
	metrics      *Metrics
	totp         *totpManager
	passwords    *password.Hasher
	tokens       *jwt.Manager
}

// Close drains the async event sink. Call once during shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// Ping verifies the session registry connection.
func (e *Engine) Ping(ctx context.Context) error {
	return e.sessionStore.Ping(ctx)
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// EventsDropped reports how many async sink deliveries were dropped due to
// a full buffer. The durable event log is unaffected by drops.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// recordEvent writes a security event to the durable store and forwards a
// copy to the async sink. Store failures are logged and swallowed: the
// event log observes authentication, it never gates it.
func (e *Engine) recordEvent(ctx context.Context, userID, eventType, description string, severity Severity, metadata map[string]string) {
	event := SecurityEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventType:   eventType,
		Description: description,
		IP:          ClientIPFromContext(ctx),
		UserAgent:   UserAgentFromContext(ctx),
		Severity:    severity,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.eventStore.Insert(ctx, &event); err != nil {
		e.metricInc(MetricEventWriteFailure)
		e.logger.ErrorContext(ctx, "security event write failed",
			slog.String("event_type", eventType),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	e.dispatcher.Emit(ctx, event)
}

// startSession creates a session row plus a bound token pair for the user.
// The refresh token hash is persisted before the tokens leave the engine.
func (e *Engine) startSession(ctx context.Context, user *User) (*AuthResult, error) {
	now := time.Now()
	sessionID := uuid.NewString()
	ip := ClientIPFromContext(ctx)
	userAgent := UserAgentFromContext(ctx)
	deviceID := deviceFingerprint(userAgent, ip)

	pair, err := e.tokens.IssuePair(jwt.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
	}, sessionID, deviceID, ip)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		ID:             sessionID,
		UserID:         user.ID,
		TokenHash:      session.HashToken(pair.RefreshToken),
		UserAgent:      userAgent,
		IP:             ip,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.config.Session.Lifetime),
		LastAccessedAt: now,
	}
	if err := e.sessionStore.Create(ctx, sess); err != nil {
		// Session tracking is best effort: the tokens are still valid,
		// the session just will not appear in device listings and cannot
		// be refreshed.
		e.logger.ErrorContext(ctx, "session store write failed",
			slog.String("user_id", user.ID),
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	} else {
		e.metricInc(MetricSessionCreated)
	}

	return &AuthResult{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sessionID,
		Tokens: &TokenPair{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
		},
	}, nil
}

// ValidateAccess verifies an access token and returns the identity it
// carries. Stateless: session revocation is enforced at refresh time, not
// here, which bounds the damage window to the access TTL.
func (e *Engine) ValidateAccess(_ context.Context, tokenStr string) (*AuthResult, error) {
	claims, err := e.tokens.Parse(tokenStr, jwt.TypeAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	return &AuthResult{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Username:  claims.Username,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}
