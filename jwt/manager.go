// Package jwt mints and validates the signed access/refresh token pairs used
// by the authentication engine. Tokens are stateless HS256 JWTs; revocation
// is enforced by the session registry, not here, so a token can be
// cryptographically valid yet rejected upstream because its backing session
// is gone.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values. Access and refresh tokens share the claim shape
// and differ only in TTL and the verifier action they are accepted for.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers signature, issuer, audience, and claim-shape
	// failures. Parsing fails closed: anything not provably valid is invalid.
	ErrTokenInvalid = errors.New("invalid token")
)

// Config carries the signing material and claim policy for a Manager.
// The secret is injected here, at construction time; the manager never reads
// ambient or global state.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Claims is the token payload: identity plus session binding. The session id
// ties the token to one revocable session row; device id and IP are advisory.
type Claims struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	DeviceID  string `json:"did,omitempty"`
	IP        string `json:"ip,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity is the subject material a token pair is minted for.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Role     string
}

// Pair is one issued access/refresh token pair. ExpiresIn is the access
// token lifetime in seconds, the shape the boundary returns verbatim.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Manager issues and validates token pairs. Immutable after NewManager.
type Manager struct {
	config Config
	now    func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// IssuePair mints an access and a refresh token bound to the given session.
// Both tokens carry the same identity claims; only typ and exp differ.
func (m *Manager) IssuePair(id Identity, sessionID, deviceID, ip string) (*Pair, error) {
	now := m.now()

	access, err := m.sign(id, sessionID, deviceID, ip, TypeAccess, now, m.config.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(id, sessionID, deviceID, ip, TypeRefresh, now, m.config.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.config.AccessTTL / time.Second),
	}, nil
}

func (m *Manager) sign(id Identity, sessionID, deviceID, ip, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Email:     id.Email,
		Username:  id.Username,
		Role:      id.Role,
		SessionID: sessionID,
		DeviceID:  deviceID,
		IP:        ip,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Parse validates signature, expiry, issuer, and audience, and requires the
// given token type. Expired tokens map to ErrTokenExpired; every other
// failure maps to ErrTokenInvalid.
func (m *Manager) Parse(tokenStr, wantType string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
