package presence

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified outcome of a connection handshake.
type Identity struct {
	UserID      string
	DashboardID string
}

type handshakeClaims struct {
	DashboardID string `json:"dashboard_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier authenticates connection handshakes with an HS256 bearer
// token. The subject claim names the user; an optional dashboard_id claim
// scopes the binding. Connections that fail verification are never bound.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

type VerifierOption func(*JWTVerifier)

func WithVerifierNow(now func() time.Time) VerifierOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewJWTVerifier(secret []byte, opts ...VerifierOption) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("presence: verifier secret is required")
	}
	verifier := &JWTVerifier{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(verifier)
	}
	return verifier, nil
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	if v == nil {
		return Identity{}, fmt.Errorf("presence: verifier is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("presence: handshake token is required")
	}

	claims := &handshakeClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("presence: handshake token rejected: %w", err)
	}
	if !parsed.Valid {
		return Identity{}, fmt.Errorf("presence: handshake token is invalid")
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Identity{}, fmt.Errorf("presence: handshake token has no subject")
	}
	return Identity{
		UserID:      userID,
		DashboardID: strings.TrimSpace(claims.DashboardID),
	}, nil
}
