package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
)

// MinSecretLength is the shortest HMAC secret accepted.
const MinSecretLength = 32

// accessTokenType is the only token type the API accepts. Tokens without a
// type claim are treated as access tokens.
const accessTokenType = "access"

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Claims is the subset of token claims the API cares about.
type Claims struct {
	Subject   string
	TokenType string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier validates HS256 tokens against a shared secret.
type HMACVerifier struct {
	signingKey []byte
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

var _ Verifier = (*HMACVerifier)(nil)

// VerifierOption customizes an HMACVerifier.
type VerifierOption func(*HMACVerifier)

// WithTimeFunc replaces the clock used for expiry checks.
func WithTimeFunc(fn func() time.Time) VerifierOption {
	return func(v *HMACVerifier) {
		v.timeFunc = fn
	}
}

// WithClockSkew sets the leeway applied to time-based claims.
func WithClockSkew(skew time.Duration) VerifierOption {
	return func(v *HMACVerifier) {
		v.clockSkew = skew
	}
}

// NewHMACVerifier creates a verifier for tokens signed with secret.
func NewHMACVerifier(secret string, opts ...VerifierOption) (*HMACVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}

	v := &HMACVerifier{
		signingKey: []byte(secret),
		timeFunc:   time.Now,
		clockSkew:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses token, checks its signature and time claims, and returns
// the claims of a valid access token.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	log := logger.FromContext(ctx)

	if token == "" {
		return nil, ErrMissingToken
	}

	now := v.timeFunc()
	parsed, err := jwt.ParseWithClaims(
		token,
		&tokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token verification failed: expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token verification failed: not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token verification failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != "" && claims.TokenType != accessTokenType {
		log.Debug("token verification failed: wrong token type", "actual", claims.TokenType)
		return nil, ErrWrongTokenType
	}

	out := &Claims{
		Subject:   claims.Subject,
		TokenType: claims.TokenType,
		ID:        claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// SignForTesting issues an HS256 token for subject. Production tokens come
// from the external auth service; tests and local tooling use this.
func SignForTesting(secret, subject, tokenType string, issuedAt time.Time, lifetime time.Duration) (string, error) {
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC-SHA256: %w", err)
	}
	return signed, nil
}
