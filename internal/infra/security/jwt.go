package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrInvalidToken indicates the token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotActive indicates the token's not-before is still in the future.
	ErrTokenNotActive = errors.New("token not yet active")
)

const (
	defaultTokenTTL         = 72 * time.Hour
	defaultRefreshThreshold = 0.28
)

// BearerClaims is the self-contained claim set carried by issued tokens.
type BearerClaims struct {
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the issuer. Secret is the process-wide signing
// key, injected at startup and read-only thereafter; it must never appear in
// logs or responses.
type TokenIssuerConfig struct {
	Secret           []byte
	Issuer           string
	TTL              time.Duration
	RefreshThreshold float64
}

// TokenIssuer creates and verifies HS256-signed bearer tokens and decides
// when a verified token is close enough to expiry to warrant an advisory
// replacement.
type TokenIssuer struct {
	secret           []byte
	issuer           string
	ttl              time.Duration
	refreshThreshold float64
	now              func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer from the provided configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("token issuer: signing secret must be at least 32 bytes")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	threshold := cfg.RefreshThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = defaultRefreshThreshold
	}

	return &TokenIssuer{
		secret:           cfg.Secret,
		issuer:           cfg.Issuer,
		ttl:              ttl,
		refreshThreshold: threshold,
		now:              time.Now,
	}, nil
}

// TTL returns the configured token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a signed bearer token for the provided subject.
func (i *TokenIssuer) Issue(subjectID string) (string, *BearerClaims, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", nil, fmt.Errorf("token issuer: subject id is required")
	}

	now := i.now().UTC()
	claims := &BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return signed, claims, nil
}

// Verify validates the signature, expiry, and not-before of the provided
// token and returns its claims.
func (i *TokenIssuer) Verify(token string) (*BearerClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &BearerClaims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(func() time.Time { return i.now().UTC() })}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotActive
		default:
			return nil, ErrInvalidToken
		}
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ShouldRefresh reports whether the verified claims fall inside the final
// refresh window of their lifetime. The decision is advisory: callers mint a
// replacement alongside the response while the original token stays valid
// until its own expiry.
func (i *TokenIssuer) ShouldRefresh(claims *BearerClaims) bool {
	if claims == nil || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}

	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if lifetime <= 0 {
		return false
	}

	remaining := claims.ExpiresAt.Sub(i.now().UTC())
	if remaining <= 0 {
		return false
	}

	return float64(remaining) < float64(lifetime)*i.refreshThreshold
}

// WithClock overrides the internal clock, used in tests.
func (i *TokenIssuer) WithClock(clock func() time.Time) {
	if clock != nil {
		i.now = clock
	}
}
