package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer    = "pitchgate"
	defaultAccessTTL = time.Hour
	clockSkew        = 5 * time.Second
)

var errMissingSecret = errors.New("identity: token secret is not configured")

// Claims represents the access token claims understood by the client.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authority signs and verifies HS256 access tokens.
type Authority struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// AuthorityOption configures Authority.
type AuthorityOption func(*Authority)

// WithIssuer overrides the expected iss claim.
func WithIssuer(issuer string) AuthorityOption {
	return func(a *Authority) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			a.issuer = issuer
		}
	}
}

// WithAccessTTL configures the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) AuthorityOption {
	return func(a *Authority) {
		if ttl > 0 {
			a.accessTTL = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) AuthorityOption {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthority constructs an Authority for the shared secret.
func NewAuthority(secret string, opts ...AuthorityOption) (*Authority, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	a := &Authority{
		secret:    []byte(secret),
		issuer:    defaultIssuer,
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue mints a token pair for userID, as the backend does when it sends a magic link.
func (a *Authority) Issue(userID, email string) (Tokens, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Tokens{}, errors.New("identity: userID is required")
	}
	now := a.now().UTC()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign token: %w", err)
	}
	return Tokens{AccessToken: signed, RefreshToken: uuid.NewString()}, nil
}

// Verify checks the signature and the required claims of an access token.
func (a *Authority) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}
