// Package session mints the signed session tokens returned by a successful login.
//
// Tokens are HS256 JWTs carrying a snapshot of the user record. This service only
// issues them; consumers verify with the shared secret.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/authgate/pkg/users"
)

const (
	// DefaultTTL is the lifetime of every issued session token
	DefaultTTL = 24 * time.Hour
	// MinSecretLength is the minimum HMAC secret size in bytes
	MinSecretLength = 32
)

// ErrWeakSecret is returned by NewIssuer for secrets shorter than MinSecretLength
var ErrWeakSecret = errors.New("session signing secret is too short")

// Claims is the payload of a session token. Name, AvatarURL and Department are
// encoded as null when the user record has no value.
type Claims struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Name       *string `json:"name"`
	AvatarURL  *string `json:"avatarUrl"`
	Role       string  `json:"role"`
	Department *string `json:"department"`
	jwt.RegisteredClaims
}

// Issuer signs session tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures an Issuer
type Option func(*Issuer)

// WithTTL overrides the token lifetime
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim
func WithIssuer(iss string) Option {
	return func(i *Issuer) {
		i.issuer = iss
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer creates an issuer signing with secret
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrWeakSecret, len(secret), MinSecretLength)
	}

	i := &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured token lifetime
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a token for u. The subject is the user's email.
func (i *Issuer) Issue(u *users.User) (string, error) {
	if u == nil {
		return "", fmt.Errorf("cannot issue token for nil user")
	}

	// JWT timestamps have second precision
	now := i.now().Truncate(time.Second)

	claims := Claims{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		AvatarURL:  u.AvatarURL,
		Role:       u.Role,
		Department: u.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}
