package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultMaxAge is the validity window for confirmation and
// password-reset links.
const DefaultMaxAge = time.Hour

// ErrInvalid is returned for any token that fails signature or age
// checks. Callers get no further detail; a tampered token and an
// expired one look the same.
var ErrInvalid = errors.New("token is invalid or expired")

// Codec issues and verifies signed, time-limited opaque tokens binding
// an email address. Tokens are stateless: validity is purely a function
// of the signature and the elapsed time since issuance. There is no
// revocation list, so a leaked token stays valid for the rest of its
// window.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec creates a codec signing with the given secret.
func NewCodec(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue produces an opaque token embedding email and the issuance time.
func (c *Codec) Issue(email string) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"email": email,
		"iat":   now.Unix(),
		"jti":   uuid.NewString(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and the token age against maxAge, and
// returns the embedded email on success.
func (c *Codec) Verify(raw string, maxAge time.Duration) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", ErrInvalid
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalid
	}
	issued, err := claims.GetIssuedAt()
	if err != nil || issued == nil {
		return "", ErrInvalid
	}
	if c.now().Sub(issued.Time) > maxAge {
		return "", ErrInvalid
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", ErrInvalid
	}
	return email, nil
}
