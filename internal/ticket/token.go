// Package ticket issues the scannable ticket of a confirmed booking: a
// signed token naming the booking, its show and its seats, rendered as a QR
// image that customers receive in the chat.
package ticket

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a ticket token.  Version must match the
// booking's current ticket version; every partial cancellation bumps the
// version, which invalidates older tokens.
type Claims struct {
	Ref     string   `json:"ref"`
	ShowID  uint64   `json:"show"`
	Seats   []string `json:"seats"`
	Version int      `json:"ver"`
	jwt.RegisteredClaims
}

// Signer signs and verifies ticket tokens with HS256.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), issuer: "showbook", now: time.Now}
}

// Sign returns the compact JWT for c.  Tickets carry no expiry; they are
// invalidated through the booking status and version instead.
func (s *Signer) Sign(c Claims) (string, error) {
	if c.Ref == "" {
		return "", errors.New("ticket: empty booking ref")
	}
	c.Issuer = s.issuer
	c.Subject = c.Ref
	c.IssuedAt = jwt.NewNumericDate(s.now().UTC())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("ticket: sign: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature of raw and returns its claims.
func (s *Signer) Parse(raw string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("ticket: parse: %w", err)
	}
	return &c, nil
}
