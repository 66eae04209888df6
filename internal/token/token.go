// Package token issues and verifies the signed proofs encoded in ticket QR codes.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is how long an issued scan token stays valid.
const TTL = 24 * time.Hour

var (
	ErrMissingKey   = errors.New("token signing key is not configured")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Payload is what a token binds together.
type Payload struct {
	UserID   string
	TicketID int64
}

type claims struct {
	UserID   string `json:"userId"`
	TicketID int64  `json:"ticketId"`
	jwt.RegisteredClaims
}

type Codec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

type Option func(*Codec)

// WithClock replaces time.Now, both for issuing and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(key string, opts ...Option) (*Codec, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	c := &Codec{
		key: []byte(key),
		ttl: TTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

func (c *Codec) Issue(userID string, ticketID int64) (string, error) {
	now := c.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   userID,
		TicketID: ticketID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := t.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) Verify(raw string) (Payload, error) {
	var cl claims
	_, err := c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Payload{}, ErrExpiredToken
	default:
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if cl.UserID == "" {
		return Payload{}, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return Payload{UserID: cl.UserID, TicketID: cl.TicketID}, nil
}
