// Package signature verifies Svix-style signed webhooks: the signed content is
// "<id>.<timestamp>.<body>", HMAC-SHA256 with the base64 part of a "whsec_" secret,
// sent as one or more space separated "v1,<base64 signature>" entries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"

	secretPrefix     = "whsec_"
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("missing signature headers")
	ErrInvalidTimestamp = errors.New("invalid signature timestamp")
	ErrTimestampSkew    = errors.New("signature timestamp outside tolerance")
	ErrNoMatch          = errors.New("no matching signature")
	ErrBadSecret        = errors.New("webhook secret is not valid base64")
)

type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, now func() time.Time) (*Verifier, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil || len(key) == 0 {
		return nil, ErrBadSecret
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{key: key, tolerance: DefaultTolerance, now: now}, nil
}

// Headers is the subset of request headers the scheme needs.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

func (v *Verifier) Verify(body []byte, h Headers) error {
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return ErrMissingHeaders
	}
	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if skew := v.now().Unix() - ts; math.Abs(float64(skew)) > v.tolerance.Seconds() {
		return ErrTimestampSkew
	}

	expected := v.sign(h.ID, h.Timestamp, body)
	for _, entry := range strings.Fields(h.Signature) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrNoMatch
}

// Sign returns the header value a sender would attach for body.
func (v *Verifier) Sign(id string, ts time.Time, body []byte) Headers {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	return Headers{
		ID:        id,
		Timestamp: stamp,
		Signature: fmt.Sprintf("v1,%s", base64.StdEncoding.EncodeToString(v.sign(id, stamp, body))),
	}
}

func (v *Verifier) sign(id, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}
