package challenge

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"strconv"
	"time"
)

// DefaultMinDelay is how long a visitor must spend on the page before submitting.
const DefaultMinDelay = 1500 * time.Millisecond

// Challenge is issued on page load and echoed back with the submission.
type Challenge struct {
	IssuedAt          int64  `json:"issuedAt"` // unix milliseconds
	Salt              string `json:"salt"`
	FingerprintLength int    `json:"fingerprintLength"`
	Token             string `json:"token"`
}

// ComputeToken derives the token from the challenge's other fields.
func ComputeToken(issuedAt int64, salt string, fingerprintLength int) string {
	return Hash(fmt.Sprintf("%d:%s:%d", issuedAt, salt, fingerprintLength))
}

// Issuer creates and verifies challenges.
type Issuer struct {
	now func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(opts ...IssuerOption) *Issuer {
	i := &Issuer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a fresh challenge for a client whose fingerprint has the given length.
func (i *Issuer) Issue(fingerprintLength int) Challenge {
	issuedAt := i.now().UnixMilli()
	salt := randomSalt()
	return Challenge{
		IssuedAt:          issuedAt,
		Salt:              salt,
		FingerprintLength: fingerprintLength,
		Token:             ComputeToken(issuedAt, salt, fingerprintLength),
	}
}

// Verify checks c against the issuer's clock.
func (i *Issuer) Verify(c *Challenge, minDelay time.Duration) bool {
	return VerifyAt(c, minDelay, i.now())
}

// VerifyAt reports whether c is untampered and at least minDelay old at now.
func VerifyAt(c *Challenge, minDelay time.Duration, now time.Time) bool {
	if c == nil || c.Token == "" {
		return false
	}
	if ComputeToken(c.IssuedAt, c.Salt, c.FingerprintLength) != c.Token {
		return false
	}
	return now.UnixMilli()-c.IssuedAt >= minDelay.Milliseconds()
}

// randomSalt draws 16 bytes from the system CSPRNG and falls back to the
// math/rand source if that fails.
func randomSalt() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatUint(mrand.Uint64(), 36)
	}
	return new(big.Int).SetBytes(b).Text(36)
}
