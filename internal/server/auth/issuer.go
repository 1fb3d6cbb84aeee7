package auth

import (
	"time"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/cryptox"
)

// Issuer mints and validates cookie-encoded tokens.
type Issuer struct {
	signer   *cryptox.Signer
	validity time.Duration
	now      func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer returns an Issuer. A non-positive validity falls back to
// DefaultTokenValidity.
func NewIssuer(signer *cryptox.Signer, validity time.Duration, opts ...IssuerOption) *Issuer {
	if validity <= 0 {
		validity = DefaultTokenValidity
	}
	i := &Issuer{signer: signer, validity: validity, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GenerateToken issues a token for subject and returns its cookie value.
func (i *Issuer) GenerateToken(subject string) (string, *Token, error) {
	t := NewToken(subject, i.now(), i.validity)
	blob, err := t.Seal(i.signer)
	if err != nil {
		return "", nil, err
	}
	return EncodeCookieValue(blob), t, nil
}

// Inspect decodes a cookie value without checking expiry.
func (i *Issuer) Inspect(value string) (*Token, error) {
	blob, err := DecodeCookieValue(value)
	if err != nil {
		return nil, err
	}
	return OpenToken(i.signer, blob)
}

// GetUserIDFromToken returns the subject of a valid cookie value. It fails
// with common.ErrInvalidToken or common.ErrTokenExpired.
func (i *Issuer) GetUserIDFromToken(value string) (string, error) {
	t, err := i.Inspect(value)
	if err != nil {
		return "", err
	}
	if t.Expired(i.now()) {
		return "", common.ErrTokenExpired
	}
	return t.ID, nil
}
