// Package auth issues and checks session tokens. A token is a small JSON
// payload sealed with the server's signer; possession of a valid, unexpired
// token is proof of identity.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/cryptox"
)

// DefaultTokenValidity is how long a freshly issued token is accepted.
const DefaultTokenValidity = 24 * time.Hour

// Token binds a subject to an expiry instant.
type Token struct {
	ID  string    `json:"id"`
	Due time.Time `json:"due"`
}

func NewToken(subject string, now time.Time, validity time.Duration) *Token {
	return &Token{ID: subject, Due: now.UTC().Add(validity)}
}

// Expired reports whether the token is no longer valid at now. The due
// instant itself is already expired.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.Due)
}

// Seal serializes and encrypts the token.
func (t *Token) Seal(signer *cryptox.Signer) ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return signer.Encrypt(payload)
}

// OpenToken reverses Seal. Tampered, truncated, foreign or malformed blobs
// all yield common.ErrInvalidToken.
func OpenToken(signer *cryptox.Signer, blob []byte) (*Token, error) {
	payload, err := signer.Decrypt(blob)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	var t Token
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, common.ErrInvalidToken
	}
	return &t, nil
}

// EncodeCookieValue renders a sealed token for transport in a cookie.
func EncodeCookieValue(blob []byte) string {
	return base64.StdEncoding.EncodeToString(blob)
}

func DecodeCookieValue(value string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	return blob, nil
}
