// Package cryptox implements the symmetric authenticated encryption used to
// seal session tokens, and the one-way password verifier stored for users.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/sha3"
)

// NonceSize is the length of the random prefix of every sealed blob.
const NonceSize = 12

// ErrSignature is returned for any encryption or decryption failure. It
// never says why decryption failed.
var ErrSignature = errors.New("signature error")

// Signer seals and opens opaque payloads with AES-256-GCM under a key
// derived from a configured secret. A Signer is immutable after
// construction and safe for concurrent use.
type Signer struct {
	aead cipher.AEAD
}

// DeriveKey hashes the configured secret into a 256-bit key.
func DeriveKey(secret string) []byte {
	key := sha3.Sum256([]byte(secret))
	return key[:]
}

// NewSigner builds a Signer whose key is SHA3-256(secret).
func NewSigner(secret string) (*Signer, error) {
	key := DeriveKey(secret)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}

	return &Signer{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce || ciphertext || tag.
//
// A fresh nonce is read from crypto/rand on every call.
func (s *Signer) Encrypt(plaintext []byte) ([]byte, error) {
	buf := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())

	if _, err := rand.Read(buf); err != nil {
		return nil, ErrSignature
	}

	return s.aead.Seal(buf, buf[:NonceSize], plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Short input, a wrong key and
// any corruption all yield ErrSignature.
func (s *Signer) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, ErrSignature
	}

	nonce, body := blob[:NonceSize], blob[NonceSize:]

	plaintext, err := s.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrSignature
	}

	return plaintext, nil
}

// VerifierSize is the length of a password verifier.
const VerifierSize = 64

// HashPassword returns the SHA3-512 verifier for a plaintext password.
func HashPassword(password string) []byte {
	sum := sha3.Sum512([]byte(password))
	return sum[:]
}

// VerifyPassword compares a stored verifier with a candidate in constant time.
func VerifyPassword(verifier, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}
