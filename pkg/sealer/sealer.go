// Package sealer encrypts persisted payloads with XChaCha20-Poly1305.
package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const Algorithm = "xchacha20poly1305"

var (
	ErrInvalidKey = errors.New("sealer: key must be 32 bytes, raw or hex encoded")
	ErrOpen       = errors.New("sealer: payload cannot be opened")
)

// envelope is the JSON form of a sealed payload, so it fits JSON columns.
type envelope struct {
	Alg   string `json:"alg"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

type Sealer struct {
	aead cipher.AEAD
}

// ParseKey accepts 64 hex characters or a raw 32 byte string.
func ParseKey(s string) ([]byte, error) {
	if len(s) == hex.EncodedLen(chacha20poly1305.KeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	if len(s) == chacha20poly1305.KeySize {
		return []byte(s), nil
	}
	return nil, ErrInvalidKey
}

func New(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal binds the ciphertext to aad; the same aad is required to open it.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealer: nonce: %w", err)
	}
	return json.Marshal(envelope{
		Alg:   Algorithm,
		Nonce: nonce,
		Data:  s.aead.Seal(nil, nonce, plaintext, aad),
	})
}

func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(sealed, &env); err != nil || env.Alg != Algorithm {
		return nil, ErrOpen
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrOpen
	}
	plaintext, err := s.aead.Open(nil, env.Nonce, env.Data, aad)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// IsSealed reports whether data looks like a sealed envelope.
func IsSealed(data []byte) bool {
	var env envelope
	return json.Unmarshal(data, &env) == nil && env.Alg == Algorithm
}
