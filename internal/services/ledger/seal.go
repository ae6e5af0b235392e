// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ledger

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var errSealedTooShort = errors.New("sealed payload too short")

// Sealer protects ballot payloads at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// AEADSealer seals with XChaCha20-Poly1305. The random nonce is prepended to
// the ciphertext.
type AEADSealer struct {
	aead cipher.AEAD
}

// NewAEADSealer creates a sealer from a 32-byte key.
func NewAEADSealer(key []byte) (*AEADSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger key: %w", err)
	}
	return &AEADSealer{aead: aead}, nil
}

func (s *AEADSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *AEADSealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, errSealedTooShort
	}
	return s.aead.Open(nil, sealed[:n], sealed[n:], nil)
}
