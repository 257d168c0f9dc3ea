// Package crypto seals push subscription secrets before they reach the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrSealedWithoutKey   = errors.New("value is sealed but no encryption key is configured")
)

// sealedPrefix marks values written by an AES sealer. Rows stored before a key
// was configured have no prefix and are returned unchanged by Open.
const sealedPrefix = "v1:"

type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// NewSealer returns an AES-256-GCM sealer, or a passthrough sealer when key is empty.
func NewSealer(key string) (Sealer, error) {
	if key == "" {
		return plainSealer{}, nil
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesSealer{aead: aead}, nil
}

type aesSealer struct {
	aead cipher.AEAD
}

func (s *aesSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *aesSealer) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plaintext), nil
}

type plainSealer struct{}

func (plainSealer) Seal(plaintext string) (string, error) {
	return plaintext, nil
}

func (plainSealer) Open(stored string) (string, error) {
	if strings.HasPrefix(stored, sealedPrefix) {
		return "", ErrSealedWithoutKey
	}
	return stored, nil
}
