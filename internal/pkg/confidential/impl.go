// Package confidential implements the AES-256-GCM envelope used for
// submitted move sets: ciphertext || tag || 12-byte IV, no additional data.
package confidential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/samber/do/v2"
	"github.com/vreid/duelist/internal/pkg/keymanager"
)

const (
	IVSize  = 12
	TagSize = 16
)

var ErrDecryptionFailure = errors.New("decryption failure")

// KeySource supplies the symmetric key.
type KeySource interface {
	SymmetricKey(ctx context.Context) ([]byte, error)
}

type DecryptorService struct {
	Keys KeySource
}

func NewDecryptorService(i do.Injector) (*DecryptorService, error) {
	keyManager := do.MustInvoke[*keymanager.KeyManagerService](i)

	return &DecryptorService{
		Keys: keyManager,
	}, nil
}

func (s *DecryptorService) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	key, err := s.Keys.SymmetricKey(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return Decrypt(ciphertext, key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return gcm, nil
}

func Encrypt(plaintext []byte, key []byte) ([]byte, error) {
	iv := make([]byte, IVSize)

	_, err := io.ReadFull(rand.Reader, iv)
	if err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	return EncryptWithIV(plaintext, key, iv)
}

func EncryptWithIV(plaintext []byte, key []byte, iv []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}

	result := gcm.Seal(make([]byte, 0, len(plaintext)+TagSize+IVSize), iv, plaintext, nil)

	return append(result, iv...), nil
}

func Decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	if len(ciphertext) < IVSize+TagSize {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryptionFailure, len(ciphertext))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailure, err)
	}

	split := len(ciphertext) - IVSize

	plaintext, err := gcm.Open(nil, ciphertext[split:], ciphertext[:split], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailure, err)
	}

	// gcm.Open returns nil for an empty plaintext
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}
