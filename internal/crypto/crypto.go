package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

// associatedData binds every ciphertext to this application context so a
// bundle lifted from another deployment fails authentication here.
const associatedData = "scentmatch-messages"

// KeySize is the required key length for AES-256-GCM.
const KeySize = 32

// Service provides authenticated encryption for message payloads. The key
// is read-only after construction and the service is safe for concurrent use.
type Service struct {
	aead cipher.AEAD
}

// NewService creates an encryption service from a 32-byte key.
func NewService(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Service{aead: aead}, nil
}

// NewServiceFromEnv builds a service from a hex-encoded key string. An empty
// key is a deployment mistake: the service still starts, on a random key,
// but everything encrypted under it is unreadable after restart.
func NewServiceFromEnv(hexKey string) (*Service, error) {
	logger := telemetry.GetContextualLogger(context.Background()).WithFields(map[string]interface{}{
		"operation": "encryption_service_init",
	})

	if hexKey == "" {
		logger.Warn("ENCRYPTION_KEY not set, using a random key; encrypted data will be unreadable after restart")
		key := make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate random key: %w", err)
		}
		return NewService(key)
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}

	return NewService(key)
}

// Encrypt seals plaintext under a fresh random IV and returns the bundle of
// IV, ciphertext and authentication tag. The IV is never reused; reuse under
// the same key would break the authenticated-encryption guarantee.
func (s *Service) Encrypt(plaintext string) (database.EncryptedPayload, error) {
	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return database.EncryptedPayload{}, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := s.aead.Seal(nil, iv, []byte(plaintext), []byte(associatedData))

	tagStart := len(sealed) - s.aead.Overhead()
	return database.EncryptedPayload{
		IV:         iv,
		Ciphertext: sealed[:tagStart],
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens a bundle produced by Encrypt under the same key. It fails
// closed: a malformed bundle, a flipped bit anywhere, or a key change all
// surface as a decryption failure, never as corrupted plaintext.
func (s *Service) Decrypt(payload database.EncryptedPayload) (string, error) {
	if len(payload.IV) != s.aead.NonceSize() {
		return "", errors.NewDecryptionError(fmt.Errorf("iv length %d, want %d", len(payload.IV), s.aead.NonceSize()))
	}
	if len(payload.AuthTag) != s.aead.Overhead() {
		return "", errors.NewDecryptionError(fmt.Errorf("auth tag length %d, want %d", len(payload.AuthTag), s.aead.Overhead()))
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+len(payload.AuthTag))
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.AuthTag...)

	plaintext, err := s.aead.Open(nil, payload.IV, sealed, []byte(associatedData))
	if err != nil {
		return "", errors.NewDecryptionError(err)
	}

	return string(plaintext), nil
}
