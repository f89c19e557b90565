package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	service, err := NewService(key)
	require.NoError(t, err)
	return service
}

// TestNewService tests key length validation
func TestNewService(t *testing.T) {
	tests := []struct {
		name     string
		keyLen   int
		hasError bool
	}{
		{name: "Valid 32-byte key", keyLen: 32, hasError: false},
		{name: "Too short", keyLen: 16, hasError: true},
		{name: "Too long", keyLen: 64, hasError: true},
		{name: "Empty key", keyLen: 0, hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewService(make([]byte, tt.keyLen))

			if tt.hasError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

// TestNewServiceFromEnv tests hex key parsing and the random-key fallback
func TestNewServiceFromEnv(t *testing.T) {
	t.Run("Valid hex key", func(t *testing.T) {
		key := make([]byte, KeySize)
		_, err := rand.Read(key)
		require.NoError(t, err)

		service, err := NewServiceFromEnv(hex.EncodeToString(key))
		assert.NoError(t, err)
		assert.NotNil(t, service)
	})

	t.Run("Empty key falls back to a random key", func(t *testing.T) {
		service, err := NewServiceFromEnv("")
		assert.NoError(t, err)
		assert.NotNil(t, service)
	})

	t.Run("Invalid hex", func(t *testing.T) {
		_, err := NewServiceFromEnv("not-hex")
		assert.Error(t, err)
	})

	t.Run("Hex of wrong length", func(t *testing.T) {
		_, err := NewServiceFromEnv("deadbeef")
		assert.Error(t, err)
	})
}

// TestEncryptDecrypt_RoundTrip tests that sealed payloads open back to the
// original plaintext
func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	service := newTestService(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "Simple message", plaintext: "hello there"},
		{name: "Empty message", plaintext: ""},
		{name: "Unicode message", plaintext: "rose 🌹 et jasmin, ещё и уд"},
		{name: "Long message", plaintext: string(bytes.Repeat([]byte("scent "), 500))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := service.Encrypt(tt.plaintext)
			require.NoError(t, err)

			assert.Len(t, payload.IV, 12)
			assert.Len(t, payload.AuthTag, 16)

			decrypted, err := service.Decrypt(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

// TestEncrypt_FreshIV verifies two encryptions of the same plaintext never
// share an IV or ciphertext
func TestEncrypt_FreshIV(t *testing.T) {
	service := newTestService(t)

	first, err := service.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := service.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

// TestDecrypt_Tampering verifies any modified bundle fails authentication
func TestDecrypt_Tampering(t *testing.T) {
	service := newTestService(t)

	payload, err := service.Encrypt("the original message")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *database.EncryptedPayload)
	}{
		{name: "Flipped ciphertext bit", mutate: func(p *database.EncryptedPayload) { p.Ciphertext[0] ^= 0x01 }},
		{name: "Flipped tag bit", mutate: func(p *database.EncryptedPayload) { p.AuthTag[0] ^= 0x01 }},
		{name: "Flipped IV bit", mutate: func(p *database.EncryptedPayload) { p.IV[0] ^= 0x01 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := database.EncryptedPayload{
				IV:         append([]byte(nil), payload.IV...),
				Ciphertext: append([]byte(nil), payload.Ciphertext...),
				AuthTag:    append([]byte(nil), payload.AuthTag...),
			}
			tt.mutate(&tampered)

			_, err := service.Decrypt(tampered)
			assert.Error(t, err)
			assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDecryption))
		})
	}
}

// TestDecrypt_WrongKey verifies a bundle sealed under one key never opens
// under another
func TestDecrypt_WrongKey(t *testing.T) {
	first := newTestService(t)
	second := newTestService(t)

	payload, err := first.Encrypt("secret")
	require.NoError(t, err)

	_, err = second.Decrypt(payload)
	assert.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDecryption))
}

// TestDecrypt_MalformedBundle tests structural validation before opening
func TestDecrypt_MalformedBundle(t *testing.T) {
	service := newTestService(t)

	payload, err := service.Encrypt("message")
	require.NoError(t, err)

	t.Run("Short IV", func(t *testing.T) {
		bad := payload
		bad.IV = bad.IV[:4]
		_, err := service.Decrypt(bad)
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDecryption))
	})

	t.Run("Short tag", func(t *testing.T) {
		bad := payload
		bad.AuthTag = bad.AuthTag[:8]
		_, err := service.Decrypt(bad)
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDecryption))
	})

	t.Run("Empty bundle", func(t *testing.T) {
		_, err := service.Decrypt(database.EncryptedPayload{})
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDecryption))
	})
}
