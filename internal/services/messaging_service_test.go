package services

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/scentmatch/scentmatch/internal/crypto"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCrypto(t *testing.T) *crypto.Service {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	service, err := crypto.NewService(key)
	require.NoError(t, err)
	return service
}

func encryptedMessage(t *testing.T, cryptoService *crypto.Service, senderID, content string) *database.Message {
	t.Helper()
	payload, err := cryptoService.Encrypt(content)
	require.NoError(t, err)

	return &database.Message{
		ID:          "msg-1",
		MatchID:     "match-1",
		SenderID:    senderID,
		ReceiverID:  "other",
		Content:     payload,
		MessageType: database.MessageTypeText,
		SentAt:      time.Now().UTC(),
	}
}

// TestDecryptMessage_Framing tests IsMe resolution relative to the caller
func TestDecryptMessage_Framing(t *testing.T) {
	cryptoService := newTestCrypto(t)
	service := NewConversationService(nil, cryptoService)

	msg := encryptedMessage(t, cryptoService, "sender-1", "hello")

	t.Run("Caller is the sender", func(t *testing.T) {
		view := service.decryptMessage(context.Background(), msg, "sender-1")
		assert.True(t, view.IsMe)
		assert.Equal(t, "hello", view.Content)
	})

	t.Run("Caller is the receiver", func(t *testing.T) {
		view := service.decryptMessage(context.Background(), msg, "receiver-1")
		assert.False(t, view.IsMe)
		assert.Equal(t, "hello", view.Content)
	})
}

// TestDecryptMessage_FailureIsolation tests that an undecryptable message
// becomes a placeholder instead of an error
func TestDecryptMessage_FailureIsolation(t *testing.T) {
	cryptoService := newTestCrypto(t)
	service := NewConversationService(nil, cryptoService)

	msg := encryptedMessage(t, cryptoService, "sender-1", "secret")
	msg.Content.AuthTag[0] ^= 0x01

	view := service.decryptMessage(context.Background(), msg, "receiver-1")

	assert.True(t, view.Undecryptable)
	assert.Empty(t, view.Content)
	assert.Equal(t, msg.ID, view.ID)
	assert.Equal(t, msg.SentAt, view.SentAt)
}

// TestSendMessage_Validation tests input checks before any persistence
func TestSendMessage_Validation(t *testing.T) {
	service := NewConversationService(nil, newTestCrypto(t))
	ctx := context.Background()

	t.Run("Empty content", func(t *testing.T) {
		_, err := service.SendMessage(ctx, "actor", "match-1", "", database.MessageTypeText)
		require.Error(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInvalidArgument))
	})

	t.Run("Oversized content", func(t *testing.T) {
		_, err := service.SendMessage(ctx, "actor", "match-1", strings.Repeat("a", maxMessageLength+1), database.MessageTypeText)
		require.Error(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInvalidArgument))
	})
}
