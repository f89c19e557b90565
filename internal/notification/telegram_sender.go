package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramSenderConfig holds Telegram sender configuration.
type TelegramSenderConfig struct {
	// BotToken is the Telegram Bot API token.
	BotToken string

	// ChatID is the operations feed chat that receives match events.
	ChatID string

	// Timeout for HTTP requests.
	Timeout time.Duration

	// BaseURL for the Telegram API (optional, for testing).
	BaseURL string
}

// TelegramSender posts match events to a Telegram chat via the Bot API.
type TelegramSender struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	apiBaseURL string
}

// NewTelegramSender creates a Telegram notification sender.
func NewTelegramSender(config TelegramSenderConfig) *TelegramSender {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramSender{
		botToken:   config.BotToken,
		chatID:     config.ChatID,
		httpClient: &http.Client{Timeout: timeout},
		apiBaseURL: baseURL,
	}
}

type telegramSendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send delivers the event as a Telegram message.
func (s *TelegramSender) Send(ctx context.Context, event Event) error {
	text := event.Text
	if text == "" {
		text = fmt.Sprintf("%s (match %s)", event.Type, event.MatchID)
	}

	body, err := json.Marshal(telegramSendMessageRequest{
		ChatID: s.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, string(payload))
	}

	return nil
}
