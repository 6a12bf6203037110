// Package notify delivers progress and result text to users. Delivery is
// fire-and-forget: orchestration never blocks on, or fails because of, the
// messaging channel.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Gateway sends one text message to one recipient.
type Gateway interface {
	Notify(recipientID, text string)
}

const telegramAPIBase = "https://api.telegram.org/bot"

// Standard Telegram limit is 4096; stay under it.
const maxMessageLength = 4000

// TelegramGateway delivers via the Telegram Bot API. recipientID is the chat
// ID as a string.
type TelegramGateway struct {
	token      string
	httpClient *http.Client
}

func NewTelegramGateway(token string) *TelegramGateway {
	return &TelegramGateway{
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Notify sends asynchronously; failures are logged, never surfaced.
func (g *TelegramGateway) Notify(recipientID, text string) {
	go func() {
		if len(text) > maxMessageLength {
			log.Printf("⚠️ [NOTIFY] Message to %s too long (%d chars), truncating", recipientID, len(text))
			text = text[:maxMessageLength] + "\n\n... (truncated)"
		}
		if err := g.send(recipientID, text, true); err != nil {
			log.Printf("❌ [NOTIFY] Delivery to %s failed: %v", recipientID, err)
		}
	}()
}

func (g *TelegramGateway) send(chatID, text string, markdown bool) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markdown {
		payload["parse_mode"] = "Markdown"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s/sendMessage", telegramAPIBase, g.token)
	resp, err := g.httpClient.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	// Telegram rejects messages with broken Markdown; retry as plain text.
	if markdown && resp.StatusCode == http.StatusBadRequest {
		return g.send(chatID, text, false)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("telegram API error: %d %s", resp.StatusCode, string(body))
}

// LogGateway writes notifications to the process log; used for local runs
// and tests.
type LogGateway struct{}

func (LogGateway) Notify(recipientID, text string) {
	log.Printf("📨 [NOTIFY] To %s: %s", recipientID, text)
}
