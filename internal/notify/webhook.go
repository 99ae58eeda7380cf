package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookPayload is the body POSTed to the chat-transport gateway.
type webhookPayload struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// WebhookSender POSTs each message as JSON. The message id doubles as the
// Idempotency-Key header so the gateway can drop retries.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender returns a sender for url. A nil client uses a 10s timeout client.
func NewWebhookSender(url string, client *http.Client) (*WebhookSender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url cannot be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSender{url: url, client: client}, nil
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		ID:        msg.ID,
		Recipient: msg.RecipientID,
		Text:      msg.Text,
		QueuedAt:  msg.EnqueuedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
