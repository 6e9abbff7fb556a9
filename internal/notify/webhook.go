package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/onebox/internal/model"
)

// Webhook POSTs a JSON event to an arbitrary HTTP endpoint for each
// notified message.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a generic webhook notifier.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

type webhookPayload struct {
	Event     string       `json:"event"`
	Timestamp string       `json:"timestamp"`
	Email     webhookEmail `json:"email"`
}

type webhookEmail struct {
	ID        string         `json:"id"`
	MessageID string         `json:"message_id"`
	From      string         `json:"from"`
	To        []string       `json:"to"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Category  model.Category `json:"category"`
	Date      time.Time      `json:"date"`
	Account   webhookAccount `json:"account"`
}

type webhookAccount struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

func (w *Webhook) Notify(ctx context.Context, msg *model.Message, account model.Account) error {
	payload := webhookPayload{
		Event:     "email_interested",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Email: webhookEmail{
			ID:        msg.ID,
			MessageID: msg.MessageID,
			From:      msg.From,
			To:        msg.To,
			Subject:   msg.Subject,
			Body:      preview(msg.TextBody, 500),
			Category:  msg.Category,
			Date:      msg.Date,
			Account: webhookAccount{
				ID:      account.ID,
				Address: account.Address,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, w.url, bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
