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

// Slack posts Block Kit messages to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack creates a Slack notifier for the given incoming-webhook URL.
func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     newHTTPClient(timeout),
	}
}

type slackPayload struct {
	Text   string       `json:"text,omitempty"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts an interested-email alert with sender, account, subject,
// and a short body preview.
func (s *Slack) Notify(ctx context.Context, msg *model.Message, account model.Account) error {
	payload := slackPayload{
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "New Interested Email"},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*From:* %s", msg.From)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Account:* %s", account.Address)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Subject:* %s", msg.Subject)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Date:* %s", msg.Date.Format(time.RFC1123))},
				},
			},
			{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Preview:*\n%s", preview(msg.TextBody, 300)),
				},
			},
		},
	}
	return s.post(ctx, payload)
}

// Alert posts a plain operational message, used for session error
// events. Failures are the caller's to swallow.
func (s *Slack) Alert(ctx context.Context, text string) error {
	return s.post(ctx, slackPayload{Text: text})
}

func (s *Slack) post(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
