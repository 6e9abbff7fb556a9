// Package classify assigns category labels to ingested messages using
// an LLM over the Anthropic messages API.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nhle/onebox/internal/model"
)

const (
	defaultModel     = "claude-3-5-haiku-20241022"
	defaultMaxTokens = 32
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
)

const systemPrompt = "You are an expert email classifier. Classify emails " +
	"accurately into the given categories based on content and intent."

const promptTemplate = `Analyze the following email and categorize it into one of these categories:
- Interested: The sender shows interest in a product/service/opportunity, job applications, business inquiries
- Meeting Booked: The email is about scheduling, confirming, or discussing meetings/interviews
- Not Interested: The sender explicitly declines, rejects, or shows no interest
- Spam: Promotional emails, advertisements, marketing content, or unwanted solicitations
- Out of Office: Automatic out-of-office replies, vacation responses

Email details:
From: %s
Subject: %s
Body: %s

Respond with only the category name (exactly as listed above).`

// LLMClassifier classifies messages by asking a Claude model for one of
// the closed category labels. Safe for concurrent use.
type LLMClassifier struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	client    *http.Client
}

// Option configures an LLMClassifier.
type Option func(*LLMClassifier)

// WithModel overrides the default model.
func WithModel(name string) Option {
	return func(c *LLMClassifier) {
		if name != "" {
			c.model = name
		}
	}
}

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int) Option {
	return func(c *LLMClassifier) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(url string) Option {
	return func(c *LLMClassifier) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// NewLLMClassifier creates a classifier that authenticates with the
// given API key.
func NewLLMClassifier(apiKey string, opts ...Option) *LLMClassifier {
	c := &LLMClassifier{
		apiKey:    apiKey,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		endpoint:  apiURL,
		client:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Classify asks the model to label the message. The caller bounds the
// body excerpt; this method sends it as-is. A label outside the closed
// enumeration is an error; the pipeline maps every error to
// Uncategorized.
func (c *LLMClassifier) Classify(
	ctx context.Context,
	sender, subject, bodyExcerpt string,
) (model.Category, error) {
	prompt := fmt.Sprintf(promptTemplate, sender, subject, bodyExcerpt)

	reqBody, err := json.Marshal(apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return model.CategoryUncategorized, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody),
	)
	if err != nil {
		return model.CategoryUncategorized, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return model.CategoryUncategorized, fmt.Errorf("calling classifier API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CategoryUncategorized, fmt.Errorf("reading response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return model.CategoryUncategorized, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if apiResp.Error != nil {
			return model.CategoryUncategorized, fmt.Errorf(
				"classifier API error (%s): %s",
				apiResp.Error.Type, apiResp.Error.Message,
			)
		}
		return model.CategoryUncategorized, fmt.Errorf(
			"classifier API returned status %d", resp.StatusCode,
		)
	}

	var label string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			label = strings.TrimSpace(block.Text)
			break
		}
	}

	category, ok := model.ParseCategory(label)
	if !ok {
		return model.CategoryUncategorized, fmt.Errorf(
			"classifier returned unknown label %q", label,
		)
	}

	return category, nil
}
