package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nhle/onebox/internal/model"
)

func textResponse(label string) string {
	return `{"content":[{"type":"text","text":"` + label + `"}]}`
}

func newTestServer(t *testing.T, status int, body string, gotReq *apiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestClassifyLabels(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  model.Category
	}{
		{name: "interested", label: "Interested", want: model.CategoryInterested},
		{name: "meeting-booked", label: "Meeting Booked", want: model.CategoryMeetingBooked},
		{name: "spam", label: "Spam", want: model.CategorySpam},
		{name: "whitespace-trimmed", label: "Interested\\n", want: model.CategoryInterested},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, http.StatusOK, textResponse(tc.label), nil)
			defer srv.Close()

			c := NewLLMClassifier("test-key", WithEndpoint(srv.URL))
			got, err := c.Classify(context.Background(), "alice@example.com", "hello", "body")
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyRequestShape(t *testing.T) {
	var got apiRequest
	srv := newTestServer(t, http.StatusOK, textResponse("Spam"), &got)
	defer srv.Close()

	c := NewLLMClassifier("test-key",
		WithEndpoint(srv.URL),
		WithModel("claude-test"),
		WithMaxTokens(8),
	)
	if _, err := c.Classify(context.Background(), "alice@example.com", "weekly deals", "buy now"); err != nil {
		t.Fatalf("classify: %v", err)
	}

	if got.Model != "claude-test" {
		t.Errorf("model: got %q", got.Model)
	}
	if got.MaxTokens != 8 {
		t.Errorf("max tokens: got %d", got.MaxTokens)
	}
	if got.System == "" {
		t.Error("system prompt missing")
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("messages: got %+v", got.Messages)
	}
	prompt := got.Messages[0].Content
	for _, want := range []string{"alice@example.com", "weekly deals", "buy now"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestClassifyUnknownLabel(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, textResponse("Very Enthusiastic"), nil)
	defer srv.Close()

	c := NewLLMClassifier("test-key", WithEndpoint(srv.URL))
	got, err := c.Classify(context.Background(), "a@x", "s", "b")
	if err == nil {
		t.Fatal("expected error for out-of-enumeration label")
	}
	if got != model.CategoryUncategorized {
		t.Errorf("got %q, want Uncategorized", got)
	}
}

func TestClassifyAPIError(t *testing.T) {
	body := `{"error":{"type":"overloaded_error","message":"Overloaded"}}`
	srv := newTestServer(t, http.StatusServiceUnavailable, body, nil)
	defer srv.Close()

	c := NewLLMClassifier("test-key", WithEndpoint(srv.URL))
	_, err := c.Classify(context.Background(), "a@x", "s", "b")
	if err == nil {
		t.Fatal("expected error for API failure")
	}
	if !strings.Contains(err.Error(), "overloaded_error") {
		t.Errorf("error should carry API error type, got %v", err)
	}
}

func TestClassifyContextCancellation(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, textResponse("Spam"), nil)
	defer srv.Close()

	c := NewLLMClassifier("test-key", WithEndpoint(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Classify(ctx, "a@x", "s", "b"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
