package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nhle/onebox/internal/model"
)

var (
	testAccount = model.Account{
		ID:      "acct-1",
		Address: "me@example.com",
	}
	testMessage = &model.Message{
		ID:        "rec-1",
		MessageID: "<m1@example.com>",
		AccountID: "acct-1",
		From:      "prospect@example.com",
		To:        []string{"me@example.com"},
		Subject:   "Re: pricing question",
		TextBody:  "What does the enterprise tier cost?",
		Date:      time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		Category:  model.CategoryInterested,
	}
)

func captureServer(t *testing.T, status int, body *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading body: %v", err)
		}
		if body != nil {
			*body = b
		}
		w.WriteHeader(status)
	}))
}

func TestSlackNotifyPayload(t *testing.T) {
	var got []byte
	srv := captureServer(t, http.StatusOK, &got)
	defer srv.Close()

	s := NewSlack(srv.URL, time.Second)
	if err := s.Notify(context.Background(), testMessage, testAccount); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var payload struct {
		Blocks []struct {
			Type string `json:"type"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(got, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if len(payload.Blocks) == 0 || payload.Blocks[0].Type != "header" {
		t.Errorf("blocks: got %+v", payload.Blocks)
	}
	for _, want := range []string{"prospect@example.com", "me@example.com", "Re: pricing question"} {
		if !strings.Contains(string(got), want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestSlackAlert(t *testing.T) {
	var got []byte
	srv := captureServer(t, http.StatusOK, &got)
	defer srv.Close()

	s := NewSlack(srv.URL, time.Second)
	if err := s.Alert(context.Background(), "auth failed for acct-1"); err != nil {
		t.Fatalf("alert: %v", err)
	}
	if !strings.Contains(string(got), "auth failed for acct-1") {
		t.Errorf("alert payload: %s", got)
	}
}

func TestSlackNotifyFailureStatus(t *testing.T) {
	srv := captureServer(t, http.StatusBadRequest, nil)
	defer srv.Close()

	s := NewSlack(srv.URL, time.Second)
	if err := s.Notify(context.Background(), testMessage, testAccount); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestWebhookNotifyPayload(t *testing.T) {
	var got []byte
	srv := captureServer(t, http.StatusOK, &got)
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second)
	if err := w.Notify(context.Background(), testMessage, testAccount); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var payload webhookPayload
	if err := json.Unmarshal(got, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Event != "email_interested" {
		t.Errorf("event: got %q", payload.Event)
	}
	if payload.Email.MessageID != "<m1@example.com>" {
		t.Errorf("message id: got %q", payload.Email.MessageID)
	}
	if payload.Email.Category != model.CategoryInterested {
		t.Errorf("category: got %q", payload.Email.Category)
	}
	if payload.Email.Account.ID != "acct-1" {
		t.Errorf("account id: got %q", payload.Email.Account.ID)
	}
	if payload.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestWebhookBodyPreviewBounded(t *testing.T) {
	var got []byte
	srv := captureServer(t, http.StatusOK, &got)
	defer srv.Close()

	long := *testMessage
	long.TextBody = strings.Repeat("x", 2000)

	w := NewWebhook(srv.URL, time.Second)
	if err := w.Notify(context.Background(), &long, testAccount); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var payload webhookPayload
	if err := json.Unmarshal(got, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if len(payload.Email.Body) != 503 {
		t.Errorf("body length = %d, want 500 chars plus ellipsis", len(payload.Email.Body))
	}
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Notify(ctx context.Context, msg *model.Message, account model.Account) error {
	_ = ctx
	_ = msg
	_ = account
	s.calls++
	return s.err
}

func TestMultiFanOut(t *testing.T) {
	a := &stubNotifier{}
	b := &stubNotifier{err: errors.New("sink down")}
	c := &stubNotifier{}

	m := NewMulti(a, nil, b, c)
	if m.Targets() != 3 {
		t.Errorf("targets = %d, want 3 (nil skipped)", m.Targets())
	}

	err := m.Notify(context.Background(), testMessage, testAccount)
	if err == nil {
		t.Fatal("expected joined error from failing sink")
	}

	// Every sink is attempted despite the failure.
	for i, s := range []*stubNotifier{a, b, c} {
		if s.calls != 1 {
			t.Errorf("sink %d calls = %d, want 1", i, s.calls)
		}
	}
}

func TestMultiEmpty(t *testing.T) {
	m := NewMulti()
	if err := m.Notify(context.Background(), testMessage, testAccount); err != nil {
		t.Errorf("empty multi should not fail: %v", err)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := preview("0123456789", 4); got != "0123..." {
		t.Errorf("got %q", got)
	}
}
