package engine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/nhle/onebox/internal/ingest"
	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/store"
	"github.com/nhle/onebox/tests/testutil"
)

// subjectClassifier labels by subject keyword, standing in for the LLM.
type subjectClassifier struct{}

func (subjectClassifier) Classify(ctx context.Context, sender, subject, bodyExcerpt string) (model.Category, error) {
	_ = ctx
	_ = sender
	_ = bodyExcerpt
	switch {
	case strings.Contains(subject, "pricing"):
		return model.CategoryInterested, nil
	case strings.Contains(subject, "Unsubscribe"):
		return model.CategorySpam, nil
	default:
		return model.CategoryUncategorized, nil
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *recordingNotifier) Notify(ctx context.Context, msg *model.Message, account model.Account) error {
	_ = ctx
	_ = account
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, msg.Subject)
	return nil
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.subjects...)
}

func rawMail(uid uint32, messageID, subject, body string) mailbox.RawMessage {
	msg := "From: prospect@example.com\r\n" +
		"To: me@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Mon, 02 Mar 2026 10:30:00 +0000\r\n" +
		"Message-ID: " + messageID + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n"
	return mailbox.RawMessage{UID: uid, Raw: []byte(msg)}
}

// TestSyncEndToEnd runs the full loop with a real pipeline and store:
// connect, backfill two messages, classify, persist, notify on the
// interested one, then verify a restart re-processes without
// duplicating rows.
func TestSyncEndToEnd(t *testing.T) {
	db := testutil.NewTestStore(t)
	notifier := &recordingNotifier{}
	pipe := ingest.NewPipeline(subjectClassifier{}, db, notifier, ingest.PipelineConfig{}, discardLogger())

	backfill := []mailbox.RawMessage{
		rawMail(1, "<msg-1@example.com>", "Re: pricing question", "What does the enterprise tier cost?"),
		rawMail(2, "<msg-2@example.com>", "Unsubscribe now", "Click here to win."),
	}

	dial := func(ctx context.Context, account model.Account) (Mailbox, error) {
		_ = ctx
		_ = account
		mbox := newFakeMailbox()
		mbox.backfill = backfill
		return mbox, nil
	}

	c := New(DialerFunc(dial), pipe, Config{Backoff: fastBackoff}, WithLogger(discardLogger()))

	if err := c.Start(testAccounts()[:1]); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx := context.Background()
	waitFor(t, func() bool {
		msgs, err := db.ListMessages(ctx, store.MessageFilter{})
		return err == nil && len(msgs) == 2
	}, "backfill to persist both messages")

	c.Stop()

	interested, err := db.GetMessage(ctx, "acct-1", "<msg-1@example.com>")
	if err != nil {
		t.Fatalf("getting msg-1: %v", err)
	}
	if interested.Category != model.CategoryInterested {
		t.Errorf("msg-1 category = %q, want Interested", interested.Category)
	}
	spam, err := db.GetMessage(ctx, "acct-1", "<msg-2@example.com>")
	if err != nil {
		t.Fatalf("getting msg-2: %v", err)
	}
	if spam.Category != model.CategorySpam {
		t.Errorf("msg-2 category = %q, want Spam", spam.Category)
	}

	notified := notifier.notified()
	if len(notified) != 1 || !strings.Contains(notified[0], "pricing") {
		t.Errorf("notifications = %v, want only the pricing message", notified)
	}

	// Restart: the same messages come down again and must overwrite, not
	// duplicate. The second notification for msg-1 marks the re-process
	// as complete.
	if err := c.Start(testAccounts()[:1]); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitFor(t, func() bool { return len(notifier.notified()) == 2 }, "re-processed backfill")
	c.Stop()

	msgs, err := db.ListMessages(ctx, store.MessageFilter{})
	if err != nil {
		t.Fatalf("listing after restart: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages after restart = %d, want 2", len(msgs))
	}

	again, err := db.GetMessage(ctx, "acct-1", "<msg-1@example.com>")
	if err != nil {
		t.Fatalf("getting msg-1 after restart: %v", err)
	}
	if again.ID != interested.ID {
		t.Errorf("record id changed on re-process: %q vs %q", again.ID, interested.ID)
	}
}

// TestSyncEndToEndPushDelivery exercises the idle-wait path: a message
// arriving after backfill is picked up from an unseen fetch.
func TestSyncEndToEndPushDelivery(t *testing.T) {
	db := testutil.NewTestStore(t)
	notifier := &recordingNotifier{}
	pipe := ingest.NewPipeline(subjectClassifier{}, db, notifier, ingest.PipelineConfig{}, discardLogger())

	mbox := newFakeMailbox()
	mbox.unseen = []mailbox.RawMessage{
		rawMail(3, "<msg-3@example.com>", "Re: pricing follow-up", "Still interested."),
	}
	dialer := &fakeDialer{script: []dialOutcome{{mbox: mbox}}}

	c := New(dialer, pipe, Config{Backoff: fastBackoff}, WithLogger(discardLogger()))
	if err := c.Start(testAccounts()[:1]); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool {
		st := c.Status()
		return len(st) == 1 && st[0].State == StateIdle
	}, "session idle after empty backfill")

	mbox.updates <- nil

	ctx := context.Background()
	waitFor(t, func() bool {
		_, err := db.GetMessage(ctx, "acct-1", "<msg-3@example.com>")
		return err == nil
	}, "pushed message to persist")

	if got := notifier.notified(); len(got) != 1 {
		t.Errorf("notifications = %v, want 1", got)
	}
}
