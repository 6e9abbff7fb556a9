package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
)

// Classifier maps a message's sender, subject, and a bounded body
// excerpt to a category label. Implementations must be safe for
// concurrent use; sessions for different accounts share one instance.
type Classifier interface {
	Classify(ctx context.Context, sender, subject, bodyExcerpt string) (model.Category, error)
}

// MessageStore durably persists messages with idempotent-upsert
// semantics keyed on (message_id, account_id). Must be safe for
// concurrent use.
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg *model.Message) error
}

// Notifier delivers a message to downstream sinks. Delivery is strictly
// best-effort; the pipeline swallows its errors. Must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, msg *model.Message, account model.Account) error
}

const (
	defaultMaxBodyChars    = 1000
	defaultClassifyTimeout = 10 * time.Second
	defaultNotifyTimeout   = 10 * time.Second
)

// PipelineConfig tunes the per-message processing bounds.
type PipelineConfig struct {
	// MaxBodyChars caps how much body text is sent to the classifier.
	// Oversized bodies are truncated, never rejected.
	MaxBodyChars int

	// ClassifyTimeout bounds a single classification call.
	ClassifyTimeout time.Duration

	// NotifyTimeout bounds a single notification delivery.
	NotifyTimeout time.Duration
}

// Pipeline is the per-message ingestion sequence:
// parse → classify → persist → conditionally notify.
// One Pipeline is shared by every account's session.
type Pipeline struct {
	classifier Classifier
	store      MessageStore
	notifier   Notifier
	cfg        PipelineConfig
	log        *slog.Logger
}

// NewPipeline creates a Pipeline. classifier and store are required;
// notifier may be nil, which disables notifications. A nil logger uses
// slog.Default().
func NewPipeline(
	classifier Classifier,
	store MessageStore,
	notifier Notifier,
	cfg PipelineConfig,
	log *slog.Logger,
) *Pipeline {
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = defaultMaxBodyChars
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = defaultClassifyTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		classifier: classifier,
		store:      store,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
	}
}

// Process ingests a single fetched message. Parse failures drop the
// message and return nil; classification failures fall back to
// Uncategorized; only a failed persist returns an error, since losing
// the durable record is the one intolerable failure.
func (p *Pipeline) Process(ctx context.Context, account model.Account, raw mailbox.RawMessage) error {
	msg, err := ParseMessage(account, raw)
	if err != nil {
		p.log.Warn("dropping unparseable message",
			"account", account.ID, "uid", raw.UID, "error", err)
		return nil
	}

	msg.Category = p.classify(ctx, msg)

	if err := p.store.UpsertMessage(ctx, msg); err != nil {
		p.log.Error("persisting message failed",
			"account", account.ID, "message_id", msg.MessageID, "error", err)
		return fmt.Errorf("persisting message %s: %w", msg.MessageID, err)
	}

	if msg.Category == model.CategoryInterested {
		p.notify(ctx, msg, account)
	}

	p.log.Debug("ingested message",
		"account", account.ID,
		"message_id", msg.MessageID,
		"subject", msg.Subject,
		"category", msg.Category)

	return nil
}

// ProcessBatch ingests a batch of fetched messages, isolating failures:
// one bad message never blocks the rest. It returns the number of
// messages handled without a persistence failure. Cancellation is
// observed between messages; the remainder of the batch is abandoned
// and will be re-discovered on the next cycle.
func (p *Pipeline) ProcessBatch(ctx context.Context, account model.Account, raws []mailbox.RawMessage) int {
	persisted := 0
	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		if err := p.Process(ctx, account, raw); err == nil {
			persisted++
		}
	}
	return persisted
}

// classify invokes the classifier with a bounded body excerpt and maps
// every failure mode, including out-of-enumeration labels, to
// Uncategorized.
func (p *Pipeline) classify(ctx context.Context, msg *model.Message) model.Category {
	excerpt := msg.TextBody
	if excerpt == "" {
		excerpt = msg.HTMLBody
	}
	excerpt = truncate(excerpt, p.cfg.MaxBodyChars)

	cctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	defer cancel()

	category, err := p.classifier.Classify(cctx, msg.From, msg.Subject, excerpt)
	if err != nil {
		p.log.Warn("classification failed, falling back",
			"account", msg.AccountID, "message_id", msg.MessageID, "error", err)
		return model.CategoryUncategorized
	}

	if _, ok := model.ParseCategory(string(category)); !ok {
		p.log.Warn("classifier returned unknown label, falling back",
			"account", msg.AccountID, "label", string(category))
		return model.CategoryUncategorized
	}

	return category
}

// notify delivers the message downstream. Failures are logged and
// swallowed; they never affect persistence or the session.
func (p *Pipeline) notify(ctx context.Context, msg *model.Message, account model.Account) {
	if p.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(ctx, p.cfg.NotifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(nctx, msg, account); err != nil {
		p.log.Warn("notification delivery failed",
			"account", account.ID, "message_id", msg.MessageID, "error", err)
	}
}

// truncate bounds s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
