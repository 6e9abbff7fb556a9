// Package notify delivers ingested messages to downstream chat and
// webhook sinks. Delivery is best-effort: the ingestion path swallows
// every error this package returns.
package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nhle/onebox/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "onebox/1.0"
)

// Notifier delivers one message to a sink.
type Notifier interface {
	Notify(ctx context.Context, msg *model.Message, account model.Account) error
}

// Multi fans one notification out to several sinks. Each sink is
// attempted regardless of earlier failures; errors are joined so the
// caller can log them together.
type Multi struct {
	targets []Notifier
}

// NewMulti creates a fan-out notifier. Nil targets are skipped; a Multi
// with no targets delivers nothing and never fails.
func NewMulti(targets ...Notifier) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Targets returns the number of configured sinks.
func (m *Multi) Targets() int {
	return len(m.targets)
}

func (m *Multi) Notify(ctx context.Context, msg *model.Message, account model.Account) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Notify(ctx, msg, account); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// preview bounds body text included in outbound payloads.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
