package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/onebox/internal/model"
)

const defaultBackfillWindow = 30 * 24 * time.Hour

// Config tunes the coordinator and the sessions it spawns.
type Config struct {
	// BackfillWindow is how far back the initial search reaches on a
	// fresh connection. Zero means 30 days.
	BackfillWindow time.Duration

	// Backoff bounds the reconnect delay for every session.
	Backoff BackoffConfig
}

// Coordinator owns the set of per-account sessions and exposes the
// single start/stop control surface. It is explicitly constructed and
// explicitly lifetimed; its owner decides when synchronization runs.
type Coordinator struct {
	dialer   Dialer
	pipeline Pipeline
	cfg      Config
	events   EventFunc
	log      *slog.Logger

	mu  sync.Mutex
	gen *generation
}

// generation is one start/stop cycle. Sessions and their reconnect
// timers observe the generation's context, so a timer scheduled before
// Stop can never fire into a dial afterwards even if Start is called
// again immediately. A plain running flag cannot give that guarantee.
type generation struct {
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sessions []*Session
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithEvents registers an observer for session events.
func WithEvents(fn EventFunc) Option {
	return func(c *Coordinator) { c.events = fn }
}

// New creates a Coordinator that dials account connections with dialer
// and feeds fetched messages through pipeline.
func New(dialer Dialer, pipeline Pipeline, cfg Config, opts ...Option) *Coordinator {
	if cfg.BackfillWindow <= 0 {
		cfg.BackfillWindow = defaultBackfillWindow
	}
	c := &Coordinator{
		dialer:   dialer,
		pipeline: pipeline,
		cfg:      cfg,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins synchronizing the active accounts, one session per
// account, and returns without waiting for any network activity.
// Calling Start while already running is a no-op. It fails
// synchronously only for a malformed account list; every runtime
// condition is handled by the sessions themselves.
func (c *Coordinator) Start(accounts []model.Account) error {
	var active []model.Account
	for _, acct := range accounts {
		if !acct.Active {
			continue
		}
		if err := acct.Validate(); err != nil {
			return fmt.Errorf("invalid account list: %w", err)
		}
		active = append(active, acct)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &generation{cancel: cancel}

	for _, acct := range active {
		s := newSession(
			acct, c.dialer, c.pipeline,
			c.cfg.BackfillWindow, c.cfg.Backoff,
			c.events, c.log,
		)
		g.sessions = append(g.sessions, s)
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			s.Run(ctx)
		}()
	}

	c.gen = g
	c.log.Info("synchronization started", "accounts", len(active))
	return nil
}

// Stop signals every live session to terminate and blocks until all of
// them acknowledge: idle waits are interrupted, pending reconnect
// timers are released, in-flight batches finish their current message
// and abandon the rest, and every connection handle is closed. Calling
// Stop while stopped is a no-op. After Stop returns, no further
// reconnect attempt from this generation can fire.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	g := c.gen
	c.gen = nil
	c.mu.Unlock()

	if g == nil {
		return
	}

	g.cancel()
	g.wg.Wait()
	c.log.Info("synchronization stopped")
}

// Running reports whether a generation of sessions is live.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != nil
}

// SessionStatus is a point-in-time view of one session.
type SessionStatus struct {
	AccountID string
	State     State
}

// Status returns the current state of every session in the running
// generation, or nil when stopped.
func (c *Coordinator) Status() []SessionStatus {
	c.mu.Lock()
	g := c.gen
	c.mu.Unlock()

	if g == nil {
		return nil
	}

	statuses := make([]SessionStatus, 0, len(g.sessions))
	for _, s := range g.sessions {
		statuses = append(statuses, SessionStatus{
			AccountID: s.AccountID(),
			State:     s.State(),
		})
	}
	return statuses
}
