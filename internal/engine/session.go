package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
)

// State is the lifecycle phase of one account's session. It is held
// only in memory and rebuilt from scratch on restart.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateBackfilling
	StateIdle
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateBackfilling:
		return "backfilling"
	case StateIdle:
		return "idle"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Mailbox is the protocol-level surface a session drives. The concrete
// implementation lives in internal/mailbox; tests substitute fakes.
type Mailbox interface {
	// FetchSince returns raw messages received since the given time.
	FetchSince(ctx context.Context, since time.Time) ([]mailbox.RawMessage, error)

	// FetchUnseen returns raw messages not yet marked seen.
	FetchUnseen(ctx context.Context) ([]mailbox.RawMessage, error)

	// WaitForUpdate blocks in the push-notification wait until new mail
	// arrives (nil), the connection fails (error), or ctx is canceled.
	WaitForUpdate(ctx context.Context) error

	// Close releases the connection handle.
	Close() error
}

// Dialer opens an authenticated Mailbox for an account.
type Dialer interface {
	Dial(ctx context.Context, account model.Account) (Mailbox, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, account model.Account) (Mailbox, error)

func (f DialerFunc) Dial(ctx context.Context, account model.Account) (Mailbox, error) {
	return f(ctx, account)
}

// Pipeline is the ingestion surface a session feeds per fetched batch.
// It returns the number of messages durably persisted.
type Pipeline interface {
	ProcessBatch(ctx context.Context, account model.Account, raws []mailbox.RawMessage) int
}

// Session owns one account's connection lifecycle:
// connect → backfill → idle-wait → fetch-new → reconnect-on-failure.
// The connection handle is exclusively owned by the session and never
// shared.
type Session struct {
	account  model.Account
	dialer   Dialer
	pipeline Pipeline
	backfill time.Duration
	backoff  *backoff
	events   EventFunc
	log      *slog.Logger

	mu    sync.Mutex
	state State
}

func newSession(
	account model.Account,
	dialer Dialer,
	pipeline Pipeline,
	backfill time.Duration,
	backoffCfg BackoffConfig,
	events EventFunc,
	log *slog.Logger,
) *Session {
	return &Session{
		account:  account,
		dialer:   dialer,
		pipeline: pipeline,
		backfill: backfill,
		backoff:  newBackoff(backoffCfg),
		events:   events,
		log:      log.With("account", account.ID),
		state:    StateDisconnected,
	}
}

// AccountID returns the id of the account this session synchronizes.
func (s *Session) AccountID() string {
	return s.account.ID
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the session state machine until ctx is canceled.
// Reconnection is unconditional: there is no attempt cap, only the stop
// signal terminates the session. Every failure path is recoverable and
// surfaced as an event, never a panic or a process-level error.
func (s *Session) Run(ctx context.Context) {
	defer s.setState(StateDisconnected)

	for {
		s.setState(StateConnecting)
		mbox, err := s.dialer.Dial(ctx, s.account)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			kind := EventConnectFailed
			if mailbox.IsAuthError(err) {
				kind = EventAuthFailed
			}
			s.emit(kind, err)
			if !s.waitRetry(ctx) {
				return
			}
			continue
		}

		s.backoff.Reset()
		s.emit(EventConnected, nil)

		err = s.serve(ctx, mbox)
		_ = mbox.Close()

		if ctx.Err() != nil {
			return
		}

		s.emit(EventConnectionLost, err)
		if !s.waitRetry(ctx) {
			return
		}
	}
}

// fetchCycleTimeout bounds one search+fetch round against a stalled
// server. Processing the fetched batch is not under this bound; each
// pipeline stage carries its own timeout.
const fetchCycleTimeout = 2 * time.Minute

// serve runs the backfill-then-idle loop on one live connection. It
// returns when the connection fails or ctx is canceled; the caller owns
// closing the mailbox.
func (s *Session) serve(ctx context.Context, mbox Mailbox) error {
	s.setState(StateBackfilling)
	since := time.Now().Add(-s.backfill)
	raws, err := s.fetch(ctx, func(fctx context.Context) ([]mailbox.RawMessage, error) {
		return mbox.FetchSince(fctx, since)
	})
	if err != nil {
		return err
	}
	n := s.pipeline.ProcessBatch(ctx, s.account, raws)
	s.log.Info("backfill complete", "fetched", len(raws), "persisted", n)

	for {
		s.setState(StateIdle)
		if err := mbox.WaitForUpdate(ctx); err != nil {
			return err
		}

		// Push notification received: fetch only unseen messages, then
		// return to the idle wait.
		s.setState(StateBackfilling)
		raws, err := s.fetch(ctx, mbox.FetchUnseen)
		if err != nil {
			return err
		}
		n := s.pipeline.ProcessBatch(ctx, s.account, raws)
		s.log.Info("fetched new mail", "fetched", len(raws), "persisted", n)
	}
}

func (s *Session) fetch(
	ctx context.Context,
	fn func(context.Context) ([]mailbox.RawMessage, error),
) ([]mailbox.RawMessage, error) {
	fctx, cancel := context.WithTimeout(ctx, fetchCycleTimeout)
	defer cancel()
	return fn(fctx)
}

// waitRetry sleeps out the backoff delay. It reports false when the
// stop signal arrived instead, in which case the pending timer has been
// released and no reconnect will fire.
func (s *Session) waitRetry(ctx context.Context) bool {
	s.setState(StateReconnecting)

	delay := s.backoff.Next()
	s.log.Info("scheduling reconnect", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Session) emit(kind EventKind, err error) {
	if err != nil {
		s.log.Warn("session event", "event", kind, "error", err)
	} else {
		s.log.Info("session event", "event", kind)
	}
	if s.events != nil {
		s.events(Event{AccountID: s.account.ID, Kind: kind, Err: err})
	}
}
