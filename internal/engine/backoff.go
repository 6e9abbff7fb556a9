package engine

import (
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffInitial = 2 * time.Second
	defaultBackoffMax     = 60 * time.Second
)

// BackoffConfig bounds the delay between reconnect attempts.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = defaultBackoffInitial
	}
	if c.Max < c.Initial {
		c.Max = defaultBackoffMax
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	return c
}

// backoff produces capped-exponential delays with jitter. A low ceiling
// keeps recovery from transient blips quick without hot-looping against
// a server that is down for hours. Not safe for concurrent use; each
// session owns its own instance.
type backoff struct {
	cfg     BackoffConfig
	attempt int
}

func newBackoff(cfg BackoffConfig) *backoff {
	return &backoff{cfg: cfg.withDefaults()}
}

// Next returns the delay before the next reconnect attempt: the initial
// delay doubled per attempt, capped at Max, with ±20% jitter so a fleet
// of accounts does not reconnect in lockstep.
func (b *backoff) Next() time.Duration {
	d := b.cfg.Initial << b.attempt
	if d > b.cfg.Max || d <= 0 {
		d = b.cfg.Max
	} else {
		b.attempt++
	}

	jitter := time.Duration(rand.Int64N(2*int64(d)/5+1)) - d/5
	return d + jitter
}

// Reset restores the initial delay after a successful connect.
func (b *backoff) Reset() {
	b.attempt = 0
}
