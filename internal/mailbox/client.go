package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/onebox/internal/model"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleKeepalive  = 25 * time.Minute
)

// Config holds per-connection protocol parameters shared by every
// account the dialer opens.
type Config struct {
	// ConnectTimeout bounds the TCP+TLS dial. Zero means 30s.
	ConnectTimeout time.Duration

	// IdleKeepalive is how often the IDLE command is re-issued while
	// waiting for push notifications. Zero means 25m; servers commonly
	// drop IDLE connections near the protocol's 29-minute mark.
	IdleKeepalive time.Duration

	// TLSConfig optionally overrides the TLS client configuration.
	// TLS itself is not optional; there is no plaintext fallback.
	TLSConfig *tls.Config
}

// Dialer opens authenticated IMAP connections for accounts.
type Dialer struct {
	cfg Config
}

// NewDialer creates a Dialer with the given connection parameters.
func NewDialer(cfg Config) *Dialer {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IdleKeepalive <= 0 {
		cfg.IdleKeepalive = defaultIdleKeepalive
	}
	return &Dialer{cfg: cfg}
}

// Client is one live IMAP connection with INBOX selected. It is owned
// exclusively by the session that dialed it and is not safe for
// concurrent use.
type Client struct {
	cli       *imapclient.Client
	updates   chan struct{}
	keepalive time.Duration
}

// Dial connects to the account's IMAP server over TLS, authenticates,
// and selects INBOX. The caller owns the returned client and must call
// Close when done with it.
func (d *Dialer) Dial(ctx context.Context, account model.Account) (*Client, error) {
	addr := account.Addr()

	tlsDialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.cfg.ConnectTimeout},
		Config:    d.cfg.TLSConfig,
	}
	conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	// Mailbox status updates arrive unilaterally while the connection
	// is idling; a buffered signal channel coalesces them.
	updates := make(chan struct{}, 1)
	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					select {
					case updates <- struct{}{}:
					default:
					}
				}
			},
		},
	}

	cli := imapclient.New(conn, opts)

	if err := cli.Login(account.Username, account.Password).Wait(); err != nil {
		_ = cli.Close()
		return nil, &AuthError{
			AccountID: account.ID,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", account.Username, err,
			),
		}
	}

	if _, err := cli.Select("INBOX", nil).Wait(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	return &Client{
		cli:       cli,
		updates:   updates,
		keepalive: d.cfg.IdleKeepalive,
	}, nil
}

// FetchSince searches for all messages received since the given time
// and fetches their raw bodies.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]RawMessage, error) {
	return c.fetch(ctx, &imap.SearchCriteria{Since: since})
}

// FetchUnseen searches for messages without the \Seen flag and fetches
// their raw bodies. Used after a push notification instead of a full
// window search.
func (c *Client) FetchUnseen(ctx context.Context) ([]RawMessage, error) {
	return c.fetch(ctx, &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	})
}

func (c *Client) fetch(ctx context.Context, criteria *imap.SearchCriteria) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchData, err := c.cli.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.cli.Fetch(uidSet, fetchOpts)

	var raws []RawMessage
	for {
		if err := ctx.Err(); err != nil {
			_ = fetchCmd.Close()
			return raws, err
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		raw := RawMessage{UID: uint32(buf.UID)}
		for _, flag := range buf.Flags {
			if flag == imap.FlagSeen {
				raw.Seen = true
			}
		}
		raw.Raw = buf.FindBodySection(bodySection)
		raws = append(raws, raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return raws, fmt.Errorf("fetching messages: %w", err)
	}

	return raws, nil
}

// WaitForUpdate enters IDLE and blocks until the server signals new
// mail (returns nil), the connection fails (returns the error), or ctx
// is canceled (returns ctx.Err()). The IDLE command is re-issued every
// keepalive interval.
func (c *Client) WaitForUpdate(ctx context.Context) error {
	for {
		// Drain a notification that arrived between IDLE windows.
		select {
		case <-c.updates:
			return nil
		default:
		}

		idleCmd, err := c.cli.Idle()
		if err != nil {
			return fmt.Errorf("starting IDLE: %w", err)
		}

		idleDone := make(chan error, 1)
		go func() { idleDone <- idleCmd.Wait() }()

		keepalive := time.NewTimer(c.keepalive)

		select {
		case <-ctx.Done():
			keepalive.Stop()
			_ = idleCmd.Close()
			<-idleDone
			return ctx.Err()

		case <-c.updates:
			keepalive.Stop()
			if err := idleCmd.Close(); err != nil {
				return fmt.Errorf("ending IDLE: %w", err)
			}
			if err := <-idleDone; err != nil {
				return fmt.Errorf("ending IDLE: %w", err)
			}
			return nil

		case err := <-idleDone:
			// IDLE terminated without us closing it: the server hung
			// up or the connection broke.
			keepalive.Stop()
			if err == nil {
				err = fmt.Errorf("IDLE terminated by server")
			}
			return err

		case <-keepalive.C:
			if err := idleCmd.Close(); err != nil {
				return fmt.Errorf("ending IDLE: %w", err)
			}
			if err := <-idleDone; err != nil {
				return fmt.Errorf("ending IDLE: %w", err)
			}
			// Loop and re-issue IDLE.
		}
	}
}

// Close releases the connection. It drops the transport directly rather
// than negotiating LOGOUT so shutdown cannot hang on a dead peer.
func (c *Client) Close() error {
	return c.cli.Close()
}
