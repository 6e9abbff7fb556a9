package engine

// EventKind identifies what happened to a session.
type EventKind string

const (
	// EventConnected fires after a successful connect and mailbox open.
	EventConnected EventKind = "connected"

	// EventConnectFailed fires when a connect attempt fails for
	// transport reasons. The session proceeds to reconnect; observers
	// may alert.
	EventConnectFailed EventKind = "connect_failed"

	// EventAuthFailed fires when the server rejects the account
	// credentials. Recoverable like any connect failure, but worth
	// alerting on distinctly since retries rarely help.
	EventAuthFailed EventKind = "auth_failed"

	// EventConnectionLost fires when an established connection drops
	// or a fetch cycle fails mid-session.
	EventConnectionLost EventKind = "connection_lost"
)

// Event is an observable session occurrence tagged with its account.
// Events describe recoverable conditions; the session always continues
// toward reconnecting on its own.
type Event struct {
	AccountID string
	Kind      EventKind
	Err       error
}

// EventFunc observes session events. It is called from session
// goroutines and must be safe for concurrent use; it should return
// quickly.
type EventFunc func(Event)
