// Package mailbox implements the protocol-level connection to an IMAP
// server: TLS dial, authentication, mailbox selection, windowed and
// unseen searches, raw message fetches, and the long-lived IDLE wait.
package mailbox

import (
	"errors"
	"fmt"
)

// RawMessage is the transient protocol-level handle for one fetched
// message: its UID within the selected mailbox, whether the server
// reports it as seen, and the raw RFC 5322 bytes. It exists only for
// the duration of a fetch cycle.
type RawMessage struct {
	UID  uint32
	Seen bool
	Raw  []byte
}

// AuthError indicates that the server rejected the account credentials.
// Transport failures use plain wrapped errors; auth failures get their
// own type so observers can alert differently.
type AuthError struct {
	AccountID string
	Message   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.AccountID, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
