package model

import (
	"fmt"
	"net"
	"strconv"
)

// Account describes one mailbox the engine synchronizes. The Password
// field holds the already-decrypted credential, ready to authenticate;
// resolving it from secure storage happens before the engine sees the
// account. Accounts are read-only inputs: the engine never mutates them.
type Account struct {
	ID       string
	Address  string
	Host     string
	Port     int
	Username string
	Password string
	Active   bool
}

// Validate reports whether the account carries everything a session
// needs to open a connection.
func (a Account) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("account has no id")
	case a.Host == "":
		return fmt.Errorf("account %s has no host", a.ID)
	case a.Port <= 0 || a.Port > 65535:
		return fmt.Errorf("account %s has invalid port %d", a.ID, a.Port)
	case a.Username == "":
		return fmt.Errorf("account %s has no username", a.ID)
	case a.Password == "":
		return fmt.Errorf("account %s has no credential", a.ID)
	}
	return nil
}

// Addr returns the host:port dial address for the account.
func (a Account) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
