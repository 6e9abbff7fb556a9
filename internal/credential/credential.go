// Package credential resolves credential references to secret values.
// The sync engine itself never decrypts anything: it receives plaintext
// credentials resolved here before startup. There is deliberately no
// fallback secret: a reference that cannot be resolved fails startup.
package credential

import "fmt"

// Provider resolves a credential reference to its secret value.
type Provider interface {
	Get(key string) (string, error)
}

// Static is a fixed in-memory Provider, used in tests and for
// environment-injected secrets.
type Static map[string]string

func (s Static) Get(key string) (string, error) {
	value, ok := s[key]
	if !ok {
		return "", fmt.Errorf("credential %q not found", key)
	}
	return value, nil
}
