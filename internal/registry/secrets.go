package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrSecretNotFound = errors.New("registry: secret not found")

// Credential is one access/verify pair. Values are opaque to this package
// and must never be logged.
type Credential struct {
	Access string
	Verify string
}

// Secrets resolves a credential reference to its values.
type Secrets interface {
	Lookup(ref string) (Credential, error)
}

// EnvSecrets resolves references from environment variables of the form
// <Prefix><REF>=access;verify, with the reference upper-cased and
// non-alphanumerics mapped to underscores.
type EnvSecrets struct {
	Prefix string
}

func (e EnvSecrets) Lookup(ref string) (Credential, error) {
	key := e.Prefix + normalizeRef(ref)
	raw, ok := os.LookupEnv(key)
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	access, verify, ok := strings.Cut(raw, ";")
	if !ok || access == "" || verify == "" {
		return Credential{}, fmt.Errorf("registry: secret %s is not an access;verify pair", key)
	}
	return Credential{Access: access, Verify: verify}, nil
}

// StaticSecrets serves a fixed reference map; used by tests and by callers
// that resolve credentials through an external provider up front.
type StaticSecrets map[string]Credential

func (s StaticSecrets) Lookup(ref string) (Credential, error) {
	cred, ok := s[ref]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	return cred, nil
}

func normalizeRef(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
