// Package apikey provides a provider that accepts static API keys sent in
// the token header. Keys are stored as SHA-256 hashes and compared in
// constant time; each key maps to a subject resolved through the user store.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/rhuss/securest/pkg/auth"
)

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key     string
	Subject string
}

// keyEntry maps a key hash to a subject.
type keyEntry struct {
	hash    [32]byte
	subject string
}

// Provider validates API keys against a static key list.
type Provider struct {
	keys []keyEntry
}

var _ auth.Provider = (*Provider)(nil)

// New creates an API key provider. Keys are hashed immediately; plaintext
// keys are not retained. Entries with an empty key or subject are rejected.
func New(entries []RawKeyEntry) (*Provider, error) {
	p := &Provider{}
	for i, e := range entries {
		if e.Key == "" || e.Subject == "" {
			return nil, fmt.Errorf("api key entry %d: key and subject are required", i)
		}
		p.keys = append(p.keys, keyEntry{
			hash:    sha256.Sum256([]byte(e.Key)),
			subject: e.Subject,
		})
	}
	return p, nil
}

// Authenticate matches creds.Token against the configured keys and
// resolves the key's subject.
func (p *Provider) Authenticate(ctx context.Context, creds auth.Credentials, store auth.UserStore) (auth.User, error) {
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: api key is missing", auth.ErrMissingCredentials)
	}

	tokenHash := sha256.Sum256([]byte(creds.Token))

	// Every entry is compared so the time taken does not reveal which key matched.
	subject := ""
	for _, entry := range p.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.hash[:]) == 1 {
			subject = entry.subject
		}
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: unknown api key", auth.ErrInvalidCredentials)
	}

	return auth.LookupUser(ctx, store, subject)
}
