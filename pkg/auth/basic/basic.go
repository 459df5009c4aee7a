// Package basic provides a password provider that checks the Basic auth
// user and password against bcrypt hashes held by the user store.
package basic

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/securest/pkg/auth"
)

// PasswordHolder is implemented by users that carry a password hash.
type PasswordHolder interface {
	PasswordHash() string
}

// Provider authenticates Credentials.SubjectID and Credentials.Secret.
type Provider struct{}

var _ auth.Provider = (*Provider)(nil)

// dummyHash is compared against when the user is unknown so that both
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("securest-dummy-password"), bcrypt.DefaultCost)

// New creates a password provider.
func New() *Provider {
	return &Provider{}
}

// Authenticate resolves the subject and verifies the password.
func (p *Provider) Authenticate(ctx context.Context, creds auth.Credentials, store auth.UserStore) (auth.User, error) {
	if creds.SubjectID == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: username or password is missing", auth.ErrMissingCredentials)
	}

	user, err := auth.LookupUser(ctx, store, creds.SubjectID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Secret))
		}
		return nil, err
	}

	holder, ok := user.(PasswordHolder)
	if !ok || holder.PasswordHash() == "" {
		return nil, fmt.Errorf("%w: user has no password", auth.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(holder.PasswordHash()), []byte(creds.Secret)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", auth.ErrInvalidCredentials)
	}
	return user, nil
}

// HashPassword returns a bcrypt hash of password for storing in a user record.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
