package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrMissingCredentials means the credentials a provider needs are absent.
	ErrMissingCredentials = errors.New("credentials are missing")

	// ErrInvalidToken means a token failed signature or payload checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired means a correctly signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrUserNotFound means the user store has no user for the subject.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserInactive means the resolved user is disabled.
	ErrUserInactive = errors.New("user is not active")

	// ErrInvalidCredentials means credentials were present but wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoProvidersConfigured is a fatal setup error: the chain is empty.
	ErrNoProvidersConfigured = errors.New("no authentication providers configured")

	// ErrDuplicateProvider is a setup error: two providers share a name.
	ErrDuplicateProvider = errors.New("authentication provider already registered")

	// ErrNoUserStore means a provider needed a user store and none was set.
	ErrNoUserStore = errors.New("no user store configured")

	// ErrNoActiveRequestContext means identity was accessed outside a
	// request scope. It indicates an integration bug.
	ErrNoActiveRequestContext = errors.New("working outside of request context")

	// ErrIdentityAlreadyBound means a second bind was attempted within one request.
	ErrIdentityAlreadyBound = errors.New("request identity already bound")
)

// ProviderError records why a single provider rejected a request.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AuthenticationFailedError is returned when every provider in the chain
// rejected the request. Reasons are in attempt order.
type AuthenticationFailedError struct {
	Reasons []*ProviderError
}

func (e *AuthenticationFailedError) Error() string {
	if len(e.Reasons) == 0 {
		return "authentication failed"
	}
	msgs := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		msgs[i] = r.Error()
	}
	return "all authentication providers failed:\n" + strings.Join(msgs, "\n")
}

// Unwrap exposes the individual provider errors to errors.Is and errors.As.
func (e *AuthenticationFailedError) Unwrap() []error {
	errs := make([]error, len(e.Reasons))
	for i, r := range e.Reasons {
		errs[i] = r
	}
	return errs
}
