package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/securest/pkg/debug"
	"github.com/rhuss/securest/pkg/observability"
)

// NamedProvider pairs a provider with its registration name.
type NamedProvider struct {
	Name     string
	Provider Provider
}

// Chain attempts providers in registration order and stops at the first
// one that resolves an active user.
type Chain struct {
	providers []NamedProvider
	store     UserStore
}

// NewChain builds a chain from providers in the order given. It fails with
// ErrNoProvidersConfigured when providers is empty, and rejects nil
// providers and duplicate names.
func NewChain(store UserStore, providers ...NamedProvider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProvidersConfigured
	}

	seen := make(map[string]bool, len(providers))
	list := make([]NamedProvider, 0, len(providers))
	for _, p := range providers {
		if p.Provider == nil {
			return nil, fmt.Errorf("authentication provider %q is nil", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProvider, p.Name)
		}
		seen[p.Name] = true
		list = append(list, p)
	}

	return &Chain{providers: list, store: store}, nil
}

// Names returns provider names in attempt order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

// Authenticate runs the chain. It returns the resolved user and the name
// of the provider that resolved it. A provider failure is recorded and the
// next provider is tried; if none succeeds the result is an
// *AuthenticationFailedError listing every reason in order.
func (c *Chain) Authenticate(ctx context.Context, creds Credentials) (User, string, error) {
	var reasons []*ProviderError

	for _, p := range c.providers {
		user, err := c.attempt(ctx, p, creds)
		if err != nil {
			observability.AuthAttemptsTotal.WithLabelValues(p.Name, outcomeLabel(err)).Inc()
			debug.Log("auth", "provider rejected request", "provider", p.Name, "error", err)
			reasons = append(reasons, &ProviderError{Provider: p.Name, Err: err})
			continue
		}

		observability.AuthAttemptsTotal.WithLabelValues(p.Name, "success").Inc()
		slog.Info("user authenticated",
			"subject", user.SubjectID(),
			"provider", p.Name,
		)
		return user, p.Name, nil
	}

	return nil, "", &AuthenticationFailedError{Reasons: reasons}
}

// AuthenticateRequest runs the chain and binds the resolved user to the
// request identity slot in ctx.
func (c *Chain) AuthenticateRequest(ctx context.Context, creds Credentials) (User, error) {
	user, _, err := c.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	if err := Bind(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// attempt runs one provider and checks what it returned.
func (c *Chain) attempt(ctx context.Context, p NamedProvider, creds Credentials) (User, error) {
	user, err := p.Provider.Authenticate(ctx, creds, c.store)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive() {
		return nil, ErrUserInactive
	}
	return user, nil
}

// outcomeLabel maps a provider error to a bounded metrics label.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserInactive):
		return "user_inactive"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}
