package auth

import (
	"fmt"
	"log/slog"
)

// Registry collects authentication settings during process setup.
// It is not safe for concurrent use and must not be touched after Build.
type Registry struct {
	providers    []NamedProvider
	store        UserStore
	unauthorized UnauthorizedFunc
	bypass       BypassFunc
	enabled      bool
	filter       ResponseFilter
	extractor    ExtractorConfig
	logger       *slog.Logger
}

// NewRegistry returns a registry with security enabled and the default
// header names.
func NewRegistry() *Registry {
	return &Registry{
		enabled:   true,
		extractor: DefaultExtractorConfig(),
	}
}

// RegisterProvider appends a provider to the chain. Providers are attempted
// in the order they are registered.
func (r *Registry) RegisterProvider(name string, p Provider) error {
	if p == nil {
		return fmt.Errorf("authentication provider %q is nil", name)
	}
	for _, existing := range r.providers {
		if existing.Name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateProvider, name)
		}
	}
	r.providers = append(r.providers, NamedProvider{Name: name, Provider: p})
	return nil
}

// SetUserStore sets the store providers resolve subjects against.
func (r *Registry) SetUserStore(store UserStore) { r.store = store }

// SetUnauthorizedHandler replaces the default 401 response.
func (r *Registry) SetUnauthorizedHandler(fn UnauthorizedFunc) { r.unauthorized = fn }

// SetBypassPredicate sets the predicate that opts requests out of authentication.
func (r *Registry) SetBypassPredicate(fn BypassFunc) { r.bypass = fn }

// SetSecurityEnabled turns authentication on or off for every request.
func (r *Registry) SetSecurityEnabled(enabled bool) { r.enabled = enabled }

// SetResponseFilter sets a transform applied to every response.
func (r *Registry) SetResponseFilter(fn ResponseFilter) { r.filter = fn }

// SetExtractorConfig overrides the credential header names.
func (r *Registry) SetExtractorConfig(cfg ExtractorConfig) { r.extractor = cfg }

// SetLogger sets the logger used for authentication failures.
func (r *Registry) SetLogger(l *slog.Logger) { r.logger = l }

// Build validates the registry and returns an immutable Guard.
// It fails with ErrNoProvidersConfigured when no provider was registered.
func (r *Registry) Build() (*Guard, error) {
	chain, err := NewChain(r.store, r.providers...)
	if err != nil {
		return nil, err
	}

	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{
		chain:        chain,
		extractor:    NewExtractor(r.extractor),
		unauthorized: r.unauthorized,
		bypass:       r.bypass,
		enabled:      r.enabled,
		filter:       r.filter,
		logger:       logger,
	}, nil
}
