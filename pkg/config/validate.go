package config

import (
	"errors"
	"fmt"
)

var knownProviders = map[string]bool{
	ProviderPassword:  true,
	ProviderToken:     true,
	ProviderAPIKey:    true,
	ProviderJWT:       true,
	ProviderAnonymous: true,
}

// Validate checks the configuration for required fields and valid values.
// Every problem is reported, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	errs = append(errs, c.Auth.validate()...)

	switch c.UserStore.Type {
	case "memory":
	case "postgres":
		if c.UserStore.Postgres.DSN == "" && c.UserStore.Postgres.DSNFile == "" {
			errs = append(errs, errors.New("userstore.postgres.dsn or userstore.postgres.dsn_file is required when userstore.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("userstore.type must be \"memory\" or \"postgres\", got %q", c.UserStore.Type))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	for i, u := range c.UserStore.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Errorf("userstore.users[%d].username is required", i))
		}
		if u.Password != "" && u.PasswordHash != "" {
			errs = append(errs, fmt.Errorf("userstore.users[%d]: password and password_hash are mutually exclusive", i))
		}
	}

	return errors.Join(errs...)
}

func (a AuthConfig) validate() []error {
	var errs []error

	if len(a.Providers) == 0 {
		errs = append(errs, errors.New("auth.providers must list at least one provider"))
	}
	seen := make(map[string]bool, len(a.Providers))
	for _, p := range a.Providers {
		if !knownProviders[p] {
			errs = append(errs, fmt.Errorf("auth.providers: unknown provider %q", p))
		}
		if seen[p] {
			errs = append(errs, fmt.Errorf("auth.providers: %q listed twice", p))
		}
		seen[p] = true
	}

	if a.AuthHeaderName == "" && a.TokenHeaderName == "" {
		errs = append(errs, errors.New("auth.auth_header_name and auth.token_header_name cannot both be empty"))
	}

	if a.HasProvider(ProviderToken) {
		if a.Token.Secret == "" && a.Token.SecretFile == "" {
			errs = append(errs, errors.New("auth.token.secret or auth.token.secret_file is required when the token provider is enabled"))
		}
		if a.Token.ExpirySeconds <= 0 {
			errs = append(errs, fmt.Errorf("auth.token.expiry_seconds must be > 0, got %d", a.Token.ExpirySeconds))
		}
	}

	if a.HasProvider(ProviderAPIKey) {
		if len(a.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty when the apikey provider is enabled"))
		}
		for i, k := range a.APIKeys {
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
		}
	}

	if a.HasProvider(ProviderJWT) && a.JWT.JWKSURL == "" {
		errs = append(errs, errors.New("auth.jwt.jwks_url is required when the jwt provider is enabled"))
	}

	return errs
}
