// Package jwt provides a provider for bearer tokens issued by an external
// OpenID Connect identity provider. Tokens are RSA-signed JWTs verified
// against the issuer's JWKS endpoint; the subject claim is then resolved
// through the user store.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/debug"
)

// Config holds the JWT provider configuration.
type Config struct {
	// Issuer is the expected iss claim. If empty, the issuer is not validated.
	Issuer string

	// Audience is the expected aud claim. If empty, the audience is not validated.
	Audience string

	// JWKSURL is where signing keys are fetched from (required).
	JWKSURL string

	// UserClaim names the claim holding the subject. Default: "sub".
	UserClaim string

	// CacheTTL controls how long fetched keys are trusted. Default: 1 hour.
	CacheTTL time.Duration

	// Leeway tolerates clock skew on exp/nbf/iat. Default: 0.
	Leeway time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Provider validates externally issued JWTs.
type Provider struct {
	config Config
	keys   *jwksCache
}

var _ auth.Provider = (*Provider)(nil)

// New creates a JWT provider. It fails when no JWKS URL is configured.
func New(cfg Config) (*Provider, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwt: jwks url is required")
	}
	cfg.applyDefaults()
	return &Provider{
		config: cfg,
		keys:   newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
	}, nil
}

// Authenticate verifies creds.Token and resolves its subject claim.
func (p *Provider) Authenticate(ctx context.Context, creds auth.Credentials, store auth.UserStore) (auth.User, error) {
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: bearer token is missing", auth.ErrMissingCredentials)
	}

	token, err := jwtlib.Parse(creds.Token, func(token *jwtlib.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid header")
		}
		key, err := p.keys.getKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, err)
		}
		return key, nil
	}, p.parserOptions()...)
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, auth.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unreadable claims", auth.ErrInvalidToken)
	}

	subject, _ := claims[p.config.UserClaim].(string)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing %q claim", auth.ErrInvalidToken, p.config.UserClaim)
	}

	return auth.LookupUser(ctx, store, subject)
}

func (p *Provider) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(p.config.Leeway),
	}
	if p.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(p.config.Issuer))
	}
	if p.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(p.config.Audience))
	}
	return opts
}
