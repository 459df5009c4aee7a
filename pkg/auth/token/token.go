// Package token provides a signed, time-limited token provider.
//
// Tokens are HS256 JWTs carrying the subject in a "username" claim and the
// issue time in "iat". Expiry is decided on the server from iat and the
// configured lifetime; any expiry claim sent by a client is ignored.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/observability"
)

// DefaultExpiry is the token lifetime when none is configured.
const DefaultExpiry = 600 * time.Second

const signingMethod = "HS256"

// ErrNotAuthenticated is returned by Issue when the request has no bound user.
var ErrNotAuthenticated = errors.New("no authenticated user to issue a token for")

// Config holds the token provider configuration.
type Config struct {
	// Secret is the HMAC signing key (required).
	Secret []byte

	// Expiry is the token lifetime. Default: 600s.
	Expiry time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Expiry == 0 {
		c.Expiry = DefaultExpiry
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Provider issues and verifies tokens.
type Provider struct {
	config Config
}

var _ auth.Provider = (*Provider)(nil)

type claims struct {
	Username string `json:"username"`
	jwtlib.RegisteredClaims
}

// New creates a token provider. It fails when the secret is empty or the
// expiry is negative.
func New(cfg Config) (*Provider, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if cfg.Expiry < 0 {
		return nil, fmt.Errorf("token: expiry must not be negative, got %s", cfg.Expiry)
	}
	cfg.applyDefaults()
	return &Provider{config: cfg}, nil
}

// Expiry returns the configured token lifetime.
func (p *Provider) Expiry() time.Duration { return p.config.Expiry }

// IssueFor signs a token for subject.
func (p *Provider) IssueFor(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token: subject is required")
	}

	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{
		Username: subject,
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt: jwtlib.NewNumericDate(p.config.Now()),
		},
	})

	signed, err := tok.SignedString(p.config.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	observability.TokensIssuedTotal.Inc()
	return signed, nil
}

// Issue signs a token for the user bound to the current request.
func (p *Provider) Issue(ctx context.Context) (string, error) {
	user, err := auth.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if user == nil || user.IsAnonymous() {
		return "", ErrNotAuthenticated
	}
	return p.IssueFor(user.SubjectID())
}

// Authenticate verifies creds.Token and resolves its subject through store.
func (p *Provider) Authenticate(ctx context.Context, creds auth.Credentials, store auth.UserStore) (auth.User, error) {
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: token is missing or empty", auth.ErrMissingCredentials)
	}

	subject, err := p.Verify(creds.Token)
	if err != nil {
		return nil, err
	}

	return auth.LookupUser(ctx, store, subject)
}

// Verify checks the signature and age of raw and returns its subject.
func (p *Provider) Verify(raw string) (string, error) {
	var cl claims
	_, err := jwtlib.ParseWithClaims(raw, &cl, func(*jwtlib.Token) (any, error) {
		return p.config.Secret, nil
	},
		jwtlib.WithValidMethods([]string{signingMethod}),
		jwtlib.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	if cl.IssuedAt == nil {
		return "", fmt.Errorf("%w: missing issue time", auth.ErrInvalidToken)
	}
	// iat has whole-second precision, so age is measured in whole seconds.
	now := p.config.Now().Truncate(time.Second)
	issuedAt := cl.IssuedAt.Time
	if issuedAt.After(now) {
		return "", fmt.Errorf("%w: issued in the future", auth.ErrInvalidToken)
	}
	if now.Sub(issuedAt) > p.config.Expiry {
		return "", auth.ErrTokenExpired
	}

	if cl.Username == "" {
		return "", fmt.Errorf("%w: missing subject", auth.ErrInvalidToken)
	}
	return cl.Username, nil
}

// issueResponse is the body written by IssueHandler.
type issueResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// IssueHandler returns a handler that issues a token for the authenticated
// caller. It must be mounted behind the auth Guard.
func (p *Provider) IssueHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := p.Issue(r.Context())
		if err != nil {
			if errors.Is(err, ErrNotAuthenticated) {
				auth.WriteUnauthorized(w)
				return
			}
			http.Error(w, `{"error":{"type":"server_error","message":"token issuance failed"}}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(issueResponse{
			Token:     tok,
			ExpiresIn: int64(p.config.Expiry / time.Second),
		})
	})
}
