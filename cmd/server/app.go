package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/auth/anonymous"
	"github.com/rhuss/securest/pkg/auth/apikey"
	"github.com/rhuss/securest/pkg/auth/basic"
	"github.com/rhuss/securest/pkg/auth/jwt"
	"github.com/rhuss/securest/pkg/auth/token"
	"github.com/rhuss/securest/pkg/config"
	"github.com/rhuss/securest/pkg/observability"
	"github.com/rhuss/securest/pkg/transport"
	"github.com/rhuss/securest/pkg/userstore/memory"
	"github.com/rhuss/securest/pkg/userstore/postgres"
	"github.com/rhuss/securest/pkg/userstore/rediscache"
)

// healthChecker is implemented by stores with a remote backend.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// app holds the wired components of the server.
type app struct {
	cfg     *config.Config
	store   auth.UserStore
	guard   *auth.Guard
	tokens  *token.Provider
	checks  []healthChecker
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if err := a.buildUserStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildGuard(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases store connections in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) buildUserStore(ctx context.Context) error {
	users, err := seedUsers(a.cfg.UserStore.Users)
	if err != nil {
		return err
	}

	switch a.cfg.UserStore.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            a.cfg.UserStore.Postgres.DSN,
			MaxConns:       a.cfg.UserStore.Postgres.MaxConns,
			MigrateOnStart: a.cfg.UserStore.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("creating postgres user store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.checks = append(a.checks, pg)
		for _, u := range users {
			if err := pg.Upsert(ctx, u); err != nil {
				return fmt.Errorf("seeding user %q: %w", u.Username, err)
			}
		}
		a.store = pg
		slog.Info("user store enabled", "type", "postgres", "seeded", len(users))
	default:
		a.store = memory.New(users...)
		slog.Info("user store enabled", "type", "memory", "users", len(users))
	}

	rc := a.cfg.UserStore.Cache.Redis
	if rc.Addr == "" {
		return nil
	}
	cache, err := rediscache.New(ctx, rediscache.Config{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		KeyPrefix: rc.KeyPrefix,
		TTL:       rc.TTL,
	}, a.store)
	if err != nil {
		return fmt.Errorf("creating redis user cache: %w", err)
	}
	a.closers = append(a.closers, cache.Close)
	a.checks = append(a.checks, cache)

	// The cache may be shared with earlier deployments; drop entries for
	// users whose configuration was just applied.
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	if err := cache.Invalidate(ctx, names...); err != nil {
		return fmt.Errorf("invalidating cached users: %w", err)
	}
	a.store = cache
	slog.Info("user cache enabled", "type", "redis", "addr", rc.Addr, "ttl", rc.TTL)
	return nil
}

// seedUsers converts configured users, hashing plaintext passwords.
func seedUsers(cfgs []config.UserConfig) ([]*auth.RegisteredUser, error) {
	users := make([]*auth.RegisteredUser, 0, len(cfgs))
	for _, uc := range cfgs {
		hash := uc.PasswordHash
		if uc.Password != "" {
			h, err := basic.HashPassword(uc.Password)
			if err != nil {
				return nil, fmt.Errorf("hashing password for %q: %w", uc.Username, err)
			}
			hash = h
		}
		u := &auth.RegisteredUser{
			Username: uc.Username,
			Password: hash,
			Email:    uc.Email,
			Active:   uc.IsActive(),
		}
		for _, r := range uc.Roles {
			u.RoleSet = append(u.RoleSet, auth.Role{Name: r})
		}
		users = append(users, u)
	}
	return users, nil
}

func (a *app) buildGuard() error {
	ac := a.cfg.Auth

	reg := auth.NewRegistry()
	reg.SetUserStore(a.store)
	reg.SetSecurityEnabled(ac.Enabled)
	reg.SetBypassPredicate(auth.BypassPaths(ac.BypassPaths...))
	reg.SetExtractorConfig(auth.ExtractorConfig{
		AuthHeader:  ac.AuthHeaderName,
		TokenHeader: ac.TokenHeaderName,
	})

	for _, name := range ac.Providers {
		p, err := a.newProvider(name)
		if err != nil {
			return fmt.Errorf("creating %s provider: %w", name, err)
		}
		if err := reg.RegisterProvider(name, p); err != nil {
			return err
		}
	}

	guard, err := reg.Build()
	if err != nil {
		return err
	}
	a.guard = guard
	return nil
}

func (a *app) newProvider(name string) (auth.Provider, error) {
	ac := a.cfg.Auth
	switch name {
	case config.ProviderPassword:
		return basic.New(), nil
	case config.ProviderToken:
		p, err := token.New(token.Config{
			Secret: []byte(ac.Token.Secret),
			Expiry: ac.Token.Expiry(),
		})
		if err != nil {
			return nil, err
		}
		a.tokens = p
		return p, nil
	case config.ProviderAPIKey:
		entries := make([]apikey.RawKeyEntry, 0, len(ac.APIKeys))
		for _, k := range ac.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Subject: k.Subject})
		}
		return apikey.New(entries)
	case config.ProviderJWT:
		return jwt.New(jwt.Config{
			Issuer:    ac.JWT.Issuer,
			Audience:  ac.JWT.Audience,
			JWKSURL:   ac.JWT.JWKSURL,
			UserClaim: ac.JWT.UserClaim,
			CacheTTL:  ac.JWT.CacheTTL,
			Leeway:    ac.JWT.Leeway,
		})
	case config.ProviderAnonymous:
		return anonymous.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// Handler returns the full request pipeline. draining reports whether the
// server is shutting down.
func (a *app) Handler(draining func() bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", a.readyHandler(draining))

	if m := a.cfg.Observability.Metrics; m.Enabled {
		mux.Handle("GET "+m.Path, promhttp.Handler())
	}

	if a.tokens != nil {
		mux.Handle("POST /v1/auth/token", a.tokens.IssueHandler())
	}
	mux.HandleFunc("GET /v1/auth/whoami", whoami)

	var h http.Handler = a.guard.Middleware(mux)
	if a.cfg.Observability.Metrics.Enabled {
		h = observability.MetricsMiddleware(h)
	}
	return h
}

func (a *app) readyHandler(draining func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if draining != nil && draining() {
			transport.WriteError(w, http.StatusServiceUnavailable, "unavailable", "shutting down")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range a.checks {
			if err := c.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "error", err)
				transport.WriteError(w, http.StatusServiceUnavailable, "unavailable", "backend not ready")
				return
			}
		}
		w.Write([]byte("ok\n"))
	}
}

// whoamiResponse describes the identity bound to the request.
type whoamiResponse struct {
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	Anonymous bool     `json:"anonymous"`
	Roles     []string `json:"roles"`
}

func whoami(w http.ResponseWriter, r *http.Request) {
	user, err := auth.CurrentUser(r.Context())
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, transport.ErrorTypeServer, "no request context")
		return
	}
	if user == nil {
		// Security disabled or path bypassed.
		transport.WriteError(w, http.StatusNotFound, transport.ErrorTypeNotFound, "no authenticated user")
		return
	}

	resp := whoamiResponse{
		Username:  user.SubjectID(),
		Anonymous: user.IsAnonymous(),
		Roles:     []string{},
	}
	if ru, ok := user.(*auth.RegisteredUser); ok {
		resp.Email = ru.Email
	}
	for _, role := range user.Roles() {
		resp.Roles = append(resp.Roles, role.Name)
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}
