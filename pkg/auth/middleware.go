package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/securest/pkg/observability"
)

const unauthorizedBody = `{"error":{"type":"unauthorized","message":"authentication required"}}`

// Guard authenticates HTTP requests. It is built by Registry.Build and is
// read-only afterwards, so one Guard serves any number of concurrent requests.
type Guard struct {
	chain        *Chain
	extractor    *Extractor
	unauthorized UnauthorizedFunc
	bypass       BypassFunc
	enabled      bool
	filter       ResponseFilter
	logger       *slog.Logger
}

// Chain returns the guard's provider chain.
func (g *Guard) Chain() *Chain { return g.chain }

// Enabled reports whether authentication is enforced.
func (g *Guard) Enabled() bool { return g.enabled }

// Middleware wraps next with authentication. Every request gets its own
// identity slot. Requests are authenticated unless security is disabled or
// the bypass predicate matches. Failures are logged and answered by the
// unauthorized handler, or by a plain 401 when none is set.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithRequestScope(r.Context()))

		if g.filter == nil {
			g.serve(w, r, next)
			return
		}

		// A panic in serve skips the flush, so the buffered partial
		// response is dropped and outer recovery owns the reply.
		bw := newBufferedWriter()
		g.serve(bw, r, next)
		bw.flushTo(w, r, g.filter)
	})
}

func (g *Guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !g.secured(r) {
		next.ServeHTTP(w, r)
		return
	}

	creds, err := g.extractor.Extract(r)
	if err == nil {
		_, err = g.chain.AuthenticateRequest(r.Context(), creds)
	}
	if err != nil {
		if errors.Is(err, ErrIdentityAlreadyBound) || errors.Is(err, ErrNoActiveRequestContext) {
			g.logger.Error("binding request identity", "path", r.URL.Path, "error", err)
			http.Error(w, `{"error":{"type":"server_error","message":"internal authentication error"}}`, http.StatusInternalServerError)
			return
		}
		g.logger.Warn("user unauthorized, all authentication methods failed",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		g.handleUnauthorized(w, r, err)
		return
	}

	next.ServeHTTP(w, r)
}

// secured reports whether r must be authenticated.
func (g *Guard) secured(r *http.Request) bool {
	if !g.enabled {
		return false
	}
	return g.bypass == nil || !g.bypass(r)
}

func (g *Guard) handleUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	observability.UnauthorizedTotal.Inc()
	if g.unauthorized != nil {
		g.unauthorized(w, r, err)
		return
	}
	WriteUnauthorized(w)
}

// WriteUnauthorized writes the fixed 401 response. It carries no failure details.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(unauthorizedBody))
}
