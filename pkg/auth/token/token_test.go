package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/userstore/memory"
)

var testSecret = []byte("test-signing-secret")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestProvider(t *testing.T, expiry time.Duration, clock *fakeClock) *Provider {
	t.Helper()
	p, err := New(Config{Secret: testSecret, Expiry: expiry, Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func newTestStore() *memory.Store {
	return memory.New(&auth.RegisteredUser{Username: "alice", Active: true})
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestNew_DefaultExpiry(t *testing.T) {
	p, err := New(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Expiry() != 600*time.Second {
		t.Errorf("Expiry = %s, want 600s", p.Expiry())
	}
}

func TestRoundTrip(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok, err := p.IssueFor("alice")
	if err != nil {
		t.Fatalf("IssueFor: %v", err)
	}

	clock.Advance(599 * time.Second)
	user, err := p.Authenticate(context.Background(), auth.Credentials{Token: tok}, newTestStore())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.SubjectID() != "alice" {
		t.Errorf("SubjectID = %q, want %q", user.SubjectID(), "alice")
	}
}

func TestExpired(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, time.Second, clock)

	tok, err := p.IssueFor("alice")
	if err != nil {
		t.Fatalf("IssueFor: %v", err)
	}

	clock.Advance(2 * time.Second)
	_, err = p.Authenticate(context.Background(), auth.Credentials{Token: tok}, newTestStore())
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestExpiry_WholeSeconds(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 900_000_000)}
	p := newTestProvider(t, time.Second, clock)

	tok, err := p.IssueFor("alice")
	if err != nil {
		t.Fatalf("IssueFor: %v", err)
	}

	clock.Advance(600 * time.Millisecond)
	if _, err := p.Verify(tok); err != nil {
		t.Fatalf("Verify at 0.6s: %v", err)
	}

	// 1001.9s: one whole second after iat, still within the lifetime.
	clock.Advance(400 * time.Millisecond)
	if _, err := p.Verify(tok); err != nil {
		t.Fatalf("Verify at 1.0s: %v", err)
	}

	clock.Advance(100 * time.Millisecond)
	if _, err := p.Verify(tok); !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("Verify at 1002.0s err = %v, want ErrTokenExpired", err)
	}
}

func TestIssuedInFuture(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok, _ := p.IssueFor("alice")
	clock.Advance(-time.Minute)

	if _, err := p.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTamperedPayload(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok, _ := p.IssueFor("alice")
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts, want 3", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	forged := strings.Replace(string(payload), "alice", "mallory", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = p.Authenticate(context.Background(), auth.Credentials{Token: strings.Join(parts, ".")}, newTestStore())
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTamperedSignature(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok, _ := p.IssueFor("alice")
	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)

	if _, err := p.Verify(strings.Join(parts, ".")); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestWrongSecret(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestProvider(t, 0, clock)
	verifier, _ := New(Config{Secret: []byte("another-secret"), Now: clock.Now})

	tok, _ := issuer.IssueFor("alice")
	if _, err := verifier.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestUnexpectedAlgorithm(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, claims{
		Username:         "alice",
		RegisteredClaims: jwtlib.RegisteredClaims{IssuedAt: jwtlib.NewNumericDate(clock.Now())},
	})
	signed, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := p.Verify(signed); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestMissingSubject(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{
		RegisteredClaims: jwtlib.RegisteredClaims{IssuedAt: jwtlib.NewNumericDate(clock.Now())},
	})
	signed, _ := tok.SignedString(testSecret)

	if _, err := p.Verify(signed); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestMissingIssuedAt(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, 0, clock)

	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{Username: "alice"})
	signed, _ := tok.SignedString(testSecret)

	if _, err := p.Verify(signed); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestClientExpiryIgnored(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, time.Second, clock)

	// A far-future exp claim does not extend the server-side lifetime.
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{
		Username: "alice",
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(clock.Now()),
			ExpiresAt: jwtlib.NewNumericDate(clock.Now().Add(24 * time.Hour)),
		},
	})
	signed, _ := tok.SignedString(testSecret)

	clock.Advance(5 * time.Second)
	if _, err := p.Verify(signed); !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestMissingToken(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	_, err := p.Authenticate(context.Background(), auth.Credentials{SubjectID: "alice"}, newTestStore())
	if !errors.Is(err, auth.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestUserNotFound(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	tok, _ := p.IssueFor("bob")
	_, err := p.Authenticate(context.Background(), auth.Credentials{Token: tok}, newTestStore())
	if !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestIssue_UsesBoundUser(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	ctx := auth.WithRequestScope(context.Background())
	if err := auth.Bind(ctx, &auth.RegisteredUser{Username: "alice", Active: true}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	tok, err := p.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	subject, err := p.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "alice" {
		t.Errorf("subject = %q, want %q", subject, "alice")
	}
}

func TestIssue_OutsideRequest(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	if _, err := p.Issue(context.Background()); !errors.Is(err, auth.ErrNoActiveRequestContext) {
		t.Errorf("err = %v, want ErrNoActiveRequestContext", err)
	}
}

func TestIssue_Unauthenticated(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	ctx := auth.WithRequestScope(context.Background())
	if _, err := p.Issue(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestIssueHandler(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	ctx := auth.WithRequestScope(context.Background())
	auth.Bind(ctx, &auth.RegisteredUser{Username: "alice", Active: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	p.IssueHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body issueResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.ExpiresIn != 600 {
		t.Errorf("expires_in = %d, want 600", body.ExpiresIn)
	}
	if _, err := p.Verify(body.Token); err != nil {
		t.Errorf("issued token does not verify: %v", err)
	}
}

func TestIssueHandler_Unauthenticated(t *testing.T) {
	p := newTestProvider(t, 0, newFakeClock())

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
	req = req.WithContext(auth.WithRequestScope(req.Context()))
	rec := httptest.NewRecorder()
	p.IssueHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
