package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/userstore/memory"
)

// testKeyPair holds the RSA key pair used throughout the tests.
var testKeyPair *rsa.PrivateKey

func init() {
	var err error
	testKeyPair, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

const testKID = "test-key-1"

var store = memory.New(
	&auth.RegisteredUser{Username: "user-123", Active: true},
	&auth.RegisteredUser{Username: "bob@example.com", Active: true},
)

// jwksHandler serves the test public key and counts fetches.
func jwksHandler(fetchCount *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fetchCount != nil {
			fetchCount.Add(1)
		}

		pub := testKeyPair.PublicKey
		jwks := map[string]any{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": testKID,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}
}

func createSignedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKID

	s, err := token.SignedString(testKeyPair)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "my-api",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func newTestProvider(t *testing.T, override func(*Config), fetchCount *atomic.Int32) *Provider {
	t.Helper()

	server := httptest.NewServer(jwksHandler(fetchCount))
	t.Cleanup(server.Close)

	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "my-api",
		JWKSURL:  server.URL + "/.well-known/jwks.json",
		CacheTTL: time.Hour,
	}
	if override != nil {
		override(&cfg)
	}

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func authenticate(t *testing.T, p *Provider, token string) (auth.User, error) {
	t.Helper()
	return p.Authenticate(context.Background(), auth.Credentials{Token: token}, store)
}

func TestNewRequiresJWKSURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing jwks url")
	}
}

func TestJWT_ValidToken(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	user, err := authenticate(t, p, createSignedToken(t, validClaims()))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.SubjectID() != "user-123" {
		t.Errorf("SubjectID = %q, want %q", user.SubjectID(), "user-123")
	}
}

func TestJWT_ExpiredToken(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	claims["iat"] = time.Now().Add(-2 * time.Hour).Unix()

	_, err := authenticate(t, p, createSignedToken(t, claims))
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestJWT_MissingExpiry(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	claims := validClaims()
	delete(claims, "exp")

	_, err := authenticate(t, p, createSignedToken(t, claims))
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_WrongAudience(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	claims := validClaims()
	claims["aud"] = "other-api"

	_, err := authenticate(t, p, createSignedToken(t, claims))
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_WrongIssuer(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	claims := validClaims()
	claims["iss"] = "https://evil.example.com"

	_, err := authenticate(t, p, createSignedToken(t, claims))
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_MissingToken(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	_, err := p.Authenticate(context.Background(), auth.Credentials{SubjectID: "alice", Secret: "pw"}, store)
	if !errors.Is(err, auth.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestJWT_GarbageToken(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	_, err := authenticate(t, p, "not-a-jwt")
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_HMACTokenRejected(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, validClaims())
	token.Header["kid"] = testKID
	s, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	_, err = authenticate(t, p, s)
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_UnknownKID(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, validClaims())
	token.Header["kid"] = "rotated-away"
	s, err := token.SignedString(testKeyPair)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	_, err = authenticate(t, p, s)
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_UnknownSubject(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	claims := validClaims()
	claims["sub"] = "nobody"

	_, err := authenticate(t, p, createSignedToken(t, claims))
	if !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestJWT_MissingSubClaim(t *testing.T) {
	p := newTestProvider(t, nil, nil)

	claims := validClaims()
	delete(claims, "sub")

	_, err := authenticate(t, p, createSignedToken(t, claims))
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWT_CustomUserClaim(t *testing.T) {
	p := newTestProvider(t, func(c *Config) { c.UserClaim = "email" }, nil)

	claims := validClaims()
	claims["email"] = "bob@example.com"

	user, err := authenticate(t, p, createSignedToken(t, claims))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.SubjectID() != "bob@example.com" {
		t.Errorf("SubjectID = %q, want %q", user.SubjectID(), "bob@example.com")
	}
}

func TestJWT_JWKSCaching(t *testing.T) {
	var fetches atomic.Int32
	p := newTestProvider(t, nil, &fetches)

	token := createSignedToken(t, validClaims())
	for i := 0; i < 3; i++ {
		if _, err := authenticate(t, p, token); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1", got)
	}
}

func TestJWT_NoIssuerOrAudienceValidation(t *testing.T) {
	p := newTestProvider(t, func(c *Config) {
		c.Issuer = ""
		c.Audience = ""
	}, nil)

	claims := validClaims()
	claims["iss"] = "https://anything.example.com"
	claims["aud"] = "anything"

	if _, err := authenticate(t, p, createSignedToken(t, claims)); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestJWT_JWKSEndpointDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := New(Config{JWKSURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = authenticate(t, p, createSignedToken(t, validClaims()))
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
