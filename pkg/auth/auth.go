package auth

import (
	"context"
	"net/http"
)

// Credentials is the provider-agnostic credential material pulled out of a
// request. An empty field means the request did not carry it.
type Credentials struct {
	// SubjectID is the claimed user identifier (Basic auth user part).
	SubjectID string

	// Secret is the password or other shared secret (Basic auth password part).
	Secret string

	// Token is the raw token header value.
	Token string
}

// Role is a named role. Two roles are the same role when their names match.
type Role struct {
	Name string
}

// User is an authenticated (or anonymous) caller.
type User interface {
	// SubjectID is the unique identifier the user is looked up by.
	SubjectID() string

	IsActive() bool
	IsAnonymous() bool
	Roles() []Role
}

// RegisteredUser is a user loaded from a user store.
type RegisteredUser struct {
	Username string
	// Password holds the stored secret, normally a bcrypt hash.
	Password string
	Email    string
	Active   bool
	RoleSet  []Role
}

func (u *RegisteredUser) SubjectID() string { return u.Username }
func (u *RegisteredUser) IsActive() bool    { return u.Active }
func (u *RegisteredUser) IsAnonymous() bool { return false }

// PasswordHash returns the stored password hash.
func (u *RegisteredUser) PasswordHash() string { return u.Password }

// Roles returns a copy of the user's roles.
func (u *RegisteredUser) Roles() []Role {
	if len(u.RoleSet) == 0 {
		return nil
	}
	roles := make([]Role, len(u.RoleSet))
	copy(roles, u.RoleSet)
	return roles
}

// HasRole reports whether the user carries a role with the given name.
func (u *RegisteredUser) HasRole(name string) bool {
	for _, r := range u.RoleSet {
		if r.Name == name {
			return true
		}
	}
	return false
}

// AnonymousSubject is the subject identifier of AnonymousUser.
const AnonymousSubject = "anonymous"

// AnonymousUser represents a caller that was admitted without credentials.
type AnonymousUser struct{}

func (AnonymousUser) SubjectID() string { return AnonymousSubject }
func (AnonymousUser) IsActive() bool    { return true }
func (AnonymousUser) IsAnonymous() bool { return true }
func (AnonymousUser) Roles() []Role     { return nil }

// UserStore resolves a subject identifier to a user record.
// A missing user is reported as (nil, nil) or ErrUserNotFound; any other
// error is a backend failure. Implementations must be safe for concurrent use.
type UserStore interface {
	GetUser(ctx context.Context, subjectID string) (User, error)
}

// Provider is one way of authenticating a request.
// Implementations must not write request identity state and must be safe
// for concurrent use.
type Provider interface {
	Authenticate(ctx context.Context, creds Credentials, store UserStore) (User, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, creds Credentials, store UserStore) (User, error)

func (f ProviderFunc) Authenticate(ctx context.Context, creds Credentials, store UserStore) (User, error) {
	return f(ctx, creds, store)
}

// LookupUser fetches subjectID from store and normalizes a miss to
// ErrUserNotFound. Providers use it after they have verified credentials.
func LookupUser(ctx context.Context, store UserStore, subjectID string) (User, error) {
	if store == nil {
		return nil, ErrNoUserStore
	}
	user, err := store.GetUser(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// BypassFunc reports whether a request skips authentication entirely.
type BypassFunc func(r *http.Request) bool

// BypassPaths returns a BypassFunc matching exact URL paths.
func BypassPaths(paths ...string) BypassFunc {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(r *http.Request) bool {
		return set[r.URL.Path]
	}
}

// UnauthorizedFunc writes the response for a request that failed
// authentication. err carries the failure details; implementations should
// not echo them to the client.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, err error)

// DefaultBypassPaths lists endpoints that skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/readyz", "/metrics"}
