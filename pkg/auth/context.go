package auth

import (
	"context"
	"sync/atomic"
)

// identityKey is a private type for the identity slot context key.
type identityKey struct{}

// identitySlot holds the user bound to one request. It is written at most once.
type identitySlot struct {
	user atomic.Pointer[boundUser]
}

type boundUser struct {
	User
}

// WithRequestScope returns a context carrying a fresh, empty identity slot.
// The Guard middleware calls it once per request.
func WithRequestScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityKey{}, &identitySlot{})
}

// Bind records user as the identity of the current request. A second bind
// in the same request fails with ErrIdentityAlreadyBound and leaves the
// first user in place.
func Bind(ctx context.Context, user User) error {
	slot, ok := ctx.Value(identityKey{}).(*identitySlot)
	if !ok {
		return ErrNoActiveRequestContext
	}
	if !slot.user.CompareAndSwap(nil, &boundUser{User: user}) {
		return ErrIdentityAlreadyBound
	}
	return nil
}

// CurrentUser returns the user bound to the current request, or nil when
// the request is unauthenticated. It fails with ErrNoActiveRequestContext
// outside a request scope.
func CurrentUser(ctx context.Context) (User, error) {
	slot, ok := ctx.Value(identityKey{}).(*identitySlot)
	if !ok {
		return nil, ErrNoActiveRequestContext
	}
	if b := slot.user.Load(); b != nil {
		return b.User, nil
	}
	return nil, nil
}

// MustCurrentUser is like CurrentUser but panics outside a request scope.
func MustCurrentUser(ctx context.Context) User {
	user, err := CurrentUser(ctx)
	if err != nil {
		panic(err)
	}
	return user
}
