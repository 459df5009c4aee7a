// Package anonymous provides a provider that admits every request as an
// anonymous user. Registered last, it lets unauthenticated callers through
// with an identity that handlers can recognize via IsAnonymous.
package anonymous

import (
	"context"

	"github.com/rhuss/securest/pkg/auth"
)

// Provider always succeeds with auth.AnonymousUser.
type Provider struct{}

func (Provider) Authenticate(_ context.Context, _ auth.Credentials, _ auth.UserStore) (auth.User, error) {
	return auth.AnonymousUser{}, nil
}
