// Package auth provides pluggable request authentication for securest.
//
// Authentication uses an ordered chain of named providers. Each provider
// inspects the credentials extracted from the request and either resolves
// a user or fails with a reason. The chain stops at the first provider
// that resolves a user; when every provider fails, the individual reasons
// are aggregated into a single AuthenticationFailedError.
//
// The resolved user is bound to a per-request identity slot carried in the
// request context. Handlers read it with CurrentUser. Slots are created by
// the Guard middleware for every request, so concurrent requests never see
// each other's identity.
//
// Configuration is assembled once at startup through a Registry and frozen
// into a Guard. Nothing in this package mutates configuration afterwards.
package auth
