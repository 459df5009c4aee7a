// Package transport provides the HTTP plumbing around the securest
// handlers: a middleware chain with panic recovery, request IDs
// (X-Request-ID) and structured access logging, plus a Server with
// graceful shutdown.
package transport
