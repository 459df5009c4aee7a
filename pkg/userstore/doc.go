// Package userstore holds types shared by the user store implementations.
//
// Stores implement auth.UserStore. The memory store serves static and test
// deployments, the postgres store is the durable backend, and rediscache
// wraps either one with a shared read-through cache.
package userstore
