// Package object implements instances of registered types: construction
// from declared defaults and caller overrides, validated property access,
// event subscription, and synchronous change notification.
//
// An instance moves through three lifecycle states. During construction,
// defaults and overrides are applied without any notification. Once the
// factory returns, the instance is live: setters validate fully, commit,
// and then dispatch. Dispose is idempotent and terminal; every operation on
// a disposed instance fails with ErrDisposed.
//
// Instances may be shared across goroutines. A per-instance mutex
// serializes access to the value table and the subscriber table; handlers
// always run outside that lock on the calling goroutine, so a handler may
// mutate the same instance again without deadlocking.
package object
