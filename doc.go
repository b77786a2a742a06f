// Package authcore provides the token lifecycle engine for the platform:
// JWT access tokens signed per token class, opaque UUID refresh tokens with
// durable Postgres persistence, and a Redis revocation cache consulted on
// the refresh fast path.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the sentinel error taxonomy, and result value types. Token signing lives in
// jwt/, durable persistence in store/, the revocation cache in cache/, and
// the user directory contract in directory/. The Engine is the only component
// that coordinates across them.
//
// # What this package must NOT do
//
//   - Verify credentials itself. Identity and password hashes belong to the
//     external user directory; the Engine only compares and issues.
//   - Trust the cache. Redis holds a disposable projection; the store is the
//     authority on refresh-token validity, and a cache outage degrades to
//     store-only checks instead of failing the request.
//   - Leak dependency detail to callers. Directory, store, and cache failures
//     surface through the sentinel taxonomy; specifics go to logs and audit.
//
// # Performance contract
//
// Validate on the ACCESS class is the hot path: signature and expiry only, no
// network round-trips. Refresh is allowed one cache read, one store read, one
// directory read, and one store write per call.
package authcore
