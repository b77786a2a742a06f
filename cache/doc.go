// Package cache maintains the Redis projection of revocation state: a
// blacklist entry per revoked token and a set of issued tokens per user.
//
// The cache is disposable. Every key carries a TTL bounded by the token
// lifetime it shadows, a flush loses nothing the store cannot answer, and
// callers treat ErrUnavailable as a degraded-mode signal rather than a
// request failure.
package cache
