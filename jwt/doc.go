// Package jwt signs and verifies the platform's HS256 tokens. Each token
// class (ACCESS, REFRESH) has its own secret and TTL; a token signed for one
// class never verifies under the other.
//
// # What this package must NOT do
//
//   - Touch the network or any store. Verification is signature and expiry
//     only; revocation is the Engine's concern.
//   - Collapse failure modes. Malformed input, expired tokens, bad
//     signatures, and unsupported algorithms map to distinct sentinel errors
//     so callers can report them differently.
package jwt
