// Package authcore provides a refresh-token lifecycle engine with opaque
// rotating refresh tokens, stateless JWT access tokens, Redis- or
// Mongo-backed token storage, and a background cleanup sweeper.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (SessionInfo, TokenStats, etc.). Internal
// coordination — flow orchestration, reset challenge storage, rate
// limiting, audit dispatch — lives under internal/ and is never exported.
// The token storage contract and its backends live in the token
// subpackage so hosts can supply their own [token.Store].
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or key layouts in its public API.
//   - Perform I/O outside of Engine and Sweeper methods (construction via
//     Builder is allocation-only until Build).
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Rotation contract
//
// Refresh is the central protocol: a presented token is validated,
// atomically deactivated, and replaced by a brand-new record. Of N
// concurrent presentations of the same token exactly one succeeds; the
// rest receive [ErrTokenNotFound], indistinguishable from an expired or
// unknown token.
package authcore
