// Package middleware exposes HTTP adapters for the engine.
//
//   - [RequestMetadata] — copies client IP and User-Agent into the
//     request context for token records and audit events.
//   - [Guard] — rejects requests without a valid bearer access token and
//     injects the validated claims.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.ValidateAccess).
//   - Touch Redis or Mongo (the engine owns all I/O).
package middleware
