// Package internal holds token generation and hashing primitives shared by
// the root engine and its flow implementations. Nothing here is part of the
// public API surface.
package internal
