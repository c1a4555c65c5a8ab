// Package audit implements the asynchronous audit event pipeline used by
// the token engine: a buffered dispatcher goroutine and a small set of
// built-in sinks.
package audit
