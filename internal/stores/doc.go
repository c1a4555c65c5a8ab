// Package stores holds internal Redis-backed state for the password
// reset flow.
package stores
