// Package flows contains the token lifecycle and password reset
// protocols, decoupled from the root package through small dependency
// structs. Each Run function returns a result carrying either the
// outcome or a failure kind the root package maps onto its public error
// taxonomy.
package flows
