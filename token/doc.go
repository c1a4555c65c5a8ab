// Package token defines the refresh-token record model and the storage
// backends that persist it.
//
// A token is stored under the SHA-256 digest of its opaque value, so the
// raw token never touches the store. Records carry an active flag that is
// flipped exactly once by an atomic compare-and-swap: under concurrent
// use of the same token, one caller wins the deactivation and every other
// caller observes an already-inactive record. Secondary indexes (per-user
// set, expiry and deactivation ordering) support listing, bulk revocation,
// and background cleanup.
//
// Two backends are provided: [RedisStore] (the default, Lua-scripted CAS)
// and [MongoStore] (conditional FindOneAndUpdate CAS).
package token
