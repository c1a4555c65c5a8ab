// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the parameters out of the stored string, so hashes
// produced under older cost settings keep verifying after a config change.
// [Argon2.NeedsUpgrade] reports when a stored hash is weaker than the
// current configuration so the caller can re-hash on the next successful
// login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive
//     hashes.
//   - Import any other package in this module.
//   - Log plaintext passwords.
package password
