package auth

// Package auth verifies offered credentials against login records.
//
// - Passwords: crypt(3) hashes ($1$, $5$, $6$), bcrypt ($2a$, $2b$, $2y$)
//   or, for legacy scrambled entries, a constant time string compare.
// - Digests: constant time compare of the protocol digest string.
// - Public keys: wire-format compare with the stored key.
//
// It also signs the HS256 bearer tokens that guard the admin HTTP surface.
