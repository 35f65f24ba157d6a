package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for stored tokens
	"encoding/hex"  // hex encoding and decoding functions
)

// SecretTokenBytes is the entropy of one-time reset and verification
// tokens: 32 bytes, i.e. 256 bits.
const SecretTokenBytes = 32

// NewSecretToken returns a hex encoded string generated from
// SecretTokenBytes of cryptographically secure random data.  The plain
// value is handed out once; only HashToken of it is ever stored.
func NewSecretToken() (string, error) {
	return randomHex(SecretTokenBytes)
}

// NewBackupCode returns an 8 character lowercase hex backup code (4 random
// bytes).  Backup codes are shown to the user once and stored hashed.
func NewBackupCode() (string, error) {
	return randomHex(4)
}

// HashToken returns the SHA‑256 hash of a raw token as a hex string.
// Storing only the hash prevents anyone with read access to the database
// from replaying a token.
func HashToken(raw string) string {
	// Compute the SHA‑256 digest of the raw bytes.
	sum := sha256.Sum256([]byte(raw))
	// Convert the binary digest to a hex string.
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.  If the random number generator
// fails, an error is returned.
func randomHex(n int) (string, error) {
	// Allocate a slice of n bytes.
	buf := make([]byte, n)
	// Fill the slice with secure random data.
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// Convert the random bytes to a hex string and return.
	return hex.EncodeToString(buf), nil
}
