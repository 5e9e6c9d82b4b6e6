package note

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the stable digest of note content used for optimistic
// concurrency checks. Two equal contents always produce the same hash.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
