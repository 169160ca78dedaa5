package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash computes the hex digest of normalized document text.
// Whitespace runs are collapsed before hashing so formatting-only changes
// across refresh cycles do not look like new content.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
