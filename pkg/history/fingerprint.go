package history

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the deterministic history key for a media locator.
// Resharing the same source therefore updates the existing record instead
// of appending a duplicate.
func Fingerprint(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:16])
}
