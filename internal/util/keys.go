package util

import (
	"crypto/sha256"
	"fmt"
)

// EntryKey returns a fixed-width storage key for one request identity
// inside a generation: prefix + ":" + first 16 hex chars of sha256(id).
func EntryKey(prefix, id string) string {
	sum := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%s:%x", prefix, sum[:8])
}
