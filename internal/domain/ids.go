package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StableID derives a deterministic identifier from the record's identifying
// fields. Re-fetching the same record yields the same id, so cache writes
// stay idempotent upserts.
func StableID(prefix string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	short := hex.EncodeToString(hash[:8])
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}
