package event

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveID computes the stable SecurityEvent.ID for a LogEvent.
//
// Formula: SHA256(unique_id), hex-encoded. A SecurityEvent's ID is a pure
// function of the LogEvent it wraps, so replaying the same LogEvent always
// derives the same ID, which is what lets the security-event store dedupe
// on first-writer-wins.
func DeriveID(uniqueID string) string {
	sum := sha256.Sum256([]byte(uniqueID))

	return hex.EncodeToString(sum[:])
}
