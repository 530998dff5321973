package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID allocates a document id per spec §3: 8 hex characters of the
// insert-time unix second (big-endian) followed by 16 hex characters
// from a random source.
func NewID() (string, error) {
	ts := uint32(time.Now().Unix())
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("store: failed to read random bytes for id: %w", err)
	}
	return fmt.Sprintf("%08x%s", ts, hex.EncodeToString(buf[:])), nil
}
