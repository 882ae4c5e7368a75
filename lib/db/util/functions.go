package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/zeebo/xxh3"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// last-resort fallback
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is an efficient key type based on uint64 for internal hash representation
type UintKey uint64

// HashBytes generates a hash value for a byte key with a seed.
// Uses xxh3, which is fast and has good distribution.
func HashBytes(b []byte, seed uint64) UintKey {
	return UintKey(xxh3.HashSeed(b, seed))
}
