package internal

import (
	"github.com/pombreda/go-tcdb/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the engine key space)
// --------------------------------------------------------------------------

// Shard represents a partition of the engine. Each shard has its own
// independent concurrent map so writes to different shards never contend.
type Shard struct {
	Data *xsync.MapOf[string, []byte] // active records, keyed by the raw key bytes
}

// NewShard creates an empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, []byte](),
	}
}

// GetShard returns the appropriate shard for a hashed key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard(key util.UintKey, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	return shards[shiftedKey%uint64(len(shards))]
}
