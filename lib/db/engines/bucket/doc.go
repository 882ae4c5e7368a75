// Package bucket implements the hash-kind engine: an unordered key-value
// store backed by a sharded concurrent map with snapshot-file persistence.
// It provides a complete implementation of the db.Engine interface with a
// focus on thread safety and fast point operations.
//
// The package focuses on:
//   - Optimized concurrent access through sharding over xsync maps
//   - Seeded xxh3 hashing for even shard distribution
//   - Undo-log transactions with guaranteed rollback on abort
//   - Persistent storage through atomic snapshot files (temp + rename)
//   - Transparent per-record value compression
//
// Key Components:
//
//   - bucketImpl: The central engine structure implementing db.Engine. It
//     manages shards, the undo log and the record/byte counters, and
//     writes the snapshot on Sync, Close and (under OTSync) every commit.
//
//   - Shard: A partition of the key space with its own concurrent map.
//     Keys are routed to shards by seeded xxh3 hash; the seed is persisted
//     in the snapshot header so a reopened database keeps its layout.
//
//   - Undo Log: Transactions capture the prior state of every touched key
//     the first time it is written; Abort replays the log, Commit discards
//     it. At most one transaction is active per handle.
//
// Iteration runs over a point-in-time key snapshot; records deleted while
// an iterator is live are skipped, never returned stale, and the handle is
// never corrupted by concurrent mutation. Iteration order is unspecified.
package bucket
