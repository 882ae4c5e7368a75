// Package ordered implements the tree and table kinds on top of pebble,
// a log-structured merge-tree key-value store. It provides a complete
// implementation of the db.Engine and db.OrderedEngine interfaces with
// keys iterating in ascending byte order.
//
// The package focuses on:
//   - Ordered iteration, cursor seeks and bounded range scans
//   - Transactions backed by indexed pebble batches, so reads inside a
//     transaction observe its own uncommitted writes
//   - Transparent per-record value compression
//   - Consistent offline copies through pebble checkpoints
//
// Key Components:
//
//   - orderedImpl: The central engine structure. One pebble database per
//     handle; point reads and iterators route through the active batch
//     inside a transaction and through the database otherwise.
//
//   - orderedIter: An iterator wrapper over pebble iterators. A fresh
//     iterator is unpositioned; the first Next lands on the minimum key
//     and the first Prev on the maximum key.
//
// The tree and table kinds share this engine unchanged. The table kind
// stores rows as encoded column sets, but that layout is imposed by the
// layers above; at this boundary both kinds are plain byte records.
//
// Record counts are established by a single full scan at open time and
// maintained incrementally afterwards, with transaction deltas applied on
// commit and discarded on abort.
package ordered
