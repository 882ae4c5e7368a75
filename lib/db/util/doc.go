// Package util provides utility components for engine implementations
// that satisfy the db.Engine interface.
//
// The package contains:
//   - functions: seed generation and seeded xxh3 hashing for shard routing
//   - statistics: distribution statistics and a SizeHistogram for tracking
//     record size distributions without expensive full scans
//
// This package is particularly useful for:
//   - Engine developers implementing the db.Engine interface
//   - Stat() reporting that needs size and shard-distribution estimates
package util
