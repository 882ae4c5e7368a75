// Package fixed implements the array-kind engine: records addressed by a
// uint64 id with a fixed maximum record width. It provides a complete
// implementation of the db.Engine interface for workloads that index
// records by dense integer ids.
//
// The package focuses on:
//   - Integer-id addressing (keys are 8-byte big-endian record ids)
//   - Fixed record width enforcement at write time
//   - Undo-log transactions with guaranteed rollback on abort
//   - Persistent storage through atomic snapshot files (temp + rename)
//   - Ascending record-id iteration
//
// Key Components:
//
//   - fixedImpl: The central engine structure implementing db.Engine. A
//     single concurrent map holds all records; the record width is fixed
//     at open time and persisted in the snapshot header, so a reopened
//     database keeps its original width regardless of tuning hints.
//
// Keys of any length other than 8 bytes are rejected with EInvalid, as
// are values longer than the configured width. PutCat truncates the
// concatenated record at the width boundary instead of failing, matching
// how fixed-width stores treat overlong appends.
package fixed
