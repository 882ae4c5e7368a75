// Package db defines the primitive contract of the native storage engines
// consumed by the view layer. It specifies a byte-oriented Engine interface
// that allows for consistent interaction with heterogeneous storage
// backends while abstracting their physical formats.
//
// The package focuses on:
//   - A unified byte-string interface for record operations
//   - Feature discovery through capability flags
//   - Open-mode and tuning semantics shared by all engine kinds
//   - A typed error model that surfaces every native failure with a code
//     and message
//
// Key Components:
//
//   - Engine Interface: The core interface that all engine implementations
//     must satisfy. It provides point operations (Put, PutKeep, PutCat,
//     Get, Has, Delete), traversal (Iterator), transactions (Begin,
//     Commit, Abort), maintenance (Vanish, Sync, Copy) and introspection
//     (Count, Size, Stat).
//
//   - OrderedEngine Interface: The extension implemented by engines that
//     preserve key order. It adds the cursor positioning primitives
//     (SeekFirst, SeekLast, SeekNear) and bounded range iterators that the
//     view layer's cursors and range queries are built on.
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations advertise through SupportsFeature, so that the view
//     layer can reject unsupported operations before any native call.
//
//   - Kind, OMode, Tuning: the engine variant identifiers, the
//     reader/writer/creator open-mode flags and the recognized per-handle
//     tuning options (shard count, cache size, auto-defrag steps, record
//     compression, fixed record width). Tuning.Validate rejects options an
//     engine kind does not recognize.
//
//   - Compression: transparent per-record value compression (DEFLATE or
//     LZ4 frame), applied by engines on write and reversed on read.
//
//   - Error/ECode: the typed error carrying the native engine's error code
//     (ENoRec, ENoFile, EKeep, ...) and message. CodeOf extracts the code
//     from a wrapped error chain.
//
// Concurrency and lifecycle: an engine instance is owned by exactly one
// handle; operations on a single handle observe strict program order. The
// layer adds no synchronization across handles opened on the same path;
// that is the engine implementation's concern. Engines hold no
// process-wide state, so there is no global library init or shutdown.
//
// Related Packages:
//
// The engines/bucket, engines/fixed and engines/ordered packages implement
// this contract for the hash, array and tree/table kinds respectively. The
// testing package provides a standardized conformance suite
// (RunEngineTests) and benchmarks for any Engine implementation.
package db
