// Package testing provides standardised tests and benchmarks for
// storage engine implementations that satisfy the db.Engine interface.
//
// The package contains:
//   - testing: A comprehensive conformance suite validating the Engine
//     contract (point operations, iteration, transactions, persistence)
//   - benchmark: Performance tests for measuring throughput of common
//     engine operations
//
// Tests gated on features the engine does not support are skipped, so
// one suite covers every engine kind. Keys are generated in the shape
// the kind requires; the fixed kind gets 8-byte record ids.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
//		return myengine.Open(path, omode, nil)
//	}
//
//	// Running the standard test suite
//	testing.RunEngineTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	testing.RunEngineBenchmarks(b, "MyEngine", factory)
package testing
