package testing

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pombreda/go-tcdb/lib/db"
)

// RunEngineBenchmarks runs all benchmarks for an engine implementation.
func RunEngineBenchmarks(b *testing.B, name string, factory EngineFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, openBench(b, factory))
		})

		b.Run("PutExisting", func(b *testing.B) {
			benchmarkPutExisting(b, openBench(b, factory))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, openBench(b, factory))
		})

		b.Run("Has", func(b *testing.B) {
			benchmarkHas(b, openBench(b, factory))
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, openBench(b, factory))
		})

		b.Run("Iterate", func(b *testing.B) {
			benchmarkIterate(b, openBench(b, factory))
		})

		b.Run("TxBatch", func(b *testing.B) {
			benchmarkTxBatch(b, openBench(b, factory))
		})
	})
}

func openBench(b *testing.B, factory EngineFactory) db.Engine {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.tcb")
	engine, err := factory(b, path, db.OWriter|db.OCreate)
	if err != nil {
		b.Fatalf("factory failed: %v", err)
	}
	return engine
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func benchmarkPutExisting(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i%numKeys), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func benchmarkGet(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)
	requireFeature(b, engine, db.FeatureGet)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Get(key(engine, i%numKeys)); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

func benchmarkHas(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Has(key(engine, i%(numKeys*2))); err != nil {
			b.Fatalf("Has failed: %v", err)
		}
	}
}

func benchmarkDelete(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)
	requireFeature(b, engine, db.FeatureDelete)

	for i := 0; i < b.N; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Delete(key(engine, i)); err != nil {
			b.Fatalf("Delete failed: %v", err)
		}
	}
}

func benchmarkIterate(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)
	requireFeature(b, engine, db.FeatureIterate)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if err := engine.Put(key(engine, i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		iter, err := engine.Iterator()
		if err != nil {
			b.Fatalf("Iterator failed: %v", err)
		}
		for iter.Next() {
		}
		iter.Close()
	}
}

func benchmarkTxBatch(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})

	requireFeature(b, engine, db.FeaturePut)
	requireFeature(b, engine, db.FeatureTx)

	batchSize := 100

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Begin(); err != nil {
			b.Fatalf("Begin failed: %v", err)
		}
		for j := 0; j < batchSize; j++ {
			value := []byte(fmt.Sprintf("test-value-%d", j))
			if err := engine.Put(key(engine, i*batchSize+j), value); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
		if err := engine.Commit(); err != nil {
			b.Fatalf("Commit failed: %v", err)
		}
	}
}
