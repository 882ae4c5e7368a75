package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pombreda/go-tcdb/lib/db"
)

// EngineFactory opens an engine instance on the given path. The suite
// calls it with fresh temp paths and reuses a path to verify persistence.
type EngineFactory func(tb testing.TB, path string, omode db.OMode) (db.Engine, error)

// RunEngineTests runs a comprehensive conformance suite for an Engine
// implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, open(t, factory))
		})

		t.Run("PutKeep", func(t *testing.T) {
			testPutKeep(t, open(t, factory))
		})

		t.Run("PutCat", func(t *testing.T) {
			testPutCat(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("Has&Count", func(t *testing.T) {
			testHasCount(t, open(t, factory))
		})

		t.Run("Iteration", func(t *testing.T) {
			testIteration(t, open(t, factory))
		})

		t.Run("TxCommit", func(t *testing.T) {
			testTxCommit(t, open(t, factory))
		})

		t.Run("TxAbort", func(t *testing.T) {
			testTxAbort(t, open(t, factory))
		})

		t.Run("TxState", func(t *testing.T) {
			testTxState(t, open(t, factory))
		})

		t.Run("Vanish", func(t *testing.T) {
			testVanish(t, open(t, factory))
		})

		t.Run("Persistence", func(t *testing.T) {
			testPersistence(t, factory)
		})

		t.Run("Copy", func(t *testing.T) {
			testCopy(t, factory)
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory)
		})

		t.Run("OrderedSeeks", func(t *testing.T) {
			testOrderedSeeks(t, open(t, factory))
		})

		t.Run("OrderedRange", func(t *testing.T) {
			testOrderedRange(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(t *testing.T, factory EngineFactory) db.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.tcb")
	engine, err := factory(t, path, db.OWriter|db.OCreate)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	return engine
}

// Checks if the engine supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, engine db.Engine, feature db.Feature) {
	if !engine.SupportsFeature(feature) {
		t.Skip()
	}
}

// key builds a test key in the shape the engine kind requires: the fixed
// kind only accepts 8-byte record ids, everything else takes free-form
// byte strings.
func key(engine db.Engine, i int) []byte {
	if engine.Kind() == db.KindFixed {
		k := make([]byte, 8)
		binary.BigEndian.PutUint64(k, uint64(i))
		return k
	}
	return []byte(fmt.Sprintf("test-key-%03d", i))
}

func mustPut(t testing.TB, engine db.Engine, k, v []byte) {
	t.Helper()
	if err := engine.Put(k, v); err != nil {
		t.Fatalf("Put(%q) failed: %v", k, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureGet)

	testKey := key(engine, 1)
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustPut(t, engine, testKey, testValue1)

	result, err := engine.Get(testKey)
	if err != nil {
		t.Errorf("Expected key %q to exist after Put: %v", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustPut(t, engine, testKey, testValue2)

	result, err = engine.Get(testKey)
	if err != nil {
		t.Errorf("Expected key %q to exist after overwrite: %v", testKey, err)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, err = engine.Get(key(engine, 999))
	if db.CodeOf(err) != db.ENoRec {
		t.Errorf("Expected ENoRec for nonexistent key, got %v", err)
	}

	retrieved, _ := engine.Get(testKey)
	retrieved[0] = 'X'

	original, _ := engine.Get(testKey)
	if bytes.Equal(retrieved, original) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testPutKeep(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureGet)

	testKey := key(engine, 2)
	testValue1 := []byte("first-value")
	testValue2 := []byte("second-value")

	if err := engine.PutKeep(testKey, testValue1); err != nil {
		t.Errorf("PutKeep on absent key failed: %v", err)
	}

	err := engine.PutKeep(testKey, testValue2)
	if db.CodeOf(err) != db.EKeep {
		t.Errorf("Expected EKeep on existing key, got %v", err)
	}

	result, err := engine.Get(testKey)
	if err != nil {
		t.Errorf("Get failed after PutKeep: %v", err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected original value %s to be kept, got %s", testValue1, result)
	}
}

func testPutCat(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureGet)

	testKey := key(engine, 3)

	if err := engine.PutCat(testKey, []byte("hello ")); err != nil {
		t.Errorf("PutCat on absent key failed: %v", err)
	}
	if err := engine.PutCat(testKey, []byte("world")); err != nil {
		t.Errorf("PutCat on existing key failed: %v", err)
	}

	result, err := engine.Get(testKey)
	if err != nil {
		t.Errorf("Get failed after PutCat: %v", err)
	}
	if !bytes.Equal(result, []byte("hello world")) {
		t.Errorf("Expected concatenated value %q, got %q", "hello world", result)
	}
}

func testDelete(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureGet)
	requireFeature(t, engine, db.FeatureDelete)

	testKey := key(engine, 4)
	mustPut(t, engine, testKey, []byte("delete-test-value"))

	if err := engine.Delete(testKey); err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	_, err := engine.Get(testKey)
	if db.CodeOf(err) != db.ENoRec {
		t.Errorf("Expected ENoRec after Delete, got %v", err)
	}

	err = engine.Delete(testKey)
	if db.CodeOf(err) != db.ENoRec {
		t.Errorf("Expected ENoRec deleting nonexistent key, got %v", err)
	}
}

func testHasCount(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureDelete)

	if n := engine.Count(); n != 0 {
		t.Errorf("Expected empty engine, got %d records", n)
	}

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		mustPut(t, engine, key(engine, i), []byte(fmt.Sprintf("value-%d", i)))
	}

	if n := engine.Count(); n != uint64(numKeys) {
		t.Errorf("Expected %d records, got %d", numKeys, n)
	}

	ok, err := engine.Has(key(engine, 0))
	if err != nil || !ok {
		t.Errorf("Expected Has to return true for stored key (ok=%v, err=%v)", ok, err)
	}

	ok, err = engine.Has(key(engine, numKeys+1))
	if err != nil || ok {
		t.Errorf("Expected Has to return false for absent key (ok=%v, err=%v)", ok, err)
	}

	// overwrites must not inflate the count
	mustPut(t, engine, key(engine, 0), []byte("overwritten"))
	if n := engine.Count(); n != uint64(numKeys) {
		t.Errorf("Expected %d records after overwrite, got %d", numKeys, n)
	}

	for i := 0; i < numKeys; i += 2 {
		if err := engine.Delete(key(engine, i)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}

	if n := engine.Count(); n != uint64(numKeys/2) {
		t.Errorf("Expected %d records after deletes, got %d", numKeys/2, n)
	}
}

func testIteration(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureIterate)

	numKeys := 50
	expected := make(map[string][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		k := key(engine, i)
		v := []byte(fmt.Sprintf("iter-value-%d", i))
		mustPut(t, engine, k, v)
		expected[string(k)] = v
	}

	iter, err := engine.Iterator()
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	defer iter.Close()

	seen := make(map[string][]byte, numKeys)
	var prevKey []byte
	for iter.Next() {
		k := iter.Key()
		v, err := iter.Value()
		if err != nil {
			t.Fatalf("Value failed: %v", err)
		}
		if _, dup := seen[string(k)]; dup {
			t.Errorf("Key %q returned twice", k)
		}
		seen[string(k)] = v

		// ordered and fixed engines must ascend
		if prevKey != nil && engine.Kind() != db.KindHash {
			if bytes.Compare(prevKey, k) >= 0 {
				t.Errorf("Iteration order violation: %q before %q", prevKey, k)
			}
		}
		prevKey = k
	}

	if len(seen) != numKeys {
		t.Errorf("Expected %d records from iteration, got %d", numKeys, len(seen))
	}
	for k, v := range expected {
		if !bytes.Equal(seen[k], v) {
			t.Errorf("Value mismatch for key %q: expected %q, got %q", k, v, seen[k])
		}
	}
}

func testTxCommit(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureTx)

	mustPut(t, engine, key(engine, 1), []byte("before-tx"))

	if err := engine.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	mustPut(t, engine, key(engine, 1), []byte("inside-tx"))
	mustPut(t, engine, key(engine, 2), []byte("new-inside-tx"))

	// writes must be visible inside the transaction
	result, err := engine.Get(key(engine, 1))
	if err != nil || !bytes.Equal(result, []byte("inside-tx")) {
		t.Errorf("Expected in-transaction read to see own write, got %q (%v)", result, err)
	}

	if err := engine.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	result, err = engine.Get(key(engine, 1))
	if err != nil || !bytes.Equal(result, []byte("inside-tx")) {
		t.Errorf("Expected committed value, got %q (%v)", result, err)
	}
	result, err = engine.Get(key(engine, 2))
	if err != nil || !bytes.Equal(result, []byte("new-inside-tx")) {
		t.Errorf("Expected committed new key, got %q (%v)", result, err)
	}
	if n := engine.Count(); n != 2 {
		t.Errorf("Expected 2 records after commit, got %d", n)
	}
}

func testTxAbort(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)
	requireFeature(t, engine, db.FeatureDelete)
	requireFeature(t, engine, db.FeatureTx)

	mustPut(t, engine, key(engine, 1), []byte("keep-me"))
	mustPut(t, engine, key(engine, 2), []byte("delete-me"))

	if err := engine.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	mustPut(t, engine, key(engine, 1), []byte("overwritten"))
	if err := engine.Delete(key(engine, 2)); err != nil {
		t.Fatalf("Delete inside tx failed: %v", err)
	}
	mustPut(t, engine, key(engine, 3), []byte("created"))

	if err := engine.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	result, err := engine.Get(key(engine, 1))
	if err != nil || !bytes.Equal(result, []byte("keep-me")) {
		t.Errorf("Expected original value restored after abort, got %q (%v)", result, err)
	}
	result, err = engine.Get(key(engine, 2))
	if err != nil || !bytes.Equal(result, []byte("delete-me")) {
		t.Errorf("Expected deleted record restored after abort, got %q (%v)", result, err)
	}
	_, err = engine.Get(key(engine, 3))
	if db.CodeOf(err) != db.ENoRec {
		t.Errorf("Expected record created inside tx gone after abort, got %v", err)
	}
	if n := engine.Count(); n != 2 {
		t.Errorf("Expected 2 records after abort, got %d", n)
	}
}

func testTxState(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureTx)

	if err := engine.Commit(); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid for Commit without Begin, got %v", err)
	}
	if err := engine.Abort(); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid for Abort without Begin, got %v", err)
	}

	if err := engine.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := engine.Begin(); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid for nested Begin, got %v", err)
	}
	if err := engine.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func testVanish(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeaturePut)

	for i := 0; i < 100; i++ {
		mustPut(t, engine, key(engine, i), []byte(fmt.Sprintf("value-%d", i)))
	}

	if err := engine.Vanish(); err != nil {
		t.Fatalf("Vanish failed: %v", err)
	}

	if n := engine.Count(); n != 0 {
		t.Errorf("Expected 0 records after Vanish, got %d", n)
	}
	_, err := engine.Get(key(engine, 0))
	if db.CodeOf(err) != db.ENoRec {
		t.Errorf("Expected ENoRec after Vanish, got %v", err)
	}

	// the engine must stay usable
	mustPut(t, engine, key(engine, 0), []byte("after-vanish"))
	if n := engine.Count(); n != 1 {
		t.Errorf("Expected 1 record after re-put, got %d", n)
	}
}

func testPersistence(t *testing.T, factory EngineFactory) {
	path := filepath.Join(t.TempDir(), "engine.tcb")

	engine, err := factory(t, path, db.OWriter|db.OCreate)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		mustPut(t, engine, key(engine, i), []byte(fmt.Sprintf("persist-value-%d", i)))
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := factory(t, path, db.OWriter)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if n := reopened.Count(); n != uint64(numKeys) {
		t.Errorf("Expected %d records after reopen, got %d", numKeys, n)
	}
	for i := 0; i < numKeys; i++ {
		result, err := reopened.Get(key(reopened, i))
		if err != nil {
			t.Errorf("Key %d not found after reopen: %v", i, err)
			continue
		}
		expected := []byte(fmt.Sprintf("persist-value-%d", i))
		if !bytes.Equal(result, expected) {
			t.Errorf("Value mismatch after reopen: expected %q, got %q", expected, result)
		}
	}
}

func testCopy(t *testing.T, factory EngineFactory) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.tcb")

	engine, err := factory(t, path, db.OWriter|db.OCreate)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer engine.Close()

	for i := 0; i < 50; i++ {
		mustPut(t, engine, key(engine, i), []byte(fmt.Sprintf("copy-value-%d", i)))
	}

	copyPath := filepath.Join(dir, "engine-copy.tcb")
	if err := engine.Copy(copyPath); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	// the source must survive a copy unchanged
	if n := engine.Count(); n != 50 {
		t.Errorf("Expected source to keep 50 records, got %d", n)
	}

	clone, err := factory(t, copyPath, db.OReader)
	if err != nil {
		t.Fatalf("opening copy failed: %v", err)
	}
	defer clone.Close()

	if n := clone.Count(); n != 50 {
		t.Errorf("Expected 50 records in copy, got %d", n)
	}
	result, err := clone.Get(key(clone, 7))
	if err != nil || !bytes.Equal(result, []byte("copy-value-7")) {
		t.Errorf("Copy content mismatch: got %q (%v)", result, err)
	}
}

func testReadOnly(t *testing.T, factory EngineFactory) {
	path := filepath.Join(t.TempDir(), "engine.tcb")

	writer, err := factory(t, path, db.OWriter|db.OCreate)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	mustPut(t, writer, key(writer, 1), []byte("read-only-value"))
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := factory(t, path, db.OReader)
	if err != nil {
		t.Fatalf("read-only open failed: %v", err)
	}
	defer reader.Close()

	result, err := reader.Get(key(reader, 1))
	if err != nil || !bytes.Equal(result, []byte("read-only-value")) {
		t.Errorf("Read through read-only handle failed: %q (%v)", result, err)
	}

	err = reader.Put(key(reader, 2), []byte("must-fail"))
	if db.CodeOf(err) != db.ENoPerm {
		t.Errorf("Expected ENoPerm for write on read-only handle, got %v", err)
	}
	err = reader.Delete(key(reader, 1))
	if db.CodeOf(err) != db.ENoPerm {
		t.Errorf("Expected ENoPerm for delete on read-only handle, got %v", err)
	}
}

func testOrderedSeeks(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureOrdered)

	ordered, ok := engine.(db.OrderedEngine)
	if !ok {
		t.Fatalf("Engine claims FeatureOrdered but does not implement OrderedEngine")
	}

	for _, i := range []int{1, 3, 4, 5, 9} {
		mustPut(t, engine, key(engine, i), []byte(fmt.Sprintf("seek-value-%d", i)))
	}

	first, err := ordered.SeekFirst()
	if err != nil {
		t.Fatalf("SeekFirst failed: %v", err)
	}
	if !first.Valid() || !bytes.Equal(first.Key(), key(engine, 1)) {
		t.Errorf("Expected SeekFirst at key 1, got %q", first.Key())
	}
	first.Close()

	last, err := ordered.SeekLast()
	if err != nil {
		t.Fatalf("SeekLast failed: %v", err)
	}
	if !last.Valid() || !bytes.Equal(last.Key(), key(engine, 9)) {
		t.Errorf("Expected SeekLast at key 9, got %q", last.Key())
	}
	last.Close()

	// an exact match positions on the key itself
	near, err := ordered.SeekNear(key(engine, 4))
	if err != nil {
		t.Fatalf("SeekNear failed: %v", err)
	}
	if !near.Valid() || !bytes.Equal(near.Key(), key(engine, 4)) {
		t.Errorf("Expected SeekNear(4) at key 4, got %q", near.Key())
	}
	near.Close()

	// a miss positions on the next greater key
	near, err = ordered.SeekNear(key(engine, 6))
	if err != nil {
		t.Fatalf("SeekNear failed: %v", err)
	}
	if !near.Valid() || !bytes.Equal(near.Key(), key(engine, 9)) {
		t.Errorf("Expected SeekNear(6) at key 9, got %q", near.Key())
	}
	// and the iterator steps both ways from there
	if !near.Prev() || !bytes.Equal(near.Key(), key(engine, 5)) {
		t.Errorf("Expected Prev from 9 at key 5, got %q", near.Key())
	}
	near.Close()

	// past the maximum the iterator is exhausted
	near, err = ordered.SeekNear(key(engine, 10))
	if err != nil {
		t.Fatalf("SeekNear failed: %v", err)
	}
	if near.Valid() {
		t.Errorf("Expected exhausted iterator past maximum, got %q", near.Key())
	}
	near.Close()
}

func testOrderedRange(t *testing.T, engine db.Engine) {
	defer engine.Close()

	requireFeature(t, engine, db.FeatureOrdered)

	ordered := engine.(db.OrderedEngine)

	for _, i := range []int{1, 3, 4, 5, 9} {
		mustPut(t, engine, key(engine, i), []byte(fmt.Sprintf("range-value-%d", i)))
	}

	// [3, 9) over {1,3,4,5,9} yields 3, 4, 5
	iter, err := ordered.RangeIterator(key(engine, 3), key(engine, 9))
	if err != nil {
		t.Fatalf("RangeIterator failed: %v", err)
	}
	defer iter.Close()

	var got [][]byte
	for iter.Next() {
		got = append(got, iter.Key())
	}

	want := [][]byte{key(engine, 3), key(engine, 4), key(engine, 5)}
	if len(got) != len(want) {
		t.Fatalf("Expected %d keys in range, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("Range key %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	// a nil lower bound starts at the minimum
	iter2, err := ordered.RangeIterator(nil, key(engine, 4))
	if err != nil {
		t.Fatalf("RangeIterator failed: %v", err)
	}
	defer iter2.Close()

	got = nil
	for iter2.Next() {
		got = append(got, iter2.Key())
	}
	want = [][]byte{key(engine, 1), key(engine, 3)}
	if len(got) != len(want) {
		t.Fatalf("Expected %d keys in open-start range, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("Open-start range key %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
