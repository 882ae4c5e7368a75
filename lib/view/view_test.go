package view

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pombreda/go-tcdb/lib/codec"
	"github.com/pombreda/go-tcdb/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openView(t *testing.T, kind db.Kind) IView {
	t.Helper()
	path := filepath.Join(t.TempDir(), "view.tcb")
	v, err := Open(path, kind, db.OWriter|db.OCreate, nil)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(t.TempDir()+"/x", db.Kind(42), db.OWriter|db.OCreate, nil)
	assert.Equal(t, RetCConfig, CodeOf(err))
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	_, err := Open(t.TempDir()+"/missing", db.KindHash, db.OWriter, nil)
	assert.Equal(t, RetCNotFound, CodeOf(err))
}

func TestOpenInvalidTuning(t *testing.T) {
	_, err := Open(t.TempDir()+"/x", db.KindHash, db.OWriter|db.OCreate, &db.Tuning{Shards: -1})
	assert.Equal(t, RetCConfig, CodeOf(err))
}

func TestTypedRoundTrip(t *testing.T) {
	for _, kind := range []db.Kind{db.KindHash, db.KindTree} {
		t.Run(kind.String(), func(t *testing.T) {
			v := openView(t, kind)

			require.NoError(t, v.Put("greeting", "hello"))
			require.NoError(t, v.Put("answer", 42))
			require.NoError(t, v.Put("pi", 3.25))

			got, err := v.Get("greeting")
			require.NoError(t, err)
			assert.Equal(t, "hello", got)

			got, err = v.Get("answer")
			require.NoError(t, err)
			assert.Equal(t, int64(42), got)

			got, err = v.Get("pi")
			require.NoError(t, err)
			assert.Equal(t, 3.25, got)
		})
	}
}

func TestRawMode(t *testing.T) {
	v := openView(t, db.KindHash)

	require.NoError(t, v.Put("k", []byte{0x00, 0xff, 0x7f}, RawKey(), RawValue()))

	got, err := v.Get("k", RawKey(), RawValue())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x7f}, got)

	// raw mode rejects non-byte values
	err = v.Put("k", 42, RawValue())
	assert.Equal(t, RetCCodec, CodeOf(err))
}

func TestExpectedType(t *testing.T) {
	v := openView(t, db.KindHash)

	require.NoError(t, v.Put("n", 7))

	// int coerces to float on request
	got, err := v.Get("n", WithType(codec.TypeFloat))
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	// but not to complex
	_, err = v.Get("n", WithType(codec.TypeComplex))
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))
}

func TestDeleteThenGet(t *testing.T) {
	v := openView(t, db.KindHash)

	require.NoError(t, v.Put("k", "v"))
	require.NoError(t, v.Out("k"))

	_, err := v.Get("k")
	assert.Equal(t, RetCKeyNotFound, CodeOf(err))

	err = v.Out("never-inserted")
	assert.Equal(t, RetCKeyNotFound, CodeOf(err))
}

func TestPutKeepAndPutCat(t *testing.T) {
	v := openView(t, db.KindHash)

	require.NoError(t, v.PutKeep("k", "first"))
	err := v.PutKeep("k", "second")
	assert.Equal(t, RetCNativeEngine, CodeOf(err))
	assert.Equal(t, db.EKeep, db.CodeOf(err))

	got, err := v.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, v.Put("log", "hello ", RawValue()))
	require.NoError(t, v.PutCat("log", "world"))
	got, err = v.Get("log", RawValue(), WithType(codec.TypeString))
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestArrayKeys(t *testing.T) {
	v := openView(t, db.KindFixed)

	require.NoError(t, v.Put(1, "one"))
	require.NoError(t, v.Put(int64(2), "two"))

	got, err := v.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	// non-integer keys are rejected before touching the engine
	err = v.Put("nope", "v")
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))
	_, err = v.Get(3.5)
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))
	err = v.Put(-1, "v")
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))

	// iteration ascends record ids and decodes them back to integers
	require.NoError(t, v.Put(0, "zero"))
	items, err := v.Items()
	require.NoError(t, err)
	defer items.Close()

	var keys []any
	for items.Next() {
		keys = append(keys, items.Key())
	}
	require.NoError(t, items.Err())
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, keys)
}

func TestUseAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.tcb")
	v, err := Open(path, db.KindHash, db.OWriter|db.OCreate, nil)
	require.NoError(t, err)

	require.NoError(t, v.Close())

	assert.Equal(t, RetCUseAfterClose, CodeOf(v.Close()))
	assert.Equal(t, RetCUseAfterClose, CodeOf(v.Put("k", "v")))
	_, err = v.Get("k")
	assert.Equal(t, RetCUseAfterClose, CodeOf(err))
	assert.Equal(t, RetCUseAfterClose, CodeOf(v.Begin()))
}

func TestTransactionAtomicity(t *testing.T) {
	v := openView(t, db.KindHash)

	// a failing scope leaves none of its writes visible
	bodyErr := errors.New("boom")
	err := v.RunInTransaction(func(tx IView) error {
		for i := 0; i < 10; i++ {
			if err := tx.Put(i, i); err != nil {
				return err
			}
		}
		return bodyErr
	})
	assert.Equal(t, bodyErr, err)

	n, err := v.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	// a normal scope leaves all of them visible
	err = v.RunInTransaction(func(tx IView) error {
		for i := 0; i < 10; i++ {
			if err := tx.Put(i, i); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	n, err = v.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
}

func TestTransactionPanicAborts(t *testing.T) {
	v := openView(t, db.KindHash)

	require.PanicsWithValue(t, "kaboom", func() {
		_ = v.RunInTransaction(func(tx IView) error {
			if err := tx.Put("k", "v"); err != nil {
				return err
			}
			panic("kaboom")
		})
	})

	// the scope terminated with abort, so the write is gone
	_, err := v.Get("k")
	assert.Equal(t, RetCKeyNotFound, CodeOf(err))

	// and the handle is free for a new scope
	require.NoError(t, v.Begin())
	require.NoError(t, v.Commit())
}

func TestCloseDuringTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.tcb")
	v, err := Open(path, db.KindHash, db.OWriter|db.OCreate, nil)
	require.NoError(t, err)

	require.NoError(t, v.Begin())
	require.NoError(t, v.Put("k", "v"))
	require.NoError(t, v.Close())

	// the open scope died with the handle, its write aborted
	reopened, err := Open(path, db.KindHash, db.OWriter, nil)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get("k")
	assert.Equal(t, RetCKeyNotFound, CodeOf(err))
}

func TestTransactionNesting(t *testing.T) {
	v := openView(t, db.KindHash)

	require.NoError(t, v.Begin())
	assert.Equal(t, RetCTxState, CodeOf(v.Begin()))
	require.NoError(t, v.Abort())

	assert.Equal(t, RetCTxState, CodeOf(v.Commit()))
	assert.Equal(t, RetCTxState, CodeOf(v.Abort()))
}

func TestFacadeDispatch(t *testing.T) {
	v := openView(t, db.KindHash)

	_, err := v.Cursor()
	assert.Equal(t, RetCUnsupported, CodeOf(err))

	_, err = v.Range(RangeSpec{Start: 1, End: 9})
	assert.Equal(t, RetCUnsupported, CodeOf(err))

	err = v.PutRow("k", map[string]any{"a": 1})
	assert.Equal(t, RetCUnsupported, CodeOf(err))
	_, err = v.GetRow("k")
	assert.Equal(t, RetCUnsupported, CodeOf(err))
	_, err = v.Query(Eq("a", 1))
	assert.Equal(t, RetCUnsupported, CodeOf(err))
}

func TestAddIntAddFloat(t *testing.T) {
	v := openView(t, db.KindHash)

	// an absent record starts at delta
	n, err := v.AddInt("hits", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = v.AddInt("hits", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	got, err := v.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	f, err := v.AddFloat("load", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
	f, err = v.AddFloat("load", 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.75, f)

	// a non-numeric record refuses the add
	require.NoError(t, v.Put("name", "alice"))
	_, err = v.AddInt("name", 1)
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))
}

func TestForwardKeys(t *testing.T) {
	for _, kind := range []db.Kind{db.KindHash, db.KindTree} {
		t.Run(kind.String(), func(t *testing.T) {
			v := openView(t, kind)

			for _, k := range []string{"app.name", "app.port", "db.host", "apple"} {
				require.NoError(t, v.Put(k, "x"))
			}
			require.NoError(t, v.Put(7, "numeric key"))

			keys, err := v.ForwardKeys("app", 0)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"app.name", "app.port", "apple"}, keys)

			keys, err = v.ForwardKeys("app.", 0)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"app.name", "app.port"}, keys)

			keys, err = v.ForwardKeys("zzz", 0)
			require.NoError(t, err)
			assert.Empty(t, keys)

			keys, err = v.ForwardKeys("app", 1)
			require.NoError(t, err)
			assert.Len(t, keys, 1)
		})
	}
}

func TestItems(t *testing.T) {
	v := openView(t, db.KindTree)

	for i := 1; i <= 5; i++ {
		require.NoError(t, v.Put(i, i*10))
	}

	items, err := v.Items()
	require.NoError(t, err)
	defer items.Close()

	var keys, vals []any
	for items.Next() {
		keys = append(keys, items.Key())
		vals = append(vals, items.Value())
	}
	require.NoError(t, items.Err())
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, keys)
	assert.Equal(t, []any{int64(10), int64(20), int64(30), int64(40), int64(50)}, vals)
}

func TestVanishAndStat(t *testing.T) {
	v := openView(t, db.KindHash)

	for i := 0; i < 20; i++ {
		require.NoError(t, v.Put(i, i))
	}
	stat, err := v.Stat()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), stat.Records)
	assert.Equal(t, db.KindHash, stat.Kind)

	require.NoError(t, v.Vanish())
	n, err := v.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyTo(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(filepath.Join(dir, "src.tcb"), db.KindTree, db.OWriter|db.OCreate, nil)
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.Put("k", "v"))
	require.NoError(t, v.Sync())

	copyPath := filepath.Join(dir, "dst.tcb")
	require.NoError(t, v.CopyTo(copyPath))

	clone, err := Open(copyPath, db.KindTree, db.OReader, nil)
	require.NoError(t, err)
	defer clone.Close()

	got, err := clone.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
