package view

import (
	"encoding/binary"
	"testing"

	"github.com/pombreda/go-tcdb/lib/codec"
	"github.com/pombreda/go-tcdb/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTable(t *testing.T) IView {
	t.Helper()
	return openView(t, db.KindTable)
}

func TestRowRoundTrip(t *testing.T) {
	v := openTable(t)

	row := map[string]any{
		"user":   "alice",
		"age":    23,
		"score":  4.5,
		"active": []byte{0x01},
	}
	require.NoError(t, v.PutRow("alice", row))

	got, err := v.GetRow("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got["user"])
	assert.Equal(t, int64(23), got["age"])
	assert.Equal(t, 4.5, got["score"])
	assert.Equal(t, []byte{0x01}, got["active"])
}

func TestSchemaDecode(t *testing.T) {
	v := openTable(t)

	require.NoError(t, v.PutRow("alice", map[string]any{"user": "alice", "age": 23}))

	// the schema drives the named column to its declared type
	got, err := v.GetRow("alice", WithSchema(Schema{"age": codec.TypeInt}))
	require.NoError(t, err)
	age, ok := got["age"].(int64)
	require.True(t, ok, "age must decode to an integer, got %T", got["age"])
	assert.Equal(t, int64(23), age)
	assert.Equal(t, "alice", got["user"])

	// a schema demanding an incompatible type fails loudly
	_, err = v.GetRow("alice", WithSchema(Schema{"user": codec.TypeComplex}))
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))
}

func TestRawCols(t *testing.T) {
	v := openTable(t)

	require.NoError(t, v.PutRow("r", map[string]any{"a": "plain", "b": []byte("bytes")}, RawCols()))

	// raw-col rows read back as text per column
	got, err := v.GetRow("r", RawCols())
	require.NoError(t, err)
	assert.Equal(t, "plain", got["a"])
	assert.Equal(t, "bytes", got["b"])

	// raw columns reject values that are not byte or text data
	err = v.PutRow("bad", map[string]any{"n": 42}, RawCols())
	assert.Equal(t, RetCCodec, CodeOf(err))
}

func TestTablePutGetDelegation(t *testing.T) {
	v := openTable(t)

	// Put on a table handle takes whole rows
	require.NoError(t, v.Put("bob", map[string]any{"age": 31}))
	got, err := v.Get("bob")
	require.NoError(t, err)
	row, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(31), row["age"])

	err = v.Put("bob", "not a row")
	assert.Equal(t, RetCTypeMismatch, CodeOf(err))

	err = v.PutCat("bob", "x")
	assert.Equal(t, RetCUnsupported, CodeOf(err))

	_, err = v.AddInt("bob", 1)
	assert.Equal(t, RetCUnsupported, CodeOf(err))
}

func TestTablePutKeep(t *testing.T) {
	v := openTable(t)

	require.NoError(t, v.PutKeep("k", map[string]any{"n": 1}))
	err := v.PutKeep("k", map[string]any{"n": 2})
	assert.Equal(t, db.EKeep, db.CodeOf(err))

	got, err := v.GetRow("k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["n"])
}

func TestTableItems(t *testing.T) {
	v := openTable(t)

	require.NoError(t, v.PutRow("a", map[string]any{"n": 1}))
	require.NoError(t, v.PutRow("b", map[string]any{"n": 2}))

	items, err := v.Items()
	require.NoError(t, err)
	defer items.Close()

	rows := map[any]map[string]any{}
	for items.Next() {
		rows[items.Key()] = items.Value().(map[string]any)
	}
	require.NoError(t, items.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows["a"]["n"])
	assert.Equal(t, int64(2), rows["b"]["n"])
}

func seedPeople(t *testing.T) IView {
	t.Helper()
	v := openTable(t)
	people := map[string]map[string]any{
		"alice": {"age": 23, "city": "berlin", "score": 1.5},
		"bob":   {"age": 31, "city": "paris", "score": 2.5},
		"carol": {"age": 31, "city": "berlin", "score": 3.5},
		"dave":  {"age": 45, "city": "tokyo", "score": 4.5},
	}
	for key, row := range people {
		require.NoError(t, v.PutRow(key, row))
	}
	return v
}

func TestQueryEq(t *testing.T) {
	v := seedPeople(t)

	keys, err := v.Query(Eq("city", "berlin"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"alice", "carol"}, keys)

	keys, err = v.Query(Eq("city", "atlantis"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	// numeric equality crosses int/float representations
	keys, err = v.Query(Eq("age", 31.0))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"bob", "carol"}, keys)
}

func TestQueryRange(t *testing.T) {
	v := seedPeople(t)

	keys, err := v.Query(Gt("age", 23))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"bob", "carol", "dave"}, keys)

	keys, err = v.Query(Ge("age", 31))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"bob", "carol", "dave"}, keys)

	keys, err = v.Query(Lt("score", 2.5))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"alice"}, keys)

	keys, err = v.Query(Le("score", 2.5))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"alice", "bob"}, keys)
}

func TestQueryInAndConjunction(t *testing.T) {
	v := seedPeople(t)

	keys, err := v.Query(In("city", "berlin", "tokyo"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"alice", "carol", "dave"}, keys)

	keys, err = v.Query(And(Eq("city", "berlin"), Eq("age", 31)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"carol"}, keys)

	// a predicate on an absent column matches nothing
	keys, err = v.Query(Eq("height", 180))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTableTransaction(t *testing.T) {
	v := openTable(t)

	err := v.RunInTransaction(func(tx IView) error {
		// the scope's handle keeps row semantics
		return tx.PutRow("alice", map[string]any{"age": 23})
	})
	require.NoError(t, err)

	got, err := v.GetRow("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(23), got["age"])
}

func TestRowCorruption(t *testing.T) {
	v := openTable(t)
	tv := v.(*tableView)

	// bytes written past the view layer are not a decodable row
	require.NoError(t, tv.engine.Put([]byte("junk"), []byte{0xff, 0xff, 0xff}))

	_, err := tv.GetRow("junk", RawKey())
	assert.Equal(t, RetCCodec, CodeOf(err))

	// a header claiming more columns than the payload could hold must be
	// rejected before the decoder allocates for it
	huge := binary.AppendUvarint(nil, 1<<28)
	require.NoError(t, tv.engine.Put([]byte("huge"), huge))

	_, err = tv.GetRow("huge", RawKey())
	assert.Equal(t, RetCCodec, CodeOf(err))
}
