package view

import (
	"testing"

	"github.com/pombreda/go-tcdb/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTree writes the classic key set {3,1,4,1,5,9}; after deduplication
// the ordered key space is [1,3,4,5,9].
func seedTree(t *testing.T) IView {
	t.Helper()
	v := openView(t, db.KindTree)
	for _, k := range []int{3, 1, 4, 1, 5, 9} {
		require.NoError(t, v.Put(k, k*100))
	}
	return v
}

func TestCursorOrdering(t *testing.T) {
	v := seedTree(t)

	c, err := v.Cursor()
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.First()
	require.NoError(t, err)
	require.True(t, ok)

	var keys []any
	for ok {
		k, err := c.Key()
		require.NoError(t, err)
		keys = append(keys, k)
		ok, err = c.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, []any{int64(1), int64(3), int64(4), int64(5), int64(9)}, keys)
}

func TestCursorBackward(t *testing.T) {
	v := seedTree(t)

	c, err := v.Cursor()
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.Last()
	require.NoError(t, err)
	require.True(t, ok)

	var keys []any
	for ok {
		k, err := c.Key()
		require.NoError(t, err)
		keys = append(keys, k)
		ok, err = c.Prev()
		require.NoError(t, err)
	}
	assert.Equal(t, []any{int64(9), int64(5), int64(4), int64(3), int64(1)}, keys)
}

func TestCursorJump(t *testing.T) {
	v := seedTree(t)

	c, err := v.Cursor()
	require.NoError(t, err)
	defer c.Close()

	// an existing key positions exactly
	ok, err := c.Jump(4, JumpNearest)
	require.NoError(t, err)
	require.True(t, ok)
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, int64(4), k)

	val, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(400), val)

	// a missing key positions at the nearest greater key
	ok, err = c.Jump(6, JumpNearest)
	require.NoError(t, err)
	require.True(t, ok)
	k, err = c.Key()
	require.NoError(t, err)
	assert.Equal(t, int64(9), k)

	// past the maximum the cursor is exhausted
	ok, err = c.Jump(10, JumpNearest)
	require.NoError(t, err)
	assert.False(t, ok)

	// exact policy demands the key itself
	ok, err = c.Jump(6, JumpExact)
	assert.Equal(t, RetCKeyNotFound, CodeOf(err))
	assert.False(t, ok)

	ok, err = c.Jump(5, JumpExact)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCursorInvalidatedByDelete(t *testing.T) {
	v := seedTree(t)

	c, err := v.Cursor()
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.Jump(4, JumpNearest)
	require.NoError(t, err)
	require.True(t, ok)

	// deleting the current key out from under the cursor invalidates it
	require.NoError(t, v.Out(4))

	_, err = c.Key()
	assert.Equal(t, RetCCursorInvalid, CodeOf(err))
	_, err = c.Next()
	assert.Equal(t, RetCCursorInvalid, CodeOf(err))
}

func TestCursorInvalidatedByClose(t *testing.T) {
	v := seedTree(t)

	c, err := v.Cursor()
	require.NoError(t, err)

	_, err = c.First()
	require.NoError(t, err)

	require.NoError(t, v.Close())

	_, err = c.Key()
	assert.Equal(t, RetCCursorInvalid, CodeOf(err))
	_, err = c.Next()
	assert.Equal(t, RetCCursorInvalid, CodeOf(err))
}

func TestCursorUnpositioned(t *testing.T) {
	v := seedTree(t)

	c, err := v.Cursor()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Key()
	assert.Equal(t, RetCCursorInvalid, CodeOf(err))

	// Next from unpositioned lands on the minimum key
	ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, int64(1), k)
}

func TestRangeBoundaries(t *testing.T) {
	v := seedTree(t)

	// (2, 8] over [1,3,4,5,9] yields [3,4,5]
	items, err := v.Range(RangeSpec{Start: 2, End: 8, IncLow: false, IncHigh: true})
	require.NoError(t, err)
	defer items.Close()

	var keys []any
	for items.Next() {
		keys = append(keys, items.Key())
	}
	require.NoError(t, items.Err())
	assert.Equal(t, []any{int64(3), int64(4), int64(5)}, keys)
}

func TestRangeInclusiveFlags(t *testing.T) {
	v := seedTree(t)

	collect := func(spec RangeSpec) []any {
		items, err := v.Range(spec)
		require.NoError(t, err)
		defer items.Close()
		var keys []any
		for items.Next() {
			keys = append(keys, items.Key())
		}
		require.NoError(t, items.Err())
		return keys
	}

	// boundary keys that exist obey the inclusive flags
	assert.Equal(t, []any{int64(3), int64(4), int64(5)},
		collect(RangeSpec{Start: 3, End: 5, IncLow: true, IncHigh: true}))
	assert.Equal(t, []any{int64(4)},
		collect(RangeSpec{Start: 3, End: 5, IncLow: false, IncHigh: false}))

	// nil bounds leave that side open
	assert.Equal(t, []any{int64(1), int64(3)},
		collect(RangeSpec{End: 3, IncHigh: true}))
	assert.Equal(t, []any{int64(5), int64(9)},
		collect(RangeSpec{Start: 5, IncLow: true}))
}

func TestRangeValues(t *testing.T) {
	v := seedTree(t)

	items, err := v.Range(RangeSpec{Start: 4, End: 5, IncLow: true, IncHigh: true})
	require.NoError(t, err)
	defer items.Close()

	var vals []any
	for items.Next() {
		vals = append(vals, items.Value())
	}
	require.NoError(t, items.Err())
	assert.Equal(t, []any{int64(400), int64(500)}, vals)
}
