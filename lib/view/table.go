package view

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pombreda/go-tcdb/lib/codec"
)

// --------------------------------------------------------------------------
// Row codec
// --------------------------------------------------------------------------

// Row payload layout: uvarint column count, then per column a uvarint
// name length, the name bytes, a uvarint value length and the encoded
// value bytes. Columns are written in sorted name order so equal rows
// have equal payloads.

func encodeRow(row map[string]any, cfg opConfig) ([]byte, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := binary.AppendUvarint(nil, uint64(len(names)))
	for _, name := range names {
		var (
			val []byte
			err error
		)
		if cfg.rawCols {
			val, err = codec.EncodeRaw(row[name])
		} else {
			val, err = codec.Encode(row[name])
		}
		if err != nil {
			return nil, fromCodec(err)
		}
		buf = binary.AppendUvarint(buf, uint64(len(name)))
		buf = append(buf, name...)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		buf = append(buf, val...)
	}
	return buf, nil
}

func decodeRow(b []byte, cfg opConfig) (map[string]any, error) {
	count, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, NewError(RetCCodec, "malformed row header")
	}
	b = b[n:]
	// every column takes at least its two length bytes, so a count beyond
	// the remaining payload is corrupt; reject it before sizing the map
	if count > uint64(len(b)) {
		return nil, NewError(RetCCodec, "malformed row header")
	}

	row := make(map[string]any, count)
	for i := uint64(0); i < count; i++ {
		nameLen, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b[n:])) < nameLen {
			return nil, NewError(RetCCodec, "malformed row column name")
		}
		name := string(b[n : n+int(nameLen)])
		b = b[n+int(nameLen):]

		valLen, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b[n:])) < valLen {
			return nil, NewError(RetCCodec, "malformed row column value")
		}
		val := b[n : n+int(valLen)]
		b = b[n+int(valLen):]

		decoded, err := decodeColumn(name, val, cfg)
		if err != nil {
			return nil, err
		}
		row[name] = decoded
	}
	return row, nil
}

// decodeColumn applies the schema's declared type for the column, falls
// back to the value's own tag, or yields text for raw-column rows.
func decodeColumn(name string, val []byte, cfg opConfig) (any, error) {
	if cfg.rawCols {
		return string(val), nil
	}
	want := codec.TypeAny
	if cfg.schema != nil {
		if t, ok := cfg.schema[name]; ok {
			want = t
		}
	}
	decoded, err := codec.Decode(val, want)
	if err != nil {
		return nil, fromCodec(err)
	}
	return decoded, nil
}

// --------------------------------------------------------------------------
// Unsupported stubs for non-table kinds
// --------------------------------------------------------------------------

func (v *view) rowsUnsupported() error {
	return NewError(RetCUnsupported,
		"row operations require a table handle, this handle is "+v.kind.String())
}

func (v *view) PutRow(key any, row map[string]any, opts ...Option) error {
	return v.rowsUnsupported()
}

func (v *view) GetRow(key any, opts ...Option) (map[string]any, error) {
	return nil, v.rowsUnsupported()
}

func (v *view) Query(q Query, opts ...Option) ([]any, error) {
	return nil, v.rowsUnsupported()
}

// --------------------------------------------------------------------------
// Table view
// --------------------------------------------------------------------------

// tableView wraps the base view with row semantics: values are column
// mappings serialized by the row codec, and plain Put/Get delegate to
// the row operations.
type tableView struct {
	*view
}

func (t *tableView) PutRow(key any, row map[string]any, opts ...Option) error {
	if err := t.live(); err != nil {
		return err
	}
	cfg := applyOptions(opts)
	k, err := t.encodeKey(key, cfg)
	if err != nil {
		return err
	}
	payload, err := encodeRow(row, cfg)
	if err != nil {
		return err
	}
	countOp(t.kind, "putrow")
	return fromNative(t.engine.Put(k, payload))
}

func (t *tableView) GetRow(key any, opts ...Option) (map[string]any, error) {
	if err := t.live(); err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)
	k, err := t.encodeKey(key, cfg)
	if err != nil {
		return nil, err
	}
	countOp(t.kind, "getrow")
	b, err := t.engine.Get(k)
	if err != nil {
		return nil, fromNative(err)
	}
	return decodeRow(b, cfg)
}

// Put on a table handle takes whole rows.
func (t *tableView) Put(key, value any, opts ...Option) error {
	row, ok := value.(map[string]any)
	if !ok {
		return NewError(RetCTypeMismatch,
			fmt.Sprintf("table values must be map[string]any rows, got %T", value))
	}
	return t.PutRow(key, row, opts...)
}

func (t *tableView) PutKeep(key, value any, opts ...Option) error {
	row, ok := value.(map[string]any)
	if !ok {
		return NewError(RetCTypeMismatch,
			fmt.Sprintf("table values must be map[string]any rows, got %T", value))
	}
	if err := t.live(); err != nil {
		return err
	}
	cfg := applyOptions(opts)
	k, err := t.encodeKey(key, cfg)
	if err != nil {
		return err
	}
	payload, err := encodeRow(row, cfg)
	if err != nil {
		return err
	}
	countOp(t.kind, "putkeep")
	return fromNative(t.engine.PutKeep(k, payload))
}

// PutCat cannot append to a structured row payload.
func (t *tableView) PutCat(key, value any, opts ...Option) error {
	return NewError(RetCUnsupported, "append is not defined for table rows")
}

// Get on a table handle yields the decoded row.
func (t *tableView) Get(key any, opts ...Option) (any, error) {
	return t.GetRow(key, opts...)
}

// AddInt records are scalar, not rows.
func (t *tableView) AddInt(key any, delta int64) (int64, error) {
	return 0, NewError(RetCUnsupported, "numeric add is not defined for table rows")
}

func (t *tableView) AddFloat(key any, delta float64) (float64, error) {
	return 0, NewError(RetCUnsupported, "numeric add is not defined for table rows")
}
