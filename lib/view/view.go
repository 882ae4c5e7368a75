package view

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pombreda/go-tcdb/lib/codec"
	"github.com/pombreda/go-tcdb/lib/db"
	"github.com/pombreda/go-tcdb/lib/db/engines/bucket"
	"github.com/pombreda/go-tcdb/lib/db/engines/fixed"
	"github.com/pombreda/go-tcdb/lib/db/engines/ordered"
)

var log = logger.GetLogger("view")

// --------------------------------------------------------------------------
// Open (Abstract Facade entry point)
// --------------------------------------------------------------------------

// Open creates a view handle on the given path, opened as the declared
// engine kind. The returned IView dispatches every operation to the
// concrete view for that kind.
func Open(path string, kind db.Kind, omode db.OMode, tuning *db.Tuning) (IView, error) {
	var (
		engine db.Engine
		err    error
	)
	switch kind {
	case db.KindHash:
		engine, err = bucket.Open(path, omode, tuning)
	case db.KindFixed:
		engine, err = fixed.Open(path, omode, tuning)
	case db.KindTree, db.KindTable:
		engine, err = ordered.Open(path, kind, omode, tuning)
	default:
		return nil, NewError(RetCConfig, fmt.Sprintf("unknown engine kind: %d", kind))
	}
	if err != nil {
		return nil, fromNativeOpen(err)
	}

	base := &view{engine: engine, kind: kind}
	log.Infof("opened %s view at %s", kind, path)
	if kind == db.KindTable {
		t := &tableView{view: base}
		base.self = t
		return t, nil
	}
	base.self = base
	return base, nil
}

// --------------------------------------------------------------------------
// Core view structure
// --------------------------------------------------------------------------

// view implements IView for the hash, tree and array kinds. The table
// kind wraps it with row semantics (see tableView).
type view struct {
	engine db.Engine
	kind   db.Kind
	closed atomic.Bool

	// self is the IView handed back to transaction bodies, so table
	// handles keep their row semantics inside RunInTransaction
	self IView

	txMu sync.Mutex
	inTx bool

	// live cursors, invalidated and released when the handle closes
	cursorMu sync.Mutex
	cursors  map[*Cursor]struct{}
}

func (v *view) live() error {
	if v.closed.Load() {
		return NewError(RetCUseAfterClose, "view handle is closed")
	}
	return nil
}

func (v *view) Path() string  { return v.engine.Path() }
func (v *view) Kind() db.Kind { return v.kind }

// --------------------------------------------------------------------------
// Key and value coding
// --------------------------------------------------------------------------

// asInt64 accepts any integer shape a host value can take.
func asInt64(key any) (int64, bool) {
	switch k := key.(type) {
	case int:
		return int64(k), true
	case int8:
		return int64(k), true
	case int16:
		return int64(k), true
	case int32:
		return int64(k), true
	case int64:
		return k, true
	case uint:
		return int64(k), true
	case uint8:
		return int64(k), true
	case uint16:
		return int64(k), true
	case uint32:
		return int64(k), true
	case uint64:
		if k > 1<<63-1 {
			return 0, false
		}
		return int64(k), true
	default:
		return 0, false
	}
}

// encodeKey converts a host key to the engine's byte representation.
// Array handles take only integer keys, mapped to the 8-byte record id
// the engine requires; other kinds pass through the codec.
func (v *view) encodeKey(key any, cfg opConfig) ([]byte, error) {
	if v.kind == db.KindFixed {
		id, ok := asInt64(key)
		if !ok || id < 0 {
			return nil, NewError(RetCTypeMismatch,
				fmt.Sprintf("array keys must be non-negative integers, got %T", key))
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(id))
		return out, nil
	}
	if cfg.rawKey {
		b, err := codec.EncodeRaw(key)
		if err != nil {
			return nil, fromCodec(err)
		}
		return b, nil
	}
	b, err := codec.Encode(key)
	if err != nil {
		return nil, fromCodec(err)
	}
	return b, nil
}

func (v *view) decodeKey(b []byte, cfg opConfig) (any, error) {
	if v.kind == db.KindFixed {
		if len(b) != 8 {
			return nil, NewError(RetCCodec, "malformed record id")
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	}
	if cfg.rawKey {
		out, err := codec.DecodeRaw(b, codec.TypeBytes)
		if err != nil {
			return nil, fromCodec(err)
		}
		return out, nil
	}
	out, err := codec.Decode(b, codec.TypeAny)
	if err != nil {
		return nil, fromCodec(err)
	}
	return out, nil
}

func encodeValue(value any, cfg opConfig) ([]byte, error) {
	if cfg.rawValue {
		b, err := codec.EncodeRaw(value)
		if err != nil {
			return nil, fromCodec(err)
		}
		return b, nil
	}
	b, err := codec.Encode(value)
	if err != nil {
		return nil, fromCodec(err)
	}
	return b, nil
}

func decodeValue(b []byte, cfg opConfig) (any, error) {
	if cfg.rawValue {
		want := cfg.wantType
		if want == codec.TypeAny {
			want = codec.TypeBytes
		}
		out, err := codec.DecodeRaw(b, want)
		if err != nil {
			return nil, fromCodec(err)
		}
		return out, nil
	}
	out, err := codec.Decode(b, cfg.wantType)
	if err != nil {
		return nil, fromCodec(err)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Point operations
// --------------------------------------------------------------------------

func (v *view) Put(key, value any, opts ...Option) error {
	if err := v.live(); err != nil {
		return err
	}
	cfg := applyOptions(opts)
	k, err := v.encodeKey(key, cfg)
	if err != nil {
		return err
	}
	val, err := encodeValue(value, cfg)
	if err != nil {
		return err
	}
	countOp(v.kind, "put")
	return fromNative(v.engine.Put(k, val))
}

func (v *view) PutKeep(key, value any, opts ...Option) error {
	if err := v.live(); err != nil {
		return err
	}
	cfg := applyOptions(opts)
	k, err := v.encodeKey(key, cfg)
	if err != nil {
		return err
	}
	val, err := encodeValue(value, cfg)
	if err != nil {
		return err
	}
	countOp(v.kind, "putkeep")
	return fromNative(v.engine.PutKeep(k, val))
}

func (v *view) PutCat(key, value any, opts ...Option) error {
	if err := v.live(); err != nil {
		return err
	}
	cfg := applyOptions(opts)
	k, err := v.encodeKey(key, cfg)
	if err != nil {
		return err
	}
	// appending only makes sense on untagged byte payloads
	cfg.rawValue = true
	val, err := encodeValue(value, cfg)
	if err != nil {
		return err
	}
	countOp(v.kind, "putcat")
	return fromNative(v.engine.PutCat(k, val))
}

func (v *view) Get(key any, opts ...Option) (any, error) {
	if err := v.live(); err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)
	k, err := v.encodeKey(key, cfg)
	if err != nil {
		return nil, err
	}
	countOp(v.kind, "get")
	b, err := v.engine.Get(k)
	if err != nil {
		return nil, fromNative(err)
	}
	return decodeValue(b, cfg)
}

func (v *view) Out(key any, opts ...Option) error {
	if err := v.live(); err != nil {
		return err
	}
	cfg := applyOptions(opts)
	k, err := v.encodeKey(key, cfg)
	if err != nil {
		return err
	}
	countOp(v.kind, "out")
	return fromNative(v.engine.Delete(k))
}

func (v *view) Has(key any, opts ...Option) (bool, error) {
	if err := v.live(); err != nil {
		return false, err
	}
	cfg := applyOptions(opts)
	k, err := v.encodeKey(key, cfg)
	if err != nil {
		return false, err
	}
	ok, err := v.engine.Has(k)
	return ok, fromNative(err)
}

func (v *view) Count() (uint64, error) {
	if err := v.live(); err != nil {
		return 0, err
	}
	return v.engine.Count(), nil
}

func (v *view) Size() (int64, error) {
	if err := v.live(); err != nil {
		return 0, err
	}
	return v.engine.Size(), nil
}

// --------------------------------------------------------------------------
// Numeric add-in-place
// --------------------------------------------------------------------------

func (v *view) AddInt(key any, delta int64) (int64, error) {
	if err := v.live(); err != nil {
		return 0, err
	}
	k, err := v.encodeKey(key, opConfig{})
	if err != nil {
		return 0, err
	}
	countOp(v.kind, "addint")
	b, err := v.engine.Get(k)
	if db.CodeOf(err) == db.ENoRec {
		// an absent record starts at delta
		return delta, v.putInt(k, delta)
	}
	if err != nil {
		return 0, fromNative(err)
	}
	current, err := codec.Decode(b, codec.TypeInt)
	if err != nil {
		return 0, fromCodec(err)
	}
	next := current.(int64) + delta
	return next, v.putInt(k, next)
}

func (v *view) putInt(k []byte, n int64) error {
	val, err := codec.Encode(n)
	if err != nil {
		return fromCodec(err)
	}
	return fromNative(v.engine.Put(k, val))
}

func (v *view) AddFloat(key any, delta float64) (float64, error) {
	if err := v.live(); err != nil {
		return 0, err
	}
	k, err := v.encodeKey(key, opConfig{})
	if err != nil {
		return 0, err
	}
	countOp(v.kind, "addfloat")
	b, err := v.engine.Get(k)
	if db.CodeOf(err) == db.ENoRec {
		return delta, v.putFloat(k, delta)
	}
	if err != nil {
		return 0, fromNative(err)
	}
	current, err := codec.Decode(b, codec.TypeFloat)
	if err != nil {
		return 0, fromCodec(err)
	}
	next := current.(float64) + delta
	return next, v.putFloat(k, next)
}

func (v *view) putFloat(k []byte, f float64) error {
	val, err := codec.Encode(f)
	if err != nil {
		return fromCodec(err)
	}
	return fromNative(v.engine.Put(k, val))
}

// --------------------------------------------------------------------------
// Forward-prefix key matching
// --------------------------------------------------------------------------

func (v *view) ForwardKeys(prefix string, max int) ([]string, error) {
	if err := v.live(); err != nil {
		return nil, err
	}
	countOp(v.kind, "fwmkeys")

	var (
		iter db.Iterator
		err  error
	)
	if o, ok := v.engine.(db.OrderedEngine); ok {
		// typed string keys are contiguous in byte order, so a bounded
		// scan over the encoded prefix covers exactly the matches
		lower, encErr := codec.Encode(prefix)
		if encErr != nil {
			return nil, fromCodec(encErr)
		}
		iter, err = o.RangeIterator(lower, keyUpperBound(lower))
	} else {
		iter, err = v.engine.Iterator()
	}
	if err != nil {
		return nil, fromNative(err)
	}
	defer iter.Close()

	var out []string
	for iter.Next() {
		if max > 0 && len(out) >= max {
			break
		}
		decoded, err := v.decodeKey(iter.Key(), opConfig{})
		if err != nil {
			// raw or non-string keys never match a string prefix
			continue
		}
		s, ok := decoded.(string)
		if !ok {
			continue
		}
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			out = append(out, s)
		}
	}
	return out, nil
}

// keyUpperBound returns the exclusive upper bound of the byte prefix b,
// or nil when no bound exists (the prefix is all 0xff).
func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Items is a lazy iterator of decoded key/value pairs. Next advances and
// decodes; a decode failure stops iteration and is reported by Err.
type Items struct {
	v    *view
	iter db.Iterator
	cfg  opConfig

	// range bounds, nil when unbounded
	skipLow []byte
	end     []byte
	incHigh bool

	table bool
	key   any
	value any
	err   error
}

func (v *view) Items(opts ...Option) (*Items, error) {
	if err := v.live(); err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)
	iter, err := v.engine.Iterator()
	if err != nil {
		return nil, fromNative(err)
	}
	countOp(v.kind, "items")
	return &Items{v: v, iter: iter, cfg: cfg, table: v.kind == db.KindTable}, nil
}

// Next advances to the next record, decoding key and value. It returns
// false when the sequence is exhausted or a failure occurred.
func (it *Items) Next() bool {
	if it.err != nil {
		return false
	}
	for it.iter.Next() {
		rawKey := it.iter.Key()
		if it.skipLow != nil && bytes.Equal(rawKey, it.skipLow) {
			continue
		}
		if it.end != nil {
			cmp := bytes.Compare(rawKey, it.end)
			if cmp > 0 || (cmp == 0 && !it.incHigh) {
				return false
			}
		}
		key, err := it.v.decodeKey(rawKey, it.cfg)
		if err != nil {
			it.err = err
			return false
		}
		rawVal, err := it.iter.Value()
		if err != nil {
			it.err = fromNative(err)
			return false
		}
		var value any
		if it.table {
			value, err = decodeRow(rawVal, it.cfg)
		} else {
			value, err = decodeValue(rawVal, it.cfg)
		}
		if err != nil {
			it.err = err
			return false
		}
		it.key, it.value = key, value
		return true
	}
	return false
}

// Key returns the decoded key of the current record.
func (it *Items) Key() any { return it.key }

// Value returns the decoded value of the current record. Table handles
// yield map[string]any rows.
func (it *Items) Value() any { return it.value }

// Err reports the failure that stopped iteration, if any.
func (it *Items) Err() error { return it.err }

func (it *Items) Close() error {
	return fromNative(it.iter.Close())
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

func (v *view) Vanish() error {
	if err := v.live(); err != nil {
		return err
	}
	countOp(v.kind, "vanish")
	return fromNative(v.engine.Vanish())
}

func (v *view) Sync() error {
	if err := v.live(); err != nil {
		return err
	}
	countOp(v.kind, "sync")
	return fromNative(v.engine.Sync())
}

func (v *view) CopyTo(path string) error {
	if err := v.live(); err != nil {
		return err
	}
	countOp(v.kind, "copy")
	return fromNative(v.engine.Copy(path))
}

func (v *view) Stat() (db.Stat, error) {
	if err := v.live(); err != nil {
		return db.Stat{}, err
	}
	return v.engine.Stat(), nil
}

// Close releases the handle. Closing with an active transaction scope
// aborts the scope instead of failing, matching the guaranteed-terminal
// contract of RunInTransaction; live cursors are invalidated.
func (v *view) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return NewError(RetCUseAfterClose, "view handle already closed")
	}
	v.txMu.Lock()
	wasInTx := v.inTx
	v.inTx = false
	v.txMu.Unlock()
	if wasInTx {
		// closing inside a scope aborts it, then the close proceeds
		if err := v.engine.Abort(); err != nil {
			log.Errorf("abort on close failed: %v", err)
		}
	}
	v.cursorMu.Lock()
	for c := range v.cursors {
		c.invalidate()
	}
	v.cursors = nil
	v.cursorMu.Unlock()
	log.Infof("closed %s view at %s", v.kind, v.Path())
	return fromNative(v.engine.Close())
}
