package view

import (
	"bytes"

	"github.com/pombreda/go-tcdb/lib/db"
)

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// JumpPolicy selects how Jump treats a missing target key.
type JumpPolicy int

const (
	// JumpNearest positions at the nearest key >= the target (forward
	// range semantics). The cursor is exhausted when no such key exists.
	JumpNearest JumpPolicy = iota
	// JumpExact fails with RetCKeyNotFound unless the target key itself
	// exists.
	JumpExact
)

type cursorState int

const (
	cursorUnpositioned cursorState = iota
	cursorPositioned
	cursorExhausted
	cursorClosed
)

// Cursor is a position within the ordered key space of a tree handle.
// It is owned by its originating view handle and invalidated when that
// handle closes, or when a concurrent delete removes its current key:
// further use fails with RetCCursorInvalid instead of returning stale
// data.
type Cursor struct {
	v       *view
	ordered db.OrderedEngine
	cfg     opConfig

	iter  db.Iterator
	state cursorState
	curr  []byte
}

// Cursor returns an ordered cursor. Only tree handles support cursors.
func (v *view) Cursor(opts ...Option) (*Cursor, error) {
	if err := v.live(); err != nil {
		return nil, err
	}
	if v.kind != db.KindTree {
		return nil, NewError(RetCUnsupported,
			"cursors require a tree handle, this handle is "+v.kind.String())
	}
	countOp(v.kind, "cursor")
	c := &Cursor{
		v:       v,
		ordered: v.engine.(db.OrderedEngine),
		cfg:     applyOptions(opts),
	}
	v.cursorMu.Lock()
	if v.cursors == nil {
		v.cursors = make(map[*Cursor]struct{})
	}
	v.cursors[c] = struct{}{}
	v.cursorMu.Unlock()
	return c, nil
}

// invalidate releases the cursor's iterator and marks it unusable. The
// owning handle calls it on close.
func (c *Cursor) invalidate() {
	c.state = cursorClosed
	c.curr = nil
	if c.iter != nil {
		c.iter.Close()
		c.iter = nil
	}
}

// valid rejects use of an invalidated cursor: handle closed, cursor
// closed, or the current key deleted out from under it.
func (c *Cursor) valid() error {
	if c.state == cursorClosed {
		return NewError(RetCCursorInvalid, "cursor is closed")
	}
	if c.v.closed.Load() {
		c.state = cursorClosed
		return NewError(RetCCursorInvalid, "owning handle is closed")
	}
	if c.state == cursorPositioned {
		ok, err := c.v.engine.Has(c.curr)
		if err != nil {
			return fromNative(err)
		}
		if !ok {
			c.state = cursorClosed
			return NewError(RetCCursorInvalid, "current key was deleted")
		}
	}
	return nil
}

// settle records the landing spot of a positioning step.
func (c *Cursor) settle(positioned bool) bool {
	if !positioned {
		c.state = cursorExhausted
		c.curr = nil
		return false
	}
	c.state = cursorPositioned
	c.curr = c.iter.Key()
	return true
}

func (c *Cursor) replaceIter(iter db.Iterator) {
	if c.iter != nil {
		c.iter.Close()
	}
	c.iter = iter
}

// First positions at the minimum key. Returns false when the database is
// empty.
func (c *Cursor) First() (bool, error) {
	if err := c.valid(); err != nil {
		return false, err
	}
	iter, err := c.ordered.SeekFirst()
	if err != nil {
		return false, fromNative(err)
	}
	c.replaceIter(iter)
	return c.settle(iter.Valid()), nil
}

// Last positions at the maximum key.
func (c *Cursor) Last() (bool, error) {
	if err := c.valid(); err != nil {
		return false, err
	}
	iter, err := c.ordered.SeekLast()
	if err != nil {
		return false, fromNative(err)
	}
	c.replaceIter(iter)
	return c.settle(iter.Valid()), nil
}

// Next steps to the successor key, or to the minimum key when the cursor
// is unpositioned. Returns false when exhausted.
func (c *Cursor) Next() (bool, error) {
	if err := c.valid(); err != nil {
		return false, err
	}
	if c.iter == nil {
		return c.First()
	}
	return c.settle(c.iter.Next()), nil
}

// Prev steps to the predecessor key, or to the maximum key when the
// cursor is unpositioned.
func (c *Cursor) Prev() (bool, error) {
	if err := c.valid(); err != nil {
		return false, err
	}
	if c.iter == nil {
		return c.Last()
	}
	return c.settle(c.iter.Prev()), nil
}

// Jump positions at key, or per policy at the nearest key >= key.
func (c *Cursor) Jump(key any, policy JumpPolicy) (bool, error) {
	if err := c.valid(); err != nil {
		return false, err
	}
	target, err := c.v.encodeKey(key, c.cfg)
	if err != nil {
		return false, err
	}
	iter, err := c.ordered.SeekNear(target)
	if err != nil {
		return false, fromNative(err)
	}
	c.replaceIter(iter)
	if policy == JumpExact {
		if !iter.Valid() || !bytes.Equal(iter.Key(), target) {
			c.replaceIter(nil)
			c.state = cursorUnpositioned
			c.curr = nil
			return false, NewError(RetCKeyNotFound, "no record at the jump target")
		}
	}
	return c.settle(iter.Valid()), nil
}

// Key returns the decoded key at the cursor position.
func (c *Cursor) Key() (any, error) {
	if err := c.valid(); err != nil {
		return nil, err
	}
	if c.state != cursorPositioned {
		return nil, NewError(RetCCursorInvalid, "cursor is not positioned")
	}
	return c.v.decodeKey(c.curr, c.cfg)
}

// Value returns the decoded value at the cursor position.
func (c *Cursor) Value() (any, error) {
	if err := c.valid(); err != nil {
		return nil, err
	}
	if c.state != cursorPositioned {
		return nil, NewError(RetCCursorInvalid, "cursor is not positioned")
	}
	raw, err := c.iter.Value()
	if err != nil {
		return nil, fromNative(err)
	}
	return decodeValue(raw, c.cfg)
}

func (c *Cursor) Close() error {
	if c.state == cursorClosed {
		return nil
	}
	c.v.cursorMu.Lock()
	delete(c.v.cursors, c)
	c.v.cursorMu.Unlock()
	c.state = cursorClosed
	c.curr = nil
	if c.iter != nil {
		err := c.iter.Close()
		c.iter = nil
		return fromNative(err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Range queries
// --------------------------------------------------------------------------

// RangeSpec bounds a forward range query. A nil Start or End leaves that
// side unbounded; the inclusive flags choose whether boundary keys are
// part of the result. Raw encodes the bounds and decodes the keys in raw
// mode.
type RangeSpec struct {
	Start   any
	End     any
	IncLow  bool
	IncHigh bool
	Raw     bool
}

// Range returns a lazy iterator over the records whose keys satisfy the
// spec. Only tree handles support ranges.
func (v *view) Range(spec RangeSpec) (*Items, error) {
	if err := v.live(); err != nil {
		return nil, err
	}
	if v.kind != db.KindTree {
		return nil, NewError(RetCUnsupported,
			"range queries require a tree handle, this handle is "+v.kind.String())
	}
	ordered := v.engine.(db.OrderedEngine)

	cfg := opConfig{rawKey: spec.Raw, rawValue: spec.Raw}

	var lower, upper []byte
	var err error
	if spec.Start != nil {
		lower, err = v.encodeKey(spec.Start, cfg)
		if err != nil {
			return nil, err
		}
	}
	if spec.End != nil {
		upper, err = v.encodeKey(spec.End, cfg)
		if err != nil {
			return nil, err
		}
	}

	iter, err := ordered.RangeIterator(lower, nil)
	if err != nil {
		return nil, fromNative(err)
	}
	countOp(v.kind, "range")

	items := &Items{v: v, iter: iter, cfg: cfg, end: upper, incHigh: spec.IncHigh}
	if lower != nil && !spec.IncLow {
		items.skipLow = lower
	}
	return items, nil
}
