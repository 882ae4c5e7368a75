package view

import (
	"bytes"
)

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// Query is a declarative predicate over the column values of a table
// row. Queries are built from the constructors below and evaluated by
// IView.Query against every row.
type Query interface {
	matches(row map[string]any) bool
}

type eqQuery struct {
	col string
	val any
}

func (q eqQuery) matches(row map[string]any) bool {
	v, ok := row[q.col]
	if !ok {
		return false
	}
	cmp, comparable := compareValues(v, q.val)
	return comparable && cmp == 0
}

// Eq matches rows whose column equals the value.
func Eq(col string, val any) Query { return eqQuery{col: col, val: val} }

type cmpQuery struct {
	col string
	val any
	// want holds the accepted comparison outcomes against val
	lt, eq, gt bool
}

func (q cmpQuery) matches(row map[string]any) bool {
	v, ok := row[q.col]
	if !ok {
		return false
	}
	cmp, comparable := compareValues(v, q.val)
	if !comparable {
		return false
	}
	switch {
	case cmp < 0:
		return q.lt
	case cmp == 0:
		return q.eq
	default:
		return q.gt
	}
}

// Gt matches rows whose column is strictly greater than the value.
func Gt(col string, val any) Query { return cmpQuery{col: col, val: val, gt: true} }

// Ge matches rows whose column is greater than or equal to the value.
func Ge(col string, val any) Query { return cmpQuery{col: col, val: val, gt: true, eq: true} }

// Lt matches rows whose column is strictly less than the value.
func Lt(col string, val any) Query { return cmpQuery{col: col, val: val, lt: true} }

// Le matches rows whose column is less than or equal to the value.
func Le(col string, val any) Query { return cmpQuery{col: col, val: val, lt: true, eq: true} }

type inQuery struct {
	col  string
	vals []any
}

func (q inQuery) matches(row map[string]any) bool {
	v, ok := row[q.col]
	if !ok {
		return false
	}
	for _, candidate := range q.vals {
		if cmp, comparable := compareValues(v, candidate); comparable && cmp == 0 {
			return true
		}
	}
	return false
}

// In matches rows whose column equals any of the values.
func In(col string, vals ...any) Query { return inQuery{col: col, vals: vals} }

type andQuery struct {
	qs []Query
}

func (q andQuery) matches(row map[string]any) bool {
	for _, sub := range q.qs {
		if !sub.matches(row) {
			return false
		}
	}
	return true
}

// And matches rows satisfying every sub-query.
func And(qs ...Query) Query { return andQuery{qs: qs} }

// --------------------------------------------------------------------------
// Value comparison
// --------------------------------------------------------------------------

// compareValues orders two host values of compatible types. Integers and
// floats compare numerically across each other; strings and byte strings
// compare lexicographically. Incompatible types are not comparable.
func compareValues(a, b any) (int, bool) {
	if an, aIsNum := asNumber(a); aIsNum {
		bn, bIsNum := asNumber(b)
		if !bIsNum {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return bytes.Compare([]byte(av), []byte(bv)), true
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), true
		}
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	if n, ok := asInt64(v); ok {
		return float64(n), true
	}
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return 0, false
}

// --------------------------------------------------------------------------
// Evaluation
// --------------------------------------------------------------------------

// Query evaluates the predicate by full scan and returns the decoded
// primary keys of exactly the matching rows, without duplicates.
func (t *tableView) Query(q Query, opts ...Option) ([]any, error) {
	if err := t.live(); err != nil {
		return nil, err
	}
	countOp(t.kind, "query")

	items, err := t.Items(opts...)
	if err != nil {
		return nil, err
	}
	defer items.Close()

	var keys []any
	for items.Next() {
		row, ok := items.Value().(map[string]any)
		if !ok {
			continue
		}
		if q.matches(row) {
			keys = append(keys, items.Key())
		}
	}
	if err := items.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
