package view

import (
	"github.com/pombreda/go-tcdb/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IView is the dictionary-like facade over one open database handle of a
// given engine kind. All kinds share the point operations, iteration and
// transactions; tree handles additionally support cursors and range
// queries; table handles additionally support row and query operations.
// Invoking a kind-specific operation on the wrong kind fails with
// RetCUnsupported.
//
// Keys and values pass through the byte codec in typed mode unless a
// RawKey/RawValue option switches the call to raw mode. Array handles
// accept only integer keys.
//
// A handle owns exactly one native engine connection. After Close every
// operation fails with RetCUseAfterClose, and cursors derived from the
// handle are invalidated.
type IView interface {
	// Path returns the storage path the handle was opened on.
	Path() string

	// Kind returns the engine kind the handle was opened as.
	Kind() db.Kind

	// Put inserts or updates a record. An existing key is silently
	// overwritten.
	Put(key, value any, opts ...Option) error

	// PutKeep inserts a record only if the key is absent. An existing key
	// fails with a native EKeep error.
	PutKeep(key, value any, opts ...Option) error

	// PutCat appends to the stored bytes of an existing record, or creates
	// it. The value is appended in raw form, so PutCat is meaningful for
	// raw-mode records.
	PutCat(key, value any, opts ...Option) error

	// Get returns the decoded value for a key, or fails with
	// RetCKeyNotFound.
	Get(key any, opts ...Option) (any, error)

	// Out removes a record, or fails with RetCKeyNotFound if absent.
	Out(key any, opts ...Option) error

	// Has reports whether a key exists.
	Has(key any, opts ...Option) (bool, error)

	// Count returns the number of records.
	Count() (uint64, error)

	// Size returns the estimated storage size in bytes.
	Size() (int64, error)

	// AddInt adds delta to a typed integer record and returns the new
	// value, creating the record at delta if absent. A record of any other
	// type fails with RetCTypeMismatch.
	AddInt(key any, delta int64) (int64, error)

	// AddFloat adds delta to a typed float record and returns the new
	// value, creating the record at delta if absent.
	AddFloat(key any, delta float64) (float64, error)

	// ForwardKeys returns the decoded string keys beginning with prefix,
	// at most max of them (max <= 0 means no limit). Non-string keys never
	// match.
	ForwardKeys(prefix string, max int) ([]string, error)

	// Items returns a lazy iterator of decoded key/value pairs. Iteration
	// order is engine order: ascending keys for tree handles, ascending
	// record ids for array handles, unspecified for hash handles.
	Items(opts ...Option) (*Items, error)

	// Begin starts a transaction scope on the handle. A second Begin on
	// an already-scoped handle fails with RetCTxState before any native
	// call is made.
	Begin() error

	// Commit terminates the active scope, making its writes durable.
	Commit() error

	// Abort terminates the active scope, discarding its writes.
	Abort() error

	// RunInTransaction executes fn inside a scope with a guaranteed
	// terminal action: commit on normal return, abort on error or panic
	// (the error or panic propagates unchanged after the abort).
	RunInTransaction(fn func(v IView) error) error

	// Cursor returns an ordered cursor over the key space. Only tree
	// handles support cursors; others fail with RetCUnsupported.
	Cursor(opts ...Option) (*Cursor, error)

	// Range returns a lazy iterator over the records whose keys fall
	// within the given bounds. Only tree handles support ranges.
	Range(spec RangeSpec) (*Items, error)

	// PutRow writes a table row as a column/value mapping. Only table
	// handles support rows.
	PutRow(key any, row map[string]any, opts ...Option) error

	// GetRow reads a table row, decoding columns per the schema option.
	GetRow(key any, opts ...Option) (map[string]any, error)

	// Query evaluates a predicate against all rows and returns the
	// decoded primary keys of the matching rows. Only table handles
	// support queries.
	Query(q Query, opts ...Option) ([]any, error)

	// Vanish removes all records.
	Vanish() error

	// Sync flushes updated contents to the storage device.
	Sync() error

	// CopyTo writes a consistent copy of the database to a new path.
	CopyTo(path string) error

	// Stat returns introspection data from the native engine.
	Stat() (db.Stat, error)

	// Close releases the handle. An active transaction scope is aborted
	// rather than treated as misuse, and cursors derived from the handle
	// are invalidated. Double close fails with RetCUseAfterClose.
	Close() error
}
