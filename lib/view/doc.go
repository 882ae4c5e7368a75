// Package view provides the host-facing access layer over the native
// storage engines: a dictionary-like facade that makes the four engine
// kinds (hash, tree, array, table) behave like one associative,
// transactional, iterable container type.
//
// The package focuses on:
//   - Type-preserving key/value conversion through the byte codec, with
//     per-call raw-mode escape for cross-language interoperability
//   - A scoped transaction manager with guaranteed commit-or-abort
//     termination (RunInTransaction)
//   - Ordered cursors and range queries on tree handles
//   - Schema-aware row codec and predicate queries on table handles
//   - A uniform error taxonomy (RetCode) wrapping native engine failures
//
// Key Components:
//
//   - IView: The facade interface. Open(path, kind, omode, tuning)
//     returns the concrete view for the declared kind; kind-specific
//     operations invoked on the wrong kind fail with RetCUnsupported.
//
//   - Cursor: A position within the ordered key space of a tree handle,
//     with first/last/next/prev/jump positioning and exact-or-nearest
//     jump policies. Invalidated by handle close or by deletion of its
//     current key.
//
//   - Query: Declarative predicates (Eq, Gt, Ge, Lt, Le, In, And) over
//     table rows, evaluated by full scan.
//
// Operation counters are exported through the VictoriaMetrics default
// set as tcdb_ops_total{kind,op}. Lifecycle events are logged through
// the library logger facade; InitLoggers installs the formatter and
// SetLogLevel adjusts verbosity at runtime.
//
// Thread-safety: a view handle may be shared across goroutines for point
// operations (the native engines synchronize internally), but the
// transaction scope is per handle, so concurrent scopes on one handle
// are rejected with RetCTxState.
package view
