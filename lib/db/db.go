package db

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Kind identifies one of the four native engine variants unified by this
// layer.
type Kind uint8

const (
	KindHash  Kind = iota // unordered hash store
	KindTree              // ordered B+-tree store
	KindFixed             // fixed-length integer-indexed array store
	KindTable             // tabular row/column store
)

func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindTree:
		return "tree"
	case KindFixed:
		return "fixed"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// OMode combines reader/writer/creator semantics for opening an engine.
type OMode uint8

const (
	OReader OMode = 1 << iota // open as a reader
	OWriter                   // open as a writer
	OCreate                   // create the database if it does not exist
	OTrunc                    // start from an empty database
	OTSync                    // synchronize after every transaction commit
)

// Feature represents engine capabilities as bit flags
type Feature uint64

const (
	FeaturePut        Feature = 1 << iota // point writes (Put/PutKeep/PutCat)
	FeatureGet                            // point lookups
	FeatureDelete                         // record deletion
	FeatureIterate                        // full iteration
	FeatureTx                             // begin/commit/abort transactions
	FeatureOrdered                        // ordered iteration and cursor seeks
	FeatureFixedWidth                     // fixed record width enforcement
	FeatureCompress                       // per-record value compression
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureIterate:
		return "Iterate"
	case FeatureTx:
		return "Tx"
	case FeatureOrdered:
		return "Ordered"
	case FeatureFixedWidth:
		return "FixedWidth"
	case FeatureCompress:
		return "Compress"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Tuning
// --------------------------------------------------------------------------

// Tuning holds the recognized per-handle open options. The zero value of
// every field means "engine default". Settings a given engine kind does not
// recognize are rejected by Validate.
type Tuning struct {
	Shards          int         // number of internal shards (hash/fixed kinds)
	CacheSize       int         // block/record cache size hint in bytes (tree/table kinds)
	AutoDefragSteps int         // background compaction hint
	Compression     Compression // per-record value compression
	RecordWidth     int         // maximum record width in bytes (fixed kind only)
}

// DefaultTuning returns the engine defaults (every field zero).
func DefaultTuning() *Tuning {
	return &Tuning{}
}

// Validate rejects settings that are out of range or that the given engine
// kind does not recognize.
func (t *Tuning) Validate(kind Kind) error {
	if t == nil {
		return nil
	}
	if t.Shards < 0 || t.CacheSize < 0 || t.AutoDefragSteps < 0 || t.RecordWidth < 0 {
		return NewError(EInvalid, "tuning values must not be negative")
	}
	if t.Compression > CompressLZ4 {
		return NewError(EInvalid, "unrecognized compression option")
	}
	if t.RecordWidth > 0 && kind != KindFixed {
		return NewError(EInvalid, "record width applies to the fixed kind only")
	}
	if t.Shards > 0 && (kind == KindTree || kind == KindTable) {
		return NewError(EInvalid, "shard count applies to hash and fixed kinds only")
	}
	return nil
}

// --------------------------------------------------------------------------
// Stat
// --------------------------------------------------------------------------

// Stat reports introspection data for an open engine. All size figures are
// estimates; a precise calculation can be expensive.
type Stat struct {
	Path      string `json:"path"`
	Kind      Kind   `json:"kind"`
	Records   uint64 `json:"records"`
	SizeBytes int64  `json:"size_bytes"`
	// Metadata carries engine-specific details (shard distribution,
	// value size histogram, ...).
	Metadata any `json:"metadata"`
}

// --------------------------------------------------------------------------
// Engine Interfaces
// --------------------------------------------------------------------------

// Iterator provides sequential access over the records of an engine.
// Iterators must be closed after use. A freshly created iterator is
// unpositioned; the first Next (or Prev on ordered engines) positions it.
type Iterator interface {
	// Next advances to the next record, or to the first record when the
	// iterator is unpositioned. Returns false when exhausted.
	Next() bool
	// Prev steps back to the previous record, or to the last record when
	// the iterator is unpositioned. Only ordered engines support it;
	// others always return false.
	Prev() bool
	// Key returns a copy of the current record key.
	Key() []byte
	// Value returns a copy of the current record value.
	Value() ([]byte, error)
	// Valid reports whether the iterator is positioned at a record.
	Valid() bool
	Close() error
}

// Engine is the primitive byte-oriented contract of a native storage
// engine. All keys and values at this boundary are raw byte strings; no
// type information crosses it.
//
// Engines are constructed per open call and hold no process-wide state, so
// there is no library-level init/shutdown to perform.
//
// Every failure is reported as a *Error carrying an ECode and message.
type Engine interface {
	// Path returns the storage path the engine was opened on.
	Path() string

	// Kind returns the engine variant.
	Kind() Kind

	// Put stores a record, silently overwriting an existing key.
	Put(key, value []byte) error

	// PutKeep stores a record only if the key is absent; an existing key
	// fails with EKeep.
	PutKeep(key, value []byte) error

	// PutCat concatenates value at the end of an existing record, or
	// creates the record if the key is absent.
	PutCat(key, value []byte) error

	// Get retrieves the value for a key, or fails with ENoRec.
	Get(key []byte) ([]byte, error)

	// Has reports whether a key exists.
	Has(key []byte) (bool, error)

	// Delete removes a record, or fails with ENoRec if the key is absent.
	Delete(key []byte) error

	// Count returns the number of records.
	Count() uint64

	// Size returns the estimated storage size in bytes.
	Size() int64

	// Iterator traverses all records. Ordering is engine-specific: ordered
	// engines ascend in byte order of keys, the fixed engine ascends in
	// record id order, the hash engine order is unspecified.
	Iterator() (Iterator, error)

	// Begin starts a transaction. Engines support at most one active
	// transaction per handle; a second Begin fails with EInvalid.
	Begin() error

	// Commit makes all writes since Begin durable.
	Commit() error

	// Abort discards all writes since Begin.
	Abort() error

	// Vanish removes all records.
	Vanish() error

	// Sync flushes updated contents to the storage device.
	Sync() error

	// Copy writes a consistent copy of the database to a new path.
	Copy(path string) error

	// Stat returns introspection data.
	Stat() Stat

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR.
	SupportsFeature(feature Feature) bool

	// Close releases the engine. Double close fails with EClose.
	Close() error
}

// OrderedEngine extends Engine with the cursor positioning primitives of
// engines that preserve key order.
type OrderedEngine interface {
	Engine

	// SeekFirst returns an iterator positioned at the minimum key.
	SeekFirst() (Iterator, error)

	// SeekLast returns an iterator positioned at the maximum key.
	SeekLast() (Iterator, error)

	// SeekNear returns an iterator positioned at the first key >= key.
	// The iterator may be exhausted if no such key exists.
	SeekNear(key []byte) (Iterator, error)

	// RangeIterator returns an iterator bounded to [start, end). A nil
	// bound means unbounded on that side.
	RangeIterator(start, end []byte) (Iterator, error)
}
