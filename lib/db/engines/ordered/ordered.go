package ordered

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pombreda/go-tcdb/lib/db"
)

var log = logger.GetLogger("ordered")

// defaultCacheSize is the pebble block cache size used when the tuning
// gives no hint.
const defaultCacheSize = 8 * 1024 * 1024

// --------------------------------------------------------------------------
// Core engine structure
// --------------------------------------------------------------------------

// orderedImpl implements the tree and table kinds on top of a pebble
// key-value store. Keys iterate in ascending byte order; transactions map
// onto indexed pebble batches so reads inside a transaction observe its
// own uncommitted writes.
type orderedImpl struct {
	path  string
	kind  db.Kind
	omode db.OMode
	comp  db.Compression

	pdb    *pebble.DB
	count  atomic.Int64
	closed atomic.Bool

	txMu       sync.Mutex
	batch      *pebble.Batch
	countDelta int64
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Open connects an ordered engine to a pebble directory. The kind must be
// KindTree or KindTable; the two share storage behavior and differ only in
// the record layout the layers above impose.
func Open(path string, kind db.Kind, omode db.OMode, tuning *db.Tuning) (db.Engine, error) {
	if kind != db.KindTree && kind != db.KindTable {
		return nil, db.NewError(db.EInvalid, fmt.Sprintf("ordered engine does not serve kind %s", kind))
	}
	if tuning == nil {
		tuning = db.DefaultTuning()
	}
	if err := tuning.Validate(kind); err != nil {
		return nil, err
	}

	if omode&db.OTrunc != 0 && omode&db.OWriter != 0 {
		if err := os.RemoveAll(path); err != nil {
			return nil, db.WrapError(db.EOpen, "truncate failed", err)
		}
	}

	cacheSize := int64(tuning.CacheSize)
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:    cache,
		ReadOnly: omode&db.OWriter == 0,
	}
	if omode&db.OCreate == 0 {
		opts.ErrorIfNotExists = true
	}
	if tuning.AutoDefragSteps > 0 {
		opts.MaxConcurrentCompactions = func() int { return tuning.AutoDefragSteps }
	}

	pdb, err := pebble.Open(path, opts)
	if err != nil {
		if os.IsNotExist(err) || opts.ErrorIfNotExists {
			if _, statErr := os.Stat(path); statErr != nil {
				return nil, db.WrapError(db.ENoFile, fmt.Sprintf("no such database directory: %s", path), err)
			}
		}
		return nil, db.WrapError(db.EOpen, "pebble open failed", err)
	}

	e := &orderedImpl{
		path:  path,
		kind:  kind,
		omode: omode,
		comp:  tuning.Compression,
		pdb:   pdb,
	}

	// pebble keeps no record count, so establish it with one scan at open
	n, err := e.scanCount()
	if err != nil {
		pdb.Close()
		return nil, err
	}
	e.count.Store(n)

	log.Debugf("opened %s engine at %s (%d records)", kind, path, n)
	return e, nil
}

func (e *orderedImpl) scanCount() (int64, error) {
	iter, err := e.pdb.NewIter(nil)
	if err != nil {
		return 0, db.WrapError(db.ERead, "count scan failed", err)
	}
	defer iter.Close()
	var n int64
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Guards and helpers
// --------------------------------------------------------------------------

func (e *orderedImpl) readable() error {
	if e.closed.Load() {
		return db.NewError(db.EClose, "engine is closed")
	}
	return nil
}

func (e *orderedImpl) writable() error {
	if err := e.readable(); err != nil {
		return err
	}
	if e.omode&db.OWriter == 0 {
		return db.NewError(db.ENoPerm, "engine opened read-only")
	}
	return nil
}

func (e *orderedImpl) writeOpt() *pebble.WriteOptions {
	if e.omode&db.OTSync != 0 {
		return pebble.Sync
	}
	return pebble.NoSync
}

// reader returns the handle point reads and iterators should go through:
// the active batch inside a transaction, the database otherwise. Callers
// must hold txMu.
func (e *orderedImpl) reader() pebble.Reader {
	if e.batch != nil {
		return e.batch
	}
	return e.pdb
}

// setter abstracts the write target over *pebble.DB and *pebble.Batch.
type setter interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

func (e *orderedImpl) writer() setter {
	if e.batch != nil {
		return e.batch
	}
	return e.pdb
}

func readerGet(r pebble.Reader, key []byte) ([]byte, bool, error) {
	value, closer, err := r.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, db.WrapError(db.ERead, "pebble read failed", err)
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, false, db.WrapError(db.ERead, "pebble read failed", err)
	}
	return out, true, nil
}

func (e *orderedImpl) addCount(delta int64) {
	if e.batch != nil {
		e.countDelta += delta
		return
	}
	e.count.Add(delta)
}

// --------------------------------------------------------------------------
// Core Engine Interface Methods - Write Operations
// --------------------------------------------------------------------------

func (e *orderedImpl) Put(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	stored, err := e.comp.Compress(value)
	if err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	_, existed, err := readerGet(e.reader(), key)
	if err != nil {
		return err
	}
	if err := e.writer().Set(key, stored, e.writeOpt()); err != nil {
		return db.WrapError(db.EWrite, "pebble write failed", err)
	}
	if !existed {
		e.addCount(1)
	}
	return nil
}

func (e *orderedImpl) PutKeep(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	stored, err := e.comp.Compress(value)
	if err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	_, existed, err := readerGet(e.reader(), key)
	if err != nil {
		return err
	}
	if existed {
		return db.NewError(db.EKeep, "existing record kept")
	}
	if err := e.writer().Set(key, stored, e.writeOpt()); err != nil {
		return db.WrapError(db.EWrite, "pebble write failed", err)
	}
	e.addCount(1)
	return nil
}

func (e *orderedImpl) PutCat(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	prev, existed, err := readerGet(e.reader(), key)
	if err != nil {
		return err
	}
	var plain []byte
	if existed {
		plain, err = e.comp.Decompress(prev)
		if err != nil {
			return err
		}
	}
	joined := make([]byte, 0, len(plain)+len(value))
	joined = append(joined, plain...)
	joined = append(joined, value...)
	stored, err := e.comp.Compress(joined)
	if err != nil {
		return err
	}
	if err := e.writer().Set(key, stored, e.writeOpt()); err != nil {
		return db.WrapError(db.EWrite, "pebble write failed", err)
	}
	if !existed {
		e.addCount(1)
	}
	return nil
}

func (e *orderedImpl) Delete(key []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	_, existed, err := readerGet(e.reader(), key)
	if err != nil {
		return err
	}
	if !existed {
		return db.NewError(db.ENoRec, "no record found")
	}
	if err := e.writer().Delete(key, e.writeOpt()); err != nil {
		return db.WrapError(db.EWrite, "pebble delete failed", err)
	}
	e.addCount(-1)
	return nil
}

// --------------------------------------------------------------------------
// Core Engine Interface Methods - Read Operations
// --------------------------------------------------------------------------

func (e *orderedImpl) Get(key []byte) ([]byte, error) {
	if err := e.readable(); err != nil {
		return nil, err
	}
	e.txMu.Lock()
	stored, existed, err := readerGet(e.reader(), key)
	e.txMu.Unlock()
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, db.NewError(db.ENoRec, "no record found")
	}
	return e.comp.Decompress(stored)
}

func (e *orderedImpl) Has(key []byte) (bool, error) {
	if err := e.readable(); err != nil {
		return false, err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	_, existed, err := readerGet(e.reader(), key)
	return existed, err
}

func (e *orderedImpl) Count() uint64 {
	e.txMu.Lock()
	n := e.count.Load() + e.countDelta
	e.txMu.Unlock()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func (e *orderedImpl) Size() int64 {
	if e.closed.Load() {
		return 0
	}
	return int64(e.pdb.Metrics().DiskSpaceUsage())
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

func (e *orderedImpl) newIter(opts *pebble.IterOptions) (*orderedIter, error) {
	if err := e.readable(); err != nil {
		return nil, err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	var (
		pi  *pebble.Iterator
		err error
	)
	if e.batch != nil {
		pi, err = e.batch.NewIter(opts)
	} else {
		pi, err = e.pdb.NewIter(opts)
	}
	if err != nil {
		return nil, db.WrapError(db.ERead, "iterator creation failed", err)
	}
	return &orderedIter{engine: e, iter: pi}, nil
}

// Iterator traverses all records in ascending byte order of keys.
func (e *orderedImpl) Iterator() (db.Iterator, error) {
	return e.newIter(nil)
}

type orderedIter struct {
	engine     *orderedImpl
	iter       *pebble.Iterator
	positioned bool
}

func (it *orderedIter) Next() bool {
	if !it.positioned {
		it.positioned = true
		return it.iter.First()
	}
	if !it.iter.Valid() {
		return false
	}
	return it.iter.Next()
}

func (it *orderedIter) Prev() bool {
	if !it.positioned {
		it.positioned = true
		return it.iter.Last()
	}
	if !it.iter.Valid() {
		return false
	}
	return it.iter.Prev()
}

func (it *orderedIter) Key() []byte {
	if !it.iter.Valid() {
		return nil
	}
	key := it.iter.Key()
	out := make([]byte, len(key))
	copy(out, key)
	return out
}

func (it *orderedIter) Value() ([]byte, error) {
	if !it.iter.Valid() {
		return nil, db.NewError(db.EInvalid, "iterator is not positioned")
	}
	stored, err := it.iter.ValueAndErr()
	if err != nil {
		return nil, db.WrapError(db.ERead, "iterator value failed", err)
	}
	return it.engine.comp.Decompress(stored)
}

func (it *orderedIter) Valid() bool { return it.iter.Valid() }

func (it *orderedIter) Close() error {
	if err := it.iter.Close(); err != nil {
		return db.WrapError(db.EClose, "iterator close failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Ordered positioning
// --------------------------------------------------------------------------

// SeekFirst returns an iterator positioned at the minimum key.
func (e *orderedImpl) SeekFirst() (db.Iterator, error) {
	it, err := e.newIter(nil)
	if err != nil {
		return nil, err
	}
	it.positioned = true
	it.iter.First()
	return it, nil
}

// SeekLast returns an iterator positioned at the maximum key.
func (e *orderedImpl) SeekLast() (db.Iterator, error) {
	it, err := e.newIter(nil)
	if err != nil {
		return nil, err
	}
	it.positioned = true
	it.iter.Last()
	return it, nil
}

// SeekNear returns an iterator positioned at the first key >= key.
func (e *orderedImpl) SeekNear(key []byte) (db.Iterator, error) {
	it, err := e.newIter(nil)
	if err != nil {
		return nil, err
	}
	it.positioned = true
	it.iter.SeekGE(key)
	return it, nil
}

// RangeIterator returns an unpositioned iterator bounded to [start, end).
func (e *orderedImpl) RangeIterator(start, end []byte) (db.Iterator, error) {
	return e.newIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (e *orderedImpl) Begin() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.batch != nil {
		return db.NewError(db.EInvalid, "transaction already active")
	}
	e.batch = e.pdb.NewIndexedBatch()
	e.countDelta = 0
	return nil
}

func (e *orderedImpl) Commit() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.batch == nil {
		return db.NewError(db.EInvalid, "no active transaction")
	}
	if err := e.batch.Commit(e.writeOpt()); err != nil {
		e.batch.Close()
		e.batch = nil
		e.countDelta = 0
		return db.WrapError(db.EWrite, "commit failed", err)
	}
	e.count.Add(e.countDelta)
	e.batch = nil
	e.countDelta = 0
	return nil
}

func (e *orderedImpl) Abort() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.batch == nil {
		return db.NewError(db.EInvalid, "no active transaction")
	}
	err := e.batch.Close()
	e.batch = nil
	e.countDelta = 0
	if err != nil {
		return db.WrapError(db.EMisc, "abort failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

func (e *orderedImpl) Vanish() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.batch != nil {
		return db.NewError(db.EInvalid, "vanish inside a transaction")
	}

	iter, err := e.pdb.NewIter(nil)
	if err != nil {
		return db.WrapError(db.ERead, "vanish scan failed", err)
	}
	batch := e.pdb.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			iter.Close()
			batch.Close()
			return db.WrapError(db.EWrite, "vanish failed", err)
		}
	}
	if err := iter.Close(); err != nil {
		batch.Close()
		return db.WrapError(db.ERead, "vanish scan failed", err)
	}
	if err := batch.Commit(e.writeOpt()); err != nil {
		batch.Close()
		return db.WrapError(db.EWrite, "vanish failed", err)
	}
	e.count.Store(0)
	return nil
}

func (e *orderedImpl) Sync() error {
	if err := e.writable(); err != nil {
		return err
	}
	if err := e.pdb.Flush(); err != nil {
		return db.WrapError(db.ESync, "flush failed", err)
	}
	return nil
}

// Copy writes a consistent checkpoint of the database to a new directory.
func (e *orderedImpl) Copy(path string) error {
	if err := e.readable(); err != nil {
		return err
	}
	if err := e.pdb.Checkpoint(path); err != nil {
		return db.WrapError(db.EWrite, "checkpoint failed", err)
	}
	return nil
}

func (e *orderedImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return db.NewError(db.EClose, "engine already closed")
	}
	e.txMu.Lock()
	if e.batch != nil {
		// an open transaction dies with the handle, its writes discarded
		e.batch.Close()
		e.batch = nil
		e.countDelta = 0
	}
	e.txMu.Unlock()
	if err := e.pdb.Close(); err != nil {
		return db.WrapError(db.EClose, "pebble close failed", err)
	}
	log.Debugf("closed %s engine at %s", e.kind, e.path)
	return nil
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

func (e *orderedImpl) Path() string  { return e.path }
func (e *orderedImpl) Kind() db.Kind { return e.kind }

func (e *orderedImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeaturePut |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureIterate |
		db.FeatureTx |
		db.FeatureOrdered |
		db.FeatureCompress
	return supported&feature == feature
}

func (e *orderedImpl) Stat() db.Stat {
	meta := &struct {
		Compression   string `json:"compression"`
		WALBytes      uint64 `json:"wal_bytes"`
		FlushCount    int64  `json:"flush_count"`
		CompactCount  int64  `json:"compact_count"`
		ReadAmplifier int    `json:"read_amplification"`
	}{
		Compression: e.comp.String(),
	}
	if !e.closed.Load() {
		m := e.pdb.Metrics()
		meta.WALBytes = m.WAL.Size
		meta.FlushCount = m.Flush.Count
		meta.CompactCount = m.Compact.Count
		meta.ReadAmplifier = m.ReadAmp()
	}
	return db.Stat{
		Path:      e.path,
		Kind:      e.kind,
		Records:   e.Count(),
		SizeBytes: e.Size(),
		Metadata:  meta,
	}
}
