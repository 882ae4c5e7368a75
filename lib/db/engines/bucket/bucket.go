package bucket

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pombreda/go-tcdb/lib/db"
	"github.com/pombreda/go-tcdb/lib/db/engines/bucket/internal"
	"github.com/pombreda/go-tcdb/lib/db/util"
)

var log = logger.GetLogger("bucket")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for engine behavior and structure
const (
	magicNum      = "TCGOBKT\x00" // File format identifier
	bucketVersion = 1             // Snapshot format version
)

// --------------------------------------------------------------------------
// Core engine structure
// --------------------------------------------------------------------------

// bucketImpl implements the hash-kind engine: a sharded concurrent map with
// snapshot-file persistence. Records live in memory while the handle is
// open; the snapshot is written on Sync, Close and (under OTSync) after
// every transaction commit.
type bucketImpl struct {
	path   string
	omode  db.OMode
	comp   db.Compression
	seed   uint64            // seed for shard routing
	shards []*internal.Shard // partitions of the key space

	count atomic.Int64 // live record count
	bytes atomic.Int64 // approximate stored payload bytes

	closed atomic.Bool

	// transaction state; guarded by txMu
	txMu     sync.Mutex
	txActive bool
	undo     map[string]undoEntry
}

// undoEntry captures the prior state of a key the first time a transaction
// touches it. The value holds the stored (possibly compressed) bytes.
type undoEntry struct {
	existed bool
	value   []byte
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Open connects a hash engine to a snapshot file. Without OCreate, a
// missing path fails with ENoFile; OTrunc starts from an empty database.
//
// Thread-safety: the returned engine is safe for concurrent point
// operations, but transactions assume a single writer (the view layer
// enforces this).
func Open(path string, omode db.OMode, tuning *db.Tuning) (db.Engine, error) {
	if tuning == nil {
		tuning = db.DefaultTuning()
	}
	if err := tuning.Validate(db.KindHash); err != nil {
		return nil, err
	}

	numShards := tuning.Shards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	e := &bucketImpl{
		path:   path,
		omode:  omode,
		comp:   tuning.Compression,
		seed:   util.GenerateSeed(),
		shards: shards,
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	switch {
	case exists && omode&db.OTrunc != 0:
		// writer truncating: start empty, snapshot replaces the file on close
	case exists:
		if err := e.load(); err != nil {
			return nil, err
		}
	case omode&db.OCreate != 0 && omode&db.OWriter != 0:
		// writer creating: persist an empty snapshot so the path exists
		if err := e.save(path); err != nil {
			return nil, err
		}
	default:
		return nil, db.NewError(db.ENoFile, fmt.Sprintf("no such database file: %s", path))
	}

	log.Debugf("opened hash engine at %s (%d shards, compression=%s)", path, numShards, e.comp)
	return e, nil
}

// shardFor routes a key to its shard via seeded xxh3 hashing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *bucketImpl) shardFor(key []byte) *internal.Shard {
	return internal.GetShard(util.HashBytes(key, e.seed), e.shards)
}

// --------------------------------------------------------------------------
// Guards
// --------------------------------------------------------------------------

func (e *bucketImpl) readable() error {
	if e.closed.Load() {
		return db.NewError(db.EClose, "engine is closed")
	}
	return nil
}

func (e *bucketImpl) writable() error {
	if err := e.readable(); err != nil {
		return err
	}
	if e.omode&db.OWriter == 0 {
		return db.NewError(db.ENoPerm, "engine opened read-only")
	}
	return nil
}

// recordUndo captures the prior state of a key once per transaction.
// Callers must hold txMu or be on the single-writer path.
func (e *bucketImpl) recordUndo(key string, prev []byte, existed bool) {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if !e.txActive {
		return
	}
	if _, seen := e.undo[key]; seen {
		return
	}
	e.undo[key] = undoEntry{existed: existed, value: prev}
}

// --------------------------------------------------------------------------
// Core Engine Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put stores a record, silently overwriting an existing key.
func (e *bucketImpl) Put(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	stored, err := e.comp.Compress(value)
	if err != nil {
		return err
	}
	k := string(key)
	prev, loaded := e.shardFor(key).Data.LoadAndStore(k, stored)
	e.recordUndo(k, prev, loaded)
	if loaded {
		e.bytes.Add(int64(len(stored)) - int64(len(prev)))
	} else {
		e.count.Add(1)
		e.bytes.Add(int64(len(key) + len(stored)))
	}
	return nil
}

// PutKeep stores a new record; an existing key is kept and EKeep returned.
func (e *bucketImpl) PutKeep(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	stored, err := e.comp.Compress(value)
	if err != nil {
		return err
	}
	k := string(key)
	if _, loaded := e.shardFor(key).Data.LoadOrStore(k, stored); loaded {
		return db.NewError(db.EKeep, "existing record kept")
	}
	e.recordUndo(k, nil, false)
	e.count.Add(1)
	e.bytes.Add(int64(len(key) + len(stored)))
	return nil
}

// PutCat concatenates value at the end of an existing record, creating the
// record if the key is absent.
func (e *bucketImpl) PutCat(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	k := string(key)
	var (
		opErr   error
		created bool
		delta   int64
		prev    []byte
		existed bool
	)
	e.shardFor(key).Data.Compute(k, func(old []byte, loaded bool) ([]byte, bool) {
		prev, existed = old, loaded
		plain := []byte(nil)
		if loaded {
			plain, opErr = e.comp.Decompress(old)
			if opErr != nil {
				return old, false
			}
		}
		joined := make([]byte, 0, len(plain)+len(value))
		joined = append(joined, plain...)
		joined = append(joined, value...)
		stored, err := e.comp.Compress(joined)
		if err != nil {
			opErr = err
			return old, false
		}
		if loaded {
			delta = int64(len(stored)) - int64(len(old))
		} else {
			created = true
			delta = int64(len(key) + len(stored))
		}
		return stored, false
	})
	if opErr != nil {
		return opErr
	}
	e.recordUndo(k, prev, existed)
	if created {
		e.count.Add(1)
	}
	e.bytes.Add(delta)
	return nil
}

// Delete removes a record, or fails with ENoRec if the key is absent.
func (e *bucketImpl) Delete(key []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	k := string(key)
	prev, loaded := e.shardFor(key).Data.LoadAndDelete(k)
	if !loaded {
		return db.NewError(db.ENoRec, "no record found")
	}
	e.recordUndo(k, prev, true)
	e.count.Add(-1)
	e.bytes.Add(-int64(len(key) + len(prev)))
	return nil
}

// --------------------------------------------------------------------------
// Core Engine Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the value for a key, or fails with ENoRec.
// The returned value is a copy and safe to modify.
func (e *bucketImpl) Get(key []byte) ([]byte, error) {
	if err := e.readable(); err != nil {
		return nil, err
	}
	stored, ok := e.shardFor(key).Data.Load(string(key))
	if !ok {
		return nil, db.NewError(db.ENoRec, "no record found")
	}
	plain, err := e.comp.Decompress(stored)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plain))
	copy(out, plain)
	return out, nil
}

// Has reports whether a key exists.
func (e *bucketImpl) Has(key []byte) (bool, error) {
	if err := e.readable(); err != nil {
		return false, err
	}
	_, ok := e.shardFor(key).Data.Load(string(key))
	return ok, nil
}

// Count returns the number of live records.
func (e *bucketImpl) Count() uint64 {
	n := e.count.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Size returns the approximate stored payload size in bytes.
func (e *bucketImpl) Size() int64 {
	return e.bytes.Load()
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Iterator traverses all records in unspecified (shard/hash) order. The key
// set is snapshotted at creation; records deleted afterwards are skipped,
// so concurrent mutation never corrupts the handle.
func (e *bucketImpl) Iterator() (db.Iterator, error) {
	if err := e.readable(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, e.count.Load())
	for _, shard := range e.shards {
		shard.Data.Range(func(k string, _ []byte) bool {
			keys = append(keys, k)
			return true
		})
	}
	return &bucketIter{engine: e, keys: keys, pos: -1}, nil
}

// bucketIter iterates a point-in-time key snapshot.
type bucketIter struct {
	engine *bucketImpl
	keys   []string
	pos    int
	curr   string
	valid  bool
}

func (it *bucketIter) Next() bool {
	for it.pos+1 < len(it.keys) {
		it.pos++
		k := it.keys[it.pos]
		// skip keys deleted since the snapshot was taken
		if _, ok := it.engine.shardFor([]byte(k)).Data.Load(k); ok {
			it.curr, it.valid = k, true
			return true
		}
	}
	it.valid = false
	return false
}

func (it *bucketIter) Prev() bool { return false }

func (it *bucketIter) Key() []byte {
	if !it.valid {
		return nil
	}
	return []byte(it.curr)
}

func (it *bucketIter) Value() ([]byte, error) {
	if !it.valid {
		return nil, db.NewError(db.EInvalid, "iterator is not positioned")
	}
	return it.engine.Get([]byte(it.curr))
}

func (it *bucketIter) Valid() bool  { return it.valid }
func (it *bucketIter) Close() error { it.valid = false; it.keys = nil; return nil }

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// Begin starts an undo-log transaction. A second Begin fails with EInvalid.
func (e *bucketImpl) Begin() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.txActive {
		return db.NewError(db.EInvalid, "transaction already active")
	}
	e.txActive = true
	e.undo = make(map[string]undoEntry)
	return nil
}

// Commit discards the undo log, making all writes since Begin final.
func (e *bucketImpl) Commit() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	if !e.txActive {
		e.txMu.Unlock()
		return db.NewError(db.EInvalid, "no active transaction")
	}
	e.txActive = false
	e.undo = nil
	e.txMu.Unlock()

	if e.omode&db.OTSync != 0 {
		return e.save(e.path)
	}
	return nil
}

// Abort replays the undo log, restoring every touched key to its prior
// state.
func (e *bucketImpl) Abort() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if !e.txActive {
		return db.NewError(db.EInvalid, "no active transaction")
	}
	for k, u := range e.undo {
		key := []byte(k)
		shard := e.shardFor(key)
		if u.existed {
			prev, loaded := shard.Data.LoadAndStore(k, u.value)
			if loaded {
				e.bytes.Add(int64(len(u.value)) - int64(len(prev)))
			} else {
				e.count.Add(1)
				e.bytes.Add(int64(len(key) + len(u.value)))
			}
		} else {
			if prev, loaded := shard.Data.LoadAndDelete(k); loaded {
				e.count.Add(-1)
				e.bytes.Add(-int64(len(key) + len(prev)))
			}
		}
	}
	e.txActive = false
	e.undo = nil
	return nil
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

// Vanish removes all records. Not permitted inside a transaction.
func (e *bucketImpl) Vanish() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.txActive {
		return db.NewError(db.EInvalid, "vanish inside a transaction")
	}
	for i := range e.shards {
		e.shards[i] = internal.NewShard()
	}
	e.count.Store(0)
	e.bytes.Store(0)
	return nil
}

// Sync writes the snapshot file.
func (e *bucketImpl) Sync() error {
	if err := e.writable(); err != nil {
		return err
	}
	return e.save(e.path)
}

// Copy writes a consistent snapshot of the database to a new path.
func (e *bucketImpl) Copy(path string) error {
	if err := e.readable(); err != nil {
		return err
	}
	return e.save(path)
}

// Close snapshots (writer mode) and releases the engine.
func (e *bucketImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return db.NewError(db.EClose, "engine already closed")
	}
	if e.omode&db.OWriter != 0 {
		if err := e.save(e.path); err != nil {
			return err
		}
	}
	log.Debugf("closed hash engine at %s", e.path)
	return nil
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

func (e *bucketImpl) Path() string  { return e.path }
func (e *bucketImpl) Kind() db.Kind { return db.KindHash }

// SupportsFeature checks if this implementation supports a specific feature
func (e *bucketImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeaturePut |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureIterate |
		db.FeatureTx |
		db.FeatureCompress
	return supported&feature == feature
}

// Stat returns statistics about the engine. Value sizes are sampled, not
// fully scanned.
func (e *bucketImpl) Stat() db.Stat {
	histogram := util.NewSizeHistogram()
	const samplesPerShard = 100

	shardSizes := make([]float64, len(e.shards))
	for i, shard := range e.shards {
		n := 0
		shard.Data.Range(func(_ string, v []byte) bool {
			histogram.AddSample(len(v))
			n++
			return n < samplesPerShard
		})
		shardSizes[i] = float64(shard.Data.Size())
	}

	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		MedianValueSize   int                    `json:"median_value_size"`
		AvgValueSize      int                    `json:"avg_value_size"`
		Compression       string                 `json:"compression"`
	}{
		ShardCount:        len(e.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		MedianValueSize:   histogram.MedianEstimate(),
		AvgValueSize:      histogram.AverageSize(),
		Compression:       e.comp.String(),
	}

	return db.Stat{
		Path:      e.path,
		Kind:      db.KindHash,
		Records:   e.Count(),
		SizeBytes: e.Size(),
		Metadata:  meta,
	}
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// save writes a snapshot to path via a temp file and rename. Stored values
// are persisted as-is, so the compression setting survives reopen.
func (e *bucketImpl) save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return db.WrapError(db.EWrite, "snapshot create failed", err)
	}

	if err := e.writeSnapshot(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return db.WrapError(db.EWrite, "snapshot close failed", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return db.WrapError(db.EWrite, "snapshot rename failed", err)
	}
	return nil
}

func (e *bucketImpl) writeSnapshot(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1<<20)

	type record struct {
		key   string
		value []byte
	}
	var records []record
	for _, shard := range e.shards {
		shard.Data.Range(func(k string, v []byte) bool {
			vc := make([]byte, len(v))
			copy(vc, v)
			records = append(records, record{key: k, value: vc})
			return true
		})
	}

	if _, err := bw.WriteString(magicNum); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(bucketVersion)); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, e.seed); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(records))); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}

	for _, rec := range records {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(rec.key))); err != nil {
			return db.WrapError(db.EWrite, "snapshot record failed", err)
		}
		if _, err := bw.WriteString(rec.key); err != nil {
			return db.WrapError(db.EWrite, "snapshot record failed", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(rec.value))); err != nil {
			return db.WrapError(db.EWrite, "snapshot record failed", err)
		}
		if _, err := bw.Write(rec.value); err != nil {
			return db.WrapError(db.EWrite, "snapshot record failed", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return db.WrapError(db.EWrite, "snapshot flush failed", err)
	}
	return nil
}

// load restores the engine from its snapshot file.
func (e *bucketImpl) load() error {
	f, err := os.Open(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return db.NewError(db.ENoFile, fmt.Sprintf("no such database file: %s", e.path))
		}
		return db.WrapError(db.EOpen, "snapshot open failed", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return db.WrapError(db.EOpen, "snapshot stat failed", err)
	}
	limit := fi.Size()

	br := bufio.NewReaderSize(f, 1<<20)

	magic := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magic); err != nil {
		return db.WrapError(db.ERead, "snapshot header failed", err)
	}
	if string(magic) != magicNum {
		return db.NewError(db.ERead, "invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return db.WrapError(db.ERead, "snapshot header failed", err)
	}
	if int(version) != bucketVersion {
		return db.NewError(db.ERead, fmt.Sprintf("unsupported snapshot version: %d", version))
	}

	if err := binary.Read(br, binary.LittleEndian, &e.seed); err != nil {
		return db.WrapError(db.ERead, "snapshot header failed", err)
	}

	var total uint64
	if err := binary.Read(br, binary.LittleEndian, &total); err != nil {
		return db.WrapError(db.ERead, "snapshot header failed", err)
	}
	// every record carries at least its two length fields, so counts or
	// lengths beyond the file size mark a corrupt snapshot; reject them
	// before allocating
	if total > uint64(limit) {
		return db.NewError(db.ERead, "corrupt snapshot: record count exceeds file size")
	}

	for i := uint64(0); i < total; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return db.WrapError(db.ERead, "snapshot record failed", err)
		}
		if int64(keyLen) > limit {
			return db.NewError(db.ERead, "corrupt snapshot: key length exceeds file size")
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return db.WrapError(db.ERead, "snapshot record failed", err)
		}
		var valLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valLen); err != nil {
			return db.WrapError(db.ERead, "snapshot record failed", err)
		}
		if int64(valLen) > limit {
			return db.NewError(db.ERead, "corrupt snapshot: value length exceeds file size")
		}
		value := make([]byte, valLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return db.WrapError(db.ERead, "snapshot record failed", err)
		}

		e.shardFor(key).Data.Store(string(key), value)
		e.count.Add(1)
		e.bytes.Add(int64(len(key) + len(value)))
	}

	return nil
}
