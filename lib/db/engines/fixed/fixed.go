package fixed

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pombreda/go-tcdb/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("fixed")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "TCGOFIX\x00" // File format identifier
	fixedVersion = 1             // Snapshot format version

	// defaultWidth caps record values when no RecordWidth tuning is given.
	defaultWidth = 255

	// keyLen is the only key length the engine accepts: a big-endian
	// uint64 record id.
	keyLen = 8
)

// --------------------------------------------------------------------------
// Core engine structure
// --------------------------------------------------------------------------

// fixedImpl implements the array-kind engine: records addressed by a
// uint64 id, each value capped at a fixed width. Same snapshot persistence
// and undo-log transaction idiom as the hash engine; iteration ascends in
// record id order.
type fixedImpl struct {
	path  string
	omode db.OMode
	width int

	data  *xsync.MapOf[uint64, []byte]
	count atomic.Int64
	bytes atomic.Int64

	closed atomic.Bool

	txMu     sync.Mutex
	txActive bool
	undo     map[uint64]undoEntry
}

type undoEntry struct {
	existed bool
	value   []byte
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Open connects a fixed-length engine to a snapshot file. Keys at this
// boundary must be exactly 8 bytes (big-endian record id); values longer
// than the configured record width are rejected with EInvalid.
func Open(path string, omode db.OMode, tuning *db.Tuning) (db.Engine, error) {
	if tuning == nil {
		tuning = db.DefaultTuning()
	}
	if err := tuning.Validate(db.KindFixed); err != nil {
		return nil, err
	}
	if tuning.Compression != db.CompressNone {
		return nil, db.NewError(db.EInvalid, "fixed engine does not support record compression")
	}

	width := tuning.RecordWidth
	if width <= 0 {
		width = defaultWidth
	}

	e := &fixedImpl{
		path:  path,
		omode: omode,
		width: width,
		data:  xsync.NewMapOf[uint64, []byte](),
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	switch {
	case exists && omode&db.OTrunc != 0:
		// writer truncating: start empty
	case exists:
		if err := e.load(); err != nil {
			return nil, err
		}
	case omode&db.OCreate != 0 && omode&db.OWriter != 0:
		if err := e.save(path); err != nil {
			return nil, err
		}
	default:
		return nil, db.NewError(db.ENoFile, fmt.Sprintf("no such database file: %s", path))
	}

	log.Debugf("opened fixed engine at %s (width=%d)", path, width)
	return e, nil
}

// --------------------------------------------------------------------------
// Guards
// --------------------------------------------------------------------------

func (e *fixedImpl) readable() error {
	if e.closed.Load() {
		return db.NewError(db.EClose, "engine is closed")
	}
	return nil
}

func (e *fixedImpl) writable() error {
	if err := e.readable(); err != nil {
		return err
	}
	if e.omode&db.OWriter == 0 {
		return db.NewError(db.ENoPerm, "engine opened read-only")
	}
	return nil
}

// recordID validates the engine-boundary key shape.
func recordID(key []byte) (uint64, error) {
	if len(key) != keyLen {
		return 0, db.NewError(db.EInvalid, "fixed engine keys must be 8-byte record ids")
	}
	return binary.BigEndian.Uint64(key), nil
}

func (e *fixedImpl) checkWidth(value []byte) error {
	if len(value) > e.width {
		return db.NewError(db.EInvalid,
			fmt.Sprintf("record of %d bytes exceeds fixed width %d", len(value), e.width))
	}
	return nil
}

func (e *fixedImpl) recordUndo(id uint64, prev []byte, existed bool) {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if !e.txActive {
		return
	}
	if _, seen := e.undo[id]; seen {
		return
	}
	e.undo[id] = undoEntry{existed: existed, value: prev}
}

// --------------------------------------------------------------------------
// Core Engine Interface Methods - Write Operations
// --------------------------------------------------------------------------

func (e *fixedImpl) Put(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	id, err := recordID(key)
	if err != nil {
		return err
	}
	if err := e.checkWidth(value); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	prev, loaded := e.data.LoadAndStore(id, stored)
	e.recordUndo(id, prev, loaded)
	if loaded {
		e.bytes.Add(int64(len(stored)) - int64(len(prev)))
	} else {
		e.count.Add(1)
		e.bytes.Add(int64(keyLen + len(stored)))
	}
	return nil
}

func (e *fixedImpl) PutKeep(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	id, err := recordID(key)
	if err != nil {
		return err
	}
	if err := e.checkWidth(value); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	if _, loaded := e.data.LoadOrStore(id, stored); loaded {
		return db.NewError(db.EKeep, "existing record kept")
	}
	e.recordUndo(id, nil, false)
	e.count.Add(1)
	e.bytes.Add(int64(keyLen + len(stored)))
	return nil
}

func (e *fixedImpl) PutCat(key, value []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	id, err := recordID(key)
	if err != nil {
		return err
	}
	var (
		created bool
		delta   int64
		prev    []byte
		existed bool
	)
	e.data.Compute(id, func(old []byte, loaded bool) ([]byte, bool) {
		prev, existed = old, loaded
		joined := make([]byte, 0, len(old)+len(value))
		joined = append(joined, old...)
		joined = append(joined, value...)
		if len(joined) > e.width {
			// the concatenated record keeps only what the width admits
			joined = joined[:e.width]
		}
		if loaded {
			delta = int64(len(joined)) - int64(len(old))
		} else {
			created = true
			delta = int64(keyLen + len(joined))
		}
		return joined, false
	})
	e.recordUndo(id, prev, existed)
	if created {
		e.count.Add(1)
	}
	e.bytes.Add(delta)
	return nil
}

func (e *fixedImpl) Delete(key []byte) error {
	if err := e.writable(); err != nil {
		return err
	}
	id, err := recordID(key)
	if err != nil {
		return err
	}
	prev, loaded := e.data.LoadAndDelete(id)
	if !loaded {
		return db.NewError(db.ENoRec, "no record found")
	}
	e.recordUndo(id, prev, true)
	e.count.Add(-1)
	e.bytes.Add(-int64(keyLen + len(prev)))
	return nil
}

// --------------------------------------------------------------------------
// Core Engine Interface Methods - Read Operations
// --------------------------------------------------------------------------

func (e *fixedImpl) Get(key []byte) ([]byte, error) {
	if err := e.readable(); err != nil {
		return nil, err
	}
	id, err := recordID(key)
	if err != nil {
		return nil, err
	}
	stored, ok := e.data.Load(id)
	if !ok {
		return nil, db.NewError(db.ENoRec, "no record found")
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

func (e *fixedImpl) Has(key []byte) (bool, error) {
	if err := e.readable(); err != nil {
		return false, err
	}
	id, err := recordID(key)
	if err != nil {
		return false, err
	}
	_, ok := e.data.Load(id)
	return ok, nil
}

func (e *fixedImpl) Count() uint64 {
	n := e.count.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func (e *fixedImpl) Size() int64 { return e.bytes.Load() }

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Iterator traverses records in ascending record id order over a
// point-in-time id snapshot.
func (e *fixedImpl) Iterator() (db.Iterator, error) {
	if err := e.readable(); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, e.count.Load())
	e.data.Range(func(id uint64, _ []byte) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &fixedIter{engine: e, ids: ids, pos: -1}, nil
}

type fixedIter struct {
	engine *fixedImpl
	ids    []uint64
	pos    int
	curr   uint64
	valid  bool
}

func (it *fixedIter) Next() bool {
	for it.pos+1 < len(it.ids) {
		it.pos++
		id := it.ids[it.pos]
		if _, ok := it.engine.data.Load(id); ok {
			it.curr, it.valid = id, true
			return true
		}
	}
	it.valid = false
	return false
}

func (it *fixedIter) Prev() bool { return false }

func (it *fixedIter) Key() []byte {
	if !it.valid {
		return nil
	}
	key := make([]byte, keyLen)
	binary.BigEndian.PutUint64(key, it.curr)
	return key
}

func (it *fixedIter) Value() ([]byte, error) {
	if !it.valid {
		return nil, db.NewError(db.EInvalid, "iterator is not positioned")
	}
	return it.engine.Get(it.Key())
}

func (it *fixedIter) Valid() bool  { return it.valid }
func (it *fixedIter) Close() error { it.valid = false; it.ids = nil; return nil }

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (e *fixedImpl) Begin() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.txActive {
		return db.NewError(db.EInvalid, "transaction already active")
	}
	e.txActive = true
	e.undo = make(map[uint64]undoEntry)
	return nil
}

func (e *fixedImpl) Commit() error {
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

func (e *fixedImpl) Abort() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if !e.txActive {
		return db.NewError(db.EInvalid, "no active transaction")
	}
	for id, u := range e.undo {
		if u.existed {
			prev, loaded := e.data.LoadAndStore(id, u.value)
			if loaded {
				e.bytes.Add(int64(len(u.value)) - int64(len(prev)))
			} else {
				e.count.Add(1)
				e.bytes.Add(int64(keyLen + len(u.value)))
			}
		} else {
			if prev, loaded := e.data.LoadAndDelete(id); loaded {
				e.count.Add(-1)
				e.bytes.Add(-int64(keyLen + len(prev)))
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

func (e *fixedImpl) Vanish() error {
	if err := e.writable(); err != nil {
		return err
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	if e.txActive {
		return db.NewError(db.EInvalid, "vanish inside a transaction")
	}
	e.data = xsync.NewMapOf[uint64, []byte]()
	e.count.Store(0)
	e.bytes.Store(0)
	return nil
}

func (e *fixedImpl) Sync() error {
	if err := e.writable(); err != nil {
		return err
	}
	return e.save(e.path)
}

func (e *fixedImpl) Copy(path string) error {
	if err := e.readable(); err != nil {
		return err
	}
	return e.save(path)
}

func (e *fixedImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return db.NewError(db.EClose, "engine already closed")
	}
	if e.omode&db.OWriter != 0 {
		if err := e.save(e.path); err != nil {
			return err
		}
	}
	log.Debugf("closed fixed engine at %s", e.path)
	return nil
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

func (e *fixedImpl) Path() string  { return e.path }
func (e *fixedImpl) Kind() db.Kind { return db.KindFixed }

func (e *fixedImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeaturePut |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureIterate |
		db.FeatureTx |
		db.FeatureFixedWidth
	return supported&feature == feature
}

func (e *fixedImpl) Stat() db.Stat {
	meta := &struct {
		RecordWidth int `json:"record_width"`
	}{
		RecordWidth: e.width,
	}
	return db.Stat{
		Path:      e.path,
		Kind:      db.KindFixed,
		Records:   e.Count(),
		SizeBytes: e.Size(),
		Metadata:  meta,
	}
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

func (e *fixedImpl) save(path string) error {
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

func (e *fixedImpl) writeSnapshot(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1<<20)

	type record struct {
		id    uint64
		value []byte
	}
	var records []record
	e.data.Range(func(id uint64, v []byte) bool {
		vc := make([]byte, len(v))
		copy(vc, v)
		records = append(records, record{id: id, value: vc})
		return true
	})
	sort.Slice(records, func(i, j int) bool { return records[i].id < records[j].id })

	if _, err := bw.WriteString(magicNum); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(fixedVersion)); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(e.width)); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(records))); err != nil {
		return db.WrapError(db.EWrite, "snapshot header failed", err)
	}

	for _, rec := range records {
		if err := binary.Write(bw, binary.LittleEndian, rec.id); err != nil {
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

func (e *fixedImpl) load() error {
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
	if int(version) != fixedVersion {
		return db.NewError(db.ERead, fmt.Sprintf("unsupported snapshot version: %d", version))
	}

	var width uint32
	if err := binary.Read(br, binary.LittleEndian, &width); err != nil {
		return db.WrapError(db.ERead, "snapshot header failed", err)
	}
	// the persisted width wins over the tuning hint on reopen
	if width > 0 {
		e.width = int(width)
	}

	var total uint64
	if err := binary.Read(br, binary.LittleEndian, &total); err != nil {
		return db.WrapError(db.ERead, "snapshot header failed", err)
	}
	// every record carries at least its id and length fields, so counts or
	// lengths beyond the file size mark a corrupt snapshot; reject them
	// before allocating
	if total > uint64(limit) {
		return db.NewError(db.ERead, "corrupt snapshot: record count exceeds file size")
	}

	for i := uint64(0); i < total; i++ {
		var id uint64
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
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
		e.data.Store(id, value)
		e.count.Add(1)
		e.bytes.Add(int64(keyLen + len(value)))
	}

	return nil
}
