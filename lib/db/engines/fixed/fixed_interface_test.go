package fixed

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pombreda/go-tcdb/lib/db"
	dbtesting "github.com/pombreda/go-tcdb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "Fixed", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, omode, nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "Fixed", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, omode, nil)
	})
}

func id(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func TestKeyShape(t *testing.T) {
	engine, err := Open(t.TempDir()+"/fixed.tcb", db.OWriter|db.OCreate, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	for _, badKey := range [][]byte{nil, []byte("k"), []byte("too-long-key")} {
		if err := engine.Put(badKey, []byte("v")); db.CodeOf(err) != db.EInvalid {
			t.Errorf("Expected EInvalid for key of length %d, got %v", len(badKey), err)
		}
		if _, err := engine.Get(badKey); db.CodeOf(err) != db.EInvalid {
			t.Errorf("Expected EInvalid for get with key of length %d, got %v", len(badKey), err)
		}
	}

	if err := engine.Put(id(42), []byte("v")); err != nil {
		t.Errorf("Expected 8-byte key to be accepted, got %v", err)
	}
}

func TestRecordWidth(t *testing.T) {
	engine, err := Open(t.TempDir()+"/fixed.tcb", db.OWriter|db.OCreate, &db.Tuning{RecordWidth: 8})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	if err := engine.Put(id(1), []byte("12345678")); err != nil {
		t.Errorf("Expected value at width limit to be accepted, got %v", err)
	}
	if err := engine.Put(id(2), []byte("123456789")); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid for value beyond width, got %v", err)
	}

	// concatenation truncates at the width boundary instead of failing
	if err := engine.PutCat(id(1), []byte("overflow")); err != nil {
		t.Fatalf("PutCat failed: %v", err)
	}
	v, err := engine.Get(id(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(v) != 8 {
		t.Errorf("Expected concatenated record truncated to 8 bytes, got %d", len(v))
	}
}

func TestCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()

	header := func() []byte {
		buf := []byte(magicNum)
		buf = append(buf, fixedVersion)
		buf = binary.LittleEndian.AppendUint32(buf, 16) // width
		return buf
	}

	// a header claiming more records than the file could hold
	countPath := filepath.Join(dir, "count.tcf")
	buf := binary.LittleEndian.AppendUint64(header(), 1<<40)
	if err := os.WriteFile(countPath, buf, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Open(countPath, db.OReader, nil); db.CodeOf(err) != db.ERead {
		t.Errorf("Expected ERead for oversized record count, got %v", err)
	}

	// a record whose value length exceeds the file size
	lenPath := filepath.Join(dir, "len.tcf")
	buf = binary.LittleEndian.AppendUint64(header(), 1)
	buf = binary.LittleEndian.AppendUint64(buf, 7) // record id
	buf = binary.LittleEndian.AppendUint32(buf, 1<<31)
	if err := os.WriteFile(lenPath, buf, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Open(lenPath, db.OReader, nil); db.CodeOf(err) != db.ERead {
		t.Errorf("Expected ERead for oversized value length, got %v", err)
	}
}

func TestWidthPersistedAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/fixed.tcb"

	engine, err := Open(path, db.OWriter|db.OCreate, &db.Tuning{RecordWidth: 16})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := engine.Put(id(1), []byte("sixteen-bytes-ok")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// reopening without a width hint keeps the persisted width
	reopened, err := Open(path, db.OWriter, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if err := reopened.Put(id(2), []byte("sixteen-bytes-ok")); err != nil {
		t.Errorf("Expected persisted width 16 after reopen, got %v", err)
	}
	if err := reopened.Put(id(3), make([]byte, 17)); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid beyond persisted width, got %v", err)
	}
}
