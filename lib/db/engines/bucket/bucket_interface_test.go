package bucket

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pombreda/go-tcdb/lib/db"
	dbtesting "github.com/pombreda/go-tcdb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "Bucket", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, omode, nil)
	})
}

func TestCompressed(t *testing.T) {
	for _, comp := range []db.Compression{db.CompressDeflate, db.CompressLZ4} {
		dbtesting.RunEngineTests(t, "Bucket/"+comp.String(), func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
			return Open(path, omode, &db.Tuning{Compression: comp})
		})
	}
}

func TestCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()

	header := func() []byte {
		buf := []byte(magicNum)
		buf = append(buf, bucketVersion)
		buf = binary.LittleEndian.AppendUint64(buf, 42) // seed
		return buf
	}

	// a header claiming more records than the file could hold
	countPath := filepath.Join(dir, "count.tcb")
	buf := binary.LittleEndian.AppendUint64(header(), 1<<40)
	if err := os.WriteFile(countPath, buf, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Open(countPath, db.OReader, nil); db.CodeOf(err) != db.ERead {
		t.Errorf("Expected ERead for oversized record count, got %v", err)
	}

	// a record whose value length exceeds the file size
	lenPath := filepath.Join(dir, "len.tcb")
	buf = binary.LittleEndian.AppendUint64(header(), 1)
	buf = binary.LittleEndian.AppendUint32(buf, 3)
	buf = append(buf, "key"...)
	buf = binary.LittleEndian.AppendUint32(buf, 1<<31)
	if err := os.WriteFile(lenPath, buf, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Open(lenPath, db.OReader, nil); db.CodeOf(err) != db.ERead {
		t.Errorf("Expected ERead for oversized value length, got %v", err)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "Bucket", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, omode, nil)
	})
}
