package ordered

import (
	"testing"

	"github.com/pombreda/go-tcdb/lib/db"
	dbtesting "github.com/pombreda/go-tcdb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "Tree", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, db.KindTree, omode, nil)
	})

	dbtesting.RunEngineTests(t, "Table", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, db.KindTable, omode, nil)
	})
}

func TestCompressed(t *testing.T) {
	for _, comp := range []db.Compression{db.CompressDeflate, db.CompressLZ4} {
		dbtesting.RunEngineTests(t, "Tree/"+comp.String(), func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
			return Open(path, db.KindTree, omode, &db.Tuning{Compression: comp})
		})
	}
}

func TestKindValidation(t *testing.T) {
	if _, err := Open(t.TempDir()+"/db", db.KindHash, db.OWriter|db.OCreate, nil); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid for hash kind, got %v", err)
	}
	if _, err := Open(t.TempDir()+"/db", db.KindFixed, db.OWriter|db.OCreate, nil); db.CodeOf(err) != db.EInvalid {
		t.Errorf("Expected EInvalid for fixed kind, got %v", err)
	}
}

func TestMissingDatabase(t *testing.T) {
	_, err := Open(t.TempDir()+"/missing", db.KindTree, db.OWriter, nil)
	if db.CodeOf(err) != db.ENoFile {
		t.Errorf("Expected ENoFile without OCreate, got %v", err)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "Tree", func(tb testing.TB, path string, omode db.OMode) (db.Engine, error) {
		return Open(path, db.KindTree, omode, nil)
	})
}
