package imdb_test

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/imdb/lib/imdb"
	imdbtesting "github.com/ValentinKolb/imdb/lib/imdb/testing"
)

func memoryFactory(tb testing.TB, def imdb.DBDef) *imdb.DB {
	db, err := imdb.Open(def)
	if err != nil {
		tb.Fatalf("Open failed: %v", err)
	}
	return db
}

func fileFactory(tb testing.TB, def imdb.DBDef) *imdb.DB {
	def.Durable = true
	def.Path = filepath.Join(tb.TempDir(), "test.imdb")
	def.CRC = imdb.CRCReadWrite
	db, err := imdb.Open(def)
	if err != nil {
		tb.Fatalf("Open(%s) failed: %v", def.Path, err)
	}
	return db
}

func backedFactory(tb testing.TB, def imdb.DBDef) *imdb.DB {
	backing, err := imdb.Open(imdb.DBDef{BlockSize: 32768})
	if err != nil {
		tb.Fatalf("Open of the backing database failed: %v", err)
	}
	tb.Cleanup(func() {
		_ = backing.Done()
	})
	db, err := imdb.Open(def, imdb.WithBacking(backing))
	if err != nil {
		tb.Fatalf("Open failed: %v", err)
	}
	return db
}

func TestIMDB(t *testing.T) {
	imdbtesting.RunIMDBTests(t, "Memory", memoryFactory)
	imdbtesting.RunIMDBTests(t, "File", fileFactory)
	imdbtesting.RunIMDBTests(t, "Backed", backedFactory)
}

func BenchmarkIMDB(b *testing.B) {
	imdbtesting.RunIMDBBenchmarks(b, "Memory", memoryFactory)
	imdbtesting.RunIMDBBenchmarks(b, "File", fileFactory)
}
