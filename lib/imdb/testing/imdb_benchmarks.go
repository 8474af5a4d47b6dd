package testing

import (
	"testing"

	"github.com/ValentinKolb/imdb/lib/imdb"
)

// RunIMDBBenchmarks runs all benchmarks for a database configuration
func RunIMDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("InsertFixed", func(b *testing.B) {
			benchmarkInsert(b, factory, imdb.ClassDef{Name: "fixed", ObjSize: 64})
		})

		b.Run("InsertVariable", func(b *testing.B) {
			benchmarkInsert(b, factory, imdb.ClassDef{Name: "var", Variable: true})
		})

		b.Run("InsertRecycle", func(b *testing.B) {
			benchmarkInsert(b, factory, imdb.ClassDef{Name: "ring", Variable: true, Recycle: true, PagesMax: 4})
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory)
		})

		b.Run("InsertDelete", func(b *testing.B) {
			benchmarkInsertDelete(b, factory)
		})

		b.Run("Scan", func(b *testing.B) {
			benchmarkScan(b, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for inserts into a class that never runs full
func benchmarkInsert(b *testing.B, factory DBFactory, def imdb.ClassDef) {
	db := open(b, factory)
	h := createClass(b, db, def)
	payload := make([]byte, 48)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.InsertData(h, payload); err != nil {
			b.Fatalf("InsertData failed: %v", err)
		}
	}
}

// Benchmark for lookups by rowid
func benchmarkGet(b *testing.B, factory DBFactory) {
	db := open(b, factory)
	h := createClass(b, db, imdb.ClassDef{Name: "fixed", ObjSize: 64})

	ids := make([]imdb.RowID, 1024)
	for i := range ids {
		obj, err := db.InsertData(h, tagged(i, 64))
		if err != nil {
			b.Fatalf("InsertData failed: %v", err)
		}
		ids[i] = obj.ID
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.Get(h, ids[i%len(ids)]); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

// Benchmark for the free list: every insert reuses the slot freed before
func benchmarkInsertDelete(b *testing.B, factory DBFactory) {
	db := open(b, factory)
	h := createClass(b, db, imdb.ClassDef{Name: "var", Variable: true})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		obj, err := db.Insert(h, 16+i%512)
		if err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
		if err := db.Delete(h, obj.ID); err != nil {
			b.Fatalf("Delete failed: %v", err)
		}
	}
}

// Benchmark for cursor scans over a class of 4096 objects
func benchmarkScan(b *testing.B, factory DBFactory) {
	db := open(b, factory)
	h := createClass(b, db, imdb.ClassDef{Name: "var", Variable: true})
	for i := 0; i < 4096; i++ {
		if _, err := db.InsertData(h, tagged(i, 32)); err != nil {
			b.Fatalf("InsertData failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cur, err := db.Query(h, imdb.PathNone)
		if err != nil {
			b.Fatalf("Query failed: %v", err)
		}
		total := 0
		for {
			objs, err := db.Fetch(cur, 256)
			total += len(objs)
			if err != nil {
				break
			}
		}
		if total != 4096 {
			b.Fatalf("Expected 4096 objects, got %d", total)
		}
		_ = db.Close(cur)
	}
}
