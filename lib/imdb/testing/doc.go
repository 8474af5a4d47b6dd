// Package testing provides a conformance suite and benchmarks that every
// configuration of the object database has to pass: in memory, durable and
// backed by another instance.
//
// The suite checks the allocator against fixed layouts (free slot counts,
// split and recycle counters), cursor and forall semantics, unique and
// append-only classes and the handling of stale handles and row ids.
//
// Example usage:
//
//	factory := func(tb testing.TB, def imdb.DBDef) *imdb.DB {
//		db, err := imdb.Open(def)
//		if err != nil {
//			tb.Fatal(err)
//		}
//		return db
//	}
//
//	imdbtesting.RunIMDBTests(t, "Memory", factory)
//	imdbtesting.RunIMDBBenchmarks(b, "Memory", factory)
package testing
