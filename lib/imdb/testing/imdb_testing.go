package testing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ValentinKolb/imdb/lib/dtlv"
	"github.com/ValentinKolb/imdb/lib/imdb"
)

// DBFactory opens a new, empty database for def. The factory owns the
// configuration that is not part of def, e.g. the file path of a durable
// database.
type DBFactory func(tb testing.TB, def imdb.DBDef) *imdb.DB

// RunIMDBTests runs the conformance suite against a database configuration
func RunIMDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertGet", func(t *testing.T) {
			testInsertGet(t, factory)
		})

		t.Run("FixedLayout", func(t *testing.T) {
			testFixedLayout(t, factory)
		})

		t.Run("DeleteReuse", func(t *testing.T) {
			testDeleteReuse(t, factory)
		})

		t.Run("VariableLayout", func(t *testing.T) {
			testVariableLayout(t, factory)
		})

		t.Run("RecycleFixed", func(t *testing.T) {
			testRecycleFixed(t, factory)
		})

		t.Run("RecycleVariable", func(t *testing.T) {
			testRecycleVariable(t, factory)
		})

		t.Run("FetchBatches", func(t *testing.T) {
			testFetchBatches(t, factory)
		})

		t.Run("QueryPath", func(t *testing.T) {
			testQueryPath(t, factory)
		})

		t.Run("Forall", func(t *testing.T) {
			testForall(t, factory)
		})

		t.Run("Unique", func(t *testing.T) {
			testUnique(t, factory)
		})

		t.Run("AppendOnly", func(t *testing.T) {
			testAppendOnly(t, factory)
		})

		t.Run("InvalidHandles", func(t *testing.T) {
			testInvalidHandles(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(tb testing.TB, factory DBFactory) *imdb.DB {
	db := factory(tb, imdb.DBDef{BlockSize: 4096})
	tb.Cleanup(func() {
		_ = db.Done()
	})
	return db
}

func createClass(tb testing.TB, db *imdb.DB, def imdb.ClassDef) imdb.ClassHandle {
	h, err := db.ClassCreate(def)
	if err != nil {
		tb.Fatalf("ClassCreate(%s) failed: %v", def.Name, err)
	}
	return h
}

func classInfo(tb testing.TB, db *imdb.DB, h imdb.ClassHandle) imdb.ClassInfo {
	ci, err := db.ClassInfo(h)
	if err != nil {
		tb.Fatalf("ClassInfo(%d) failed: %v", h, err)
	}
	return ci
}

// expectFree checks the number of unformatted blocks and the free list
func expectFree(t *testing.T, ci imdb.ClassInfo, blocksFree, slotsFree, slotsFreeSize int) {
	t.Helper()
	if ci.BlocksFree != blocksFree || ci.SlotsFree != slotsFree || ci.SlotsFreeSize != slotsFreeSize {
		t.Errorf("Expected blocks_free=%d slots_free=%d slots_free_size=%d, got %d/%d/%d",
			blocksFree, slotsFree, slotsFreeSize, ci.BlocksFree, ci.SlotsFree, ci.SlotsFreeSize)
	}
}

// tagged returns a payload of size bytes starting with the little endian tag
func tagged(tag, size int) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b, uint32(tag))
	return b
}

func tagOf(obj imdb.Object) int {
	return int(binary.LittleEndian.Uint32(obj.Data))
}

// scanTags returns the tags of all objects of a class in storage order
func scanTags(tb testing.TB, db *imdb.DB, h imdb.ClassHandle) []int {
	var tags []int
	err := db.Forall(h, func(obj imdb.Object) error {
		tags = append(tags, tagOf(obj))
		return nil
	})
	if err != nil {
		tb.Fatalf("Forall failed: %v", err)
	}
	return tags
}

func expectTags(t *testing.T, got []int, from, to int) {
	t.Helper()
	if len(got) != from-to+1 {
		t.Fatalf("Expected %d objects (%d down to %d), got %d: %v", from-to+1, from, to, len(got), got)
	}
	for i, tag := range got {
		if tag != from-i {
			t.Fatalf("Expected storage order %d..%d, got %v", from, to, got)
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertGet(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "var", Variable: true})

	payload := []byte("hello object")
	obj, err := db.InsertData(h, payload)
	if err != nil {
		t.Fatalf("InsertData failed: %v", err)
	}
	if obj.ID.Class != h {
		t.Errorf("Expected rowid of class %d, got %s", h, obj.ID)
	}

	got, err := db.Get(h, obj.ID)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", obj.ID, err)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Errorf("Expected payload %q, got %q", payload, got.Data)
	}

	zero, err := db.Insert(h, 63)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(zero.Data) != 63 || !bytes.Equal(zero.Data, make([]byte, 63)) {
		t.Errorf("Expected 63 zero bytes, got %v", zero.Data)
	}

	ci := classInfo(t, db, h)
	if ci.Objects != 2 {
		t.Errorf("Expected 2 objects, got %d", ci.Objects)
	}
}

func testFixedLayout(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "fixed", ObjSize: 1023, PagesMax: 3, PageBlocks: 6})

	ci := classInfo(t, db, h)
	if ci.Def.ObjSize != 1024 {
		t.Errorf("Expected aligned object size 1024, got %d", ci.Def.ObjSize)
	}
	if ci.Pages != 1 || ci.Blocks != 6 {
		t.Errorf("Expected 1 page of 6 blocks, got %d pages, %d blocks", ci.Pages, ci.Blocks)
	}
	expectFree(t, ci, 5, 1, 4096-128)

	insert := func(n int) {
		for i := 0; i < n; i++ {
			if _, err := db.Insert(h, 0); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}
	}

	insert(3)
	expectFree(t, classInfo(t, db, h), 4, 1, 4096-24)

	insert(15)
	expectFree(t, classInfo(t, db, h), 0, 0, 0)

	insert(1)
	ci = classInfo(t, db, h)
	if ci.Pages != 2 || ci.Blocks != 12 {
		t.Errorf("Expected 2 pages of 12 blocks, got %d pages, %d blocks", ci.Pages, ci.Blocks)
	}
	expectFree(t, ci, 5, 1, 4096-56-1028)

	insert(54 - 19)
	if _, err := db.Insert(h, 0); !errors.Is(err, imdb.ErrAllocPagesMax) {
		t.Errorf("Expected ErrAllocPagesMax for the 55th object, got %v", err)
	}

	info, err := db.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	st := info.Stats
	if st.SlotSplit != 36 || st.SlotData != 54 || st.BlockAlloc != 18 || st.PageAlloc != 3 {
		t.Errorf("Expected split=36 data=54 block_alloc=18 page_alloc=3, got %+v", st)
	}
	if info.Classes[h].Objects != 54 {
		t.Errorf("Expected 54 objects, got %d", info.Classes[h].Objects)
	}
}

func testDeleteReuse(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "fixed", ObjSize: 1024, PagesMax: 3, PageBlocks: 6})

	ids := make([]imdb.RowID, 3)
	for i := range ids {
		obj, err := db.InsertData(h, tagged(i, 4))
		if err != nil {
			t.Fatalf("InsertData failed: %v", err)
		}
		ids[i] = obj.ID
	}

	if err := db.Delete(h, ids[1]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	expectFree(t, classInfo(t, db, h), 4, 2, 4072+1028)

	obj, err := db.Insert(h, 0)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if obj.ID != ids[1] {
		t.Errorf("Expected the freed slot %s to be reused, got %s", ids[1], obj.ID)
	}
	expectFree(t, classInfo(t, db, h), 4, 1, 4072)

	if err := db.Delete(h, ids[0]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := db.Delete(h, ids[0]); !errors.Is(err, imdb.ErrInvalidObject) {
		t.Errorf("Expected ErrInvalidObject for a second delete, got %v", err)
	}
}

func testVariableLayout(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "var", Variable: true, PagesMax: 3, PageBlocks: 8})

	obj, err := db.Insert(h, 63)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(obj.Data) != 63 {
		t.Errorf("Expected a payload of 63 bytes, got %d", len(obj.Data))
	}
	expectFree(t, classInfo(t, db, h), 7, 1, 4096-128-72)
	if err := db.Delete(h, obj.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for i := 0; i < 128; i++ {
		if _, err := db.InsertData(h, tagged(i, 64*(1+i%16))); err != nil {
			t.Fatalf("InsertData #%d failed: %v", i, err)
		}
	}

	ci := classInfo(t, db, h)
	if ci.Pages != 3 || ci.Blocks != 24 || ci.Objects != 128 {
		t.Errorf("Expected 3 pages, 24 blocks, 128 objects, got %d/%d/%d", ci.Pages, ci.Blocks, ci.Objects)
	}
	expectFree(t, ci, 5, 19, 6544)
	// every free slot that is too small for an insert counts once per scan
	if ci.FLSkipCount != 197 {
		t.Errorf("Expected 197 free list skips, got %d", ci.FLSkipCount)
	}

	if _, err := db.Insert(h, 4096); !errors.Is(err, imdb.ErrInvalidSize) {
		t.Errorf("Expected ErrInvalidSize for an object larger than a block, got %v", err)
	}
}

func testRecycleFixed(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "ring", ObjSize: 1024, Recycle: true, PagesMax: 1, PageBlocks: 4})

	for i := 0; i < 16; i++ {
		if _, err := db.InsertData(h, tagged(i, 4)); err != nil {
			t.Fatalf("InsertData #%d failed: %v", i, err)
		}
	}

	ci := classInfo(t, db, h)
	expectFree(t, ci, 0, 1, 4072-1028)
	if ci.Objects != 10 {
		t.Errorf("Expected 10 surviving objects, got %d", ci.Objects)
	}
	expectTags(t, scanTags(t, db, h), 15, 6)

	info, _ := db.Info()
	if info.Stats.BlockRecycle != 2 {
		t.Errorf("Expected 2 recycled blocks, got %d", info.Stats.BlockRecycle)
	}
}

func testRecycleVariable(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "ring", Variable: true, Recycle: true, PagesMax: 1, PageBlocks: 4})

	for i := 0; i < 40; i++ {
		if _, err := db.InsertData(h, tagged(i, 64*(1+i%16))); err != nil {
			t.Fatalf("InsertData #%d failed: %v", i, err)
		}
	}

	ci := classInfo(t, db, h)
	expectFree(t, ci, 0, 1, 1912)
	expectTags(t, scanTags(t, db, h), 39, 14)

	info, _ := db.Info()
	if info.Stats.BlockRecycle != 2 {
		t.Errorf("Expected 2 recycled blocks, got %d", info.Stats.BlockRecycle)
	}
}

func testFetchBatches(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "ring", Variable: true, Recycle: true, PagesMax: 1, PageBlocks: 4})
	for i := 0; i < 40; i++ {
		if _, err := db.InsertData(h, tagged(i, 64*(1+i%16))); err != nil {
			t.Fatalf("InsertData #%d failed: %v", i, err)
		}
	}

	cur, err := db.Query(h, imdb.PathNone)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	objs, err := db.Fetch(cur, 25)
	if err != nil || len(objs) != 25 {
		t.Fatalf("Expected a full batch of 25, got %d objects, err %v", len(objs), err)
	}
	if tagOf(objs[0]) != 39 || tagOf(objs[24]) != 15 {
		t.Errorf("Expected objects 39..15, got %d..%d", tagOf(objs[0]), tagOf(objs[24]))
	}

	objs, err = db.Fetch(cur, 25)
	if !errors.Is(err, imdb.ErrCursorNoDataFound) || len(objs) != 1 || tagOf(objs[0]) != 14 {
		t.Errorf("Expected the last object with ErrCursorNoDataFound, got %d objects, err %v", len(objs), err)
	}

	objs, err = db.Fetch(cur, 25)
	if !errors.Is(err, imdb.ErrCursorNoDataFound) || len(objs) != 0 {
		t.Errorf("Expected no objects with ErrCursorNoDataFound, got %d objects, err %v", len(objs), err)
	}

	if err := db.Close(cur); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := db.Close(cur); !errors.Is(err, imdb.ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle for a second close, got %v", err)
	}
	if _, err := db.Fetch(cur, 1); !errors.Is(err, imdb.ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle for a closed cursor, got %v", err)
	}
}

func testQueryPath(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "records", Variable: true})

	buf := make([]byte, 256)
	for i := 0; i < 10; i++ {
		enc := dtlv.NewEncoder(buf)
		if err := enc.EncodeUint8(dtlv.Code(1), uint8(i)); err != nil {
			t.Fatal(err)
		}
		if i%2 == 0 {
			g, err := enc.EncodeGrouping(dtlv.Code(2))
			if err != nil {
				t.Fatal(err)
			}
			if err := enc.EncodeChar(dtlv.NS(1, 3), "even"); err != nil {
				t.Fatal(err)
			}
			if err := enc.GroupDone(g); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := db.InsertData(h, enc.Bytes()); err != nil {
			t.Fatalf("InsertData failed: %v", err)
		}
	}
	// not a dtlv record
	if _, err := db.InsertData(h, []byte{0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("InsertData failed: %v", err)
	}

	count := func(path []dtlv.NSCode) int {
		cur, err := db.Query(h, path)
		if err != nil {
			t.Fatalf("Query(%v) failed: %v", path, err)
		}
		defer db.Close(cur)
		objs, err := db.Fetch(cur, 100)
		if !errors.Is(err, imdb.ErrCursorNoDataFound) {
			t.Fatalf("Expected ErrCursorNoDataFound, got %v", err)
		}
		return len(objs)
	}

	if n := count(imdb.PathNone); n != 11 {
		t.Errorf("Expected 11 objects without a path, got %d", n)
	}
	if n := count([]dtlv.NSCode{dtlv.Code(1)}); n != 10 {
		t.Errorf("Expected 10 objects at path 1, got %d", n)
	}
	if n := count([]dtlv.NSCode{dtlv.Code(2), dtlv.NS(1, 3)}); n != 5 {
		t.Errorf("Expected 5 objects at path 2/1.3, got %d", n)
	}
	if n := count([]dtlv.NSCode{dtlv.Wildcard, dtlv.NS(1, 3)}); n != 5 {
		t.Errorf("Expected 5 objects at path */1.3, got %d", n)
	}
	if n := count([]dtlv.NSCode{dtlv.Code(7)}); n != 0 {
		t.Errorf("Expected no objects at path 7, got %d", n)
	}
}

func testForall(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "fixed", ObjSize: 16})
	var ids []imdb.RowID
	for i := 0; i < 5; i++ {
		obj, err := db.InsertData(h, tagged(i, 4))
		if err != nil {
			t.Fatalf("InsertData failed: %v", err)
		}
		ids = append(ids, obj.ID)
	}

	expectTags(t, scanTags(t, db, h), 4, 0)

	calls := 0
	err := db.Forall(h, func(obj imdb.Object) error {
		calls++
		if calls == 2 {
			return imdb.ErrForallBreak
		}
		return nil
	})
	if !errors.Is(err, imdb.ErrForallBreak) || calls != 2 {
		t.Errorf("Expected ErrForallBreak after 2 calls, got %v after %d", err, calls)
	}

	// the callback may use the database, objects deleted before their turn
	// are left out
	var visited []int
	err = db.Forall(h, func(obj imdb.Object) error {
		got, err := db.Get(h, obj.ID)
		if err != nil {
			return err
		}
		visited = append(visited, tagOf(got))
		if tagOf(got) == 4 {
			if err := db.Delete(h, ids[3]); err != nil {
				return err
			}
		}
		return db.Delete(h, obj.ID)
	})
	if err != nil {
		t.Fatalf("Forall with a mutating callback failed: %v", err)
	}
	if len(visited) != 4 || visited[0] != 4 || visited[1] != 2 || visited[3] != 0 {
		t.Errorf("Expected objects 4, 2, 1, 0, got %v", visited)
	}
	if ci := classInfo(t, db, h); ci.Objects != 0 {
		t.Errorf("Expected the callback to delete all objects, got %d left", ci.Objects)
	}

	boom := errors.New("boom")
	if _, err := db.Insert(h, 0); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err = db.Forall(h, func(obj imdb.Object) error {
		return boom
	})
	if err != boom {
		t.Errorf("Expected the callback error to propagate, got %v", err)
	}
}

func testUnique(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "names", Variable: true, Unique: true})

	if _, err := db.InsertData(h, []byte("alpha")); err != nil {
		t.Fatalf("InsertData failed: %v", err)
	}
	beta, err := db.InsertData(h, []byte("beta"))
	if err != nil {
		t.Fatalf("InsertData failed: %v", err)
	}
	if _, err := db.InsertData(h, []byte("alpha")); !errors.Is(err, imdb.ErrEntryExists) {
		t.Errorf("Expected ErrEntryExists for a duplicate, got %v", err)
	}
	if _, err := db.Insert(h, 8); !errors.Is(err, imdb.ErrInvalidArgs) {
		t.Errorf("Expected ErrInvalidArgs for Insert into a unique class, got %v", err)
	}

	found, err := db.ObjectFind(h, []byte("beta"))
	if err != nil || found.ID != beta.ID {
		t.Errorf("Expected to find %s, got %s (err %v)", beta.ID, found.ID, err)
	}

	if err := db.Delete(h, beta.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := db.ObjectFind(h, []byte("beta")); !errors.Is(err, imdb.ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound after delete, got %v", err)
	}
	if _, err := db.InsertData(h, []byte("beta")); err != nil {
		t.Errorf("Expected a deleted key to be insertable again, got %v", err)
	}
}

func testAppendOnly(t *testing.T, factory DBFactory) {
	db := open(t, factory)
	h := createClass(t, db, imdb.ClassDef{Name: "log", ObjSize: 1024, AppendOnly: true, PagesMax: 1, PageBlocks: 1})

	var ids []imdb.RowID
	for i := 0; i < 3; i++ {
		obj, err := db.InsertData(h, tagged(i, 4))
		if err != nil {
			t.Fatalf("InsertData #%d failed: %v", i, err)
		}
		ids = append(ids, obj.ID)
	}
	if err := db.Delete(h, ids[1]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ci := classInfo(t, db, h)
	if ci.Objects != 2 || ci.SlotsFree != 0 {
		t.Errorf("Expected 2 objects and no free slot, got %d objects, %d free slots", ci.Objects, ci.SlotsFree)
	}
	if _, err := db.Insert(h, 0); !errors.Is(err, imdb.ErrAllocPagesMax) {
		t.Errorf("Expected ErrAllocPagesMax since deleted space is not reused, got %v", err)
	}
	if _, err := db.Get(h, ids[1]); !errors.Is(err, imdb.ErrInvalidObject) {
		t.Errorf("Expected ErrInvalidObject for a deleted object, got %v", err)
	}
	if tags := scanTags(t, db, h); len(tags) != 2 || tags[0] != 2 || tags[1] != 0 {
		t.Errorf("Expected objects 2 and 0, got %v", tags)
	}
}

func testInvalidHandles(t *testing.T, factory DBFactory) {
	db := factory(t, imdb.DBDef{BlockSize: 4096})
	h := createClass(t, db, imdb.ClassDef{Name: "fixed", ObjSize: 32})

	if _, err := db.ClassCreate(imdb.ClassDef{Name: "fixed", ObjSize: 32}); !errors.Is(err, imdb.ErrEntryExists) {
		t.Errorf("Expected ErrEntryExists for a duplicate class, got %v", err)
	}
	if _, err := db.ClassCreate(imdb.ClassDef{Name: "huge", ObjSize: 8192}); !errors.Is(err, imdb.ErrInvalidSize) {
		t.Errorf("Expected ErrInvalidSize for an object larger than a block, got %v", err)
	}
	if _, err := db.ClassCreate(imdb.ClassDef{Name: "", Variable: true}); !errors.Is(err, imdb.ErrInvalidDef) {
		t.Errorf("Expected ErrInvalidDef for an empty name, got %v", err)
	}
	if found, err := db.ClassFind("fixed"); err != nil || found != h {
		t.Errorf("Expected ClassFind to return %d, got %d (err %v)", h, found, err)
	}
	if _, err := db.ClassFind("missing"); !errors.Is(err, imdb.ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound, got %v", err)
	}
	if _, err := db.ClassInfo(h + 10); !errors.Is(err, imdb.ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle for an unknown class, got %v", err)
	}

	obj, err := db.Insert(h, 0)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	for _, id := range []imdb.RowID{
		{Class: h, Page: 5},
		{Class: h, Block: 3},
		{Class: h, Offset: obj.ID.Offset + 4},
		{Class: h, Offset: obj.ID.Offset + 2},
		{Class: h, Offset: obj.ID.Offset + 36},
		{Class: h, Offset: 4},
		{Class: h, Offset: 4094},
		{Class: h, Offset: 70000},
		{Class: h + 1, Offset: obj.ID.Offset},
	} {
		if err := db.Delete(h, id); !errors.Is(err, imdb.ErrInvalidObject) {
			t.Errorf("Expected ErrInvalidObject for %s, got %v", id, err)
		}
	}
	if ci := classInfo(t, db, h); ci.Objects != 1 {
		t.Errorf("Expected invalid deletes to change nothing, got %d objects", ci.Objects)
	}
	if got, err := db.Get(h, obj.ID); err != nil || got.ID != obj.ID {
		t.Errorf("Expected Get(%s) to still find the object, got %s (err %v)", obj.ID, got.ID, err)
	}

	cur, err := db.Query(h, imdb.PathNone)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if err := db.Done(); err != nil {
		t.Fatalf("Done failed: %v", err)
	}
	if _, err := db.Fetch(cur, 1); !errors.Is(err, imdb.ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle after Done, got %v", err)
	}
	if _, err := db.Insert(h, 0); !errors.Is(err, imdb.ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle after Done, got %v", err)
	}
	if err := db.Done(); !errors.Is(err, imdb.ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle for a second Done, got %v", err)
	}
}
