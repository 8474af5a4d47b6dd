// Package imdb implements an embeddable object database that stores
// variable or fixed size objects in classes of paged, block structured
// memory, optionally persisted to a single file.
//
// Key Components:
//
//   - DB: an instance created with Open. It owns the classes, the cursor
//     table and the block memory. Block memory comes from the Go heap or,
//     with WithBacking, from a fixed size class of another instance. A
//     durable instance mirrors its blocks into a file (see fileStore).
//
//   - Class: a named container of objects with its own pages. A page is a
//     run of PageBlocks blocks, the first block of every page carries the
//     page header and the first block of the class also the class header.
//     Blocks are formatted lazily and stamped with a sequence number.
//
//   - Allocator: every class keeps a LIFO free list of slots. Inserts take
//     the first free slot that fits (coalescing adjacent free slots on the
//     way), split off the remainder when it can hold another object and
//     otherwise format the next block or allocate a new page. Recycling
//     classes fill one block at a time and wipe the block with the oldest
//     sequence once all pages are in use.
//
//   - Cursors: Query, Fetch and Close iterate a class in storage order,
//     newest block first and within a block from the highest offset down.
//     A path restricts the cursor to objects whose DTLV payload holds an
//     attribute at that path.
//
// Example usage:
//
//	db, _ := imdb.Open(imdb.DBDef{BlockSize: 4096})
//	defer db.Done()
//
//	h, _ := db.ClassCreate(imdb.ClassDef{Name: "events", Variable: true, PagesMax: 4})
//	obj, _ := db.InsertData(h, payload)
//
//	cur, _ := db.Query(h, imdb.PathNone)
//	objs, err := db.Fetch(cur, 10) // err is ErrCursorNoDataFound on the last batch
//	_ = db.Close(cur)
//
// Errors are *Error values carrying a RetCode, use errors.Is with the
// exported sentinels (ErrAllocPagesMax, ErrInvalidObject, ...) to test them.
package imdb
