package imdb

import (
	"errors"

	"github.com/ValentinKolb/imdb/lib/dtlv"
	"github.com/ValentinKolb/imdb/lib/imdb/internal/layout"
)

// PathNone selects every object of a class
var PathNone []dtlv.NSCode

// cursor iterates the objects of a class in storage order: blocks by
// format sequence descending, slots by offset descending. A block that is
// recycled while the cursor is open is skipped.
type cursor struct {
	class   *class
	path    []dtlv.NSCode
	blocks  []*block
	seqs    []uint32
	next    int   // next block to scan
	pending []int // offsets of the current block still to return
	pendBlk *block
	pendSeq uint32
}

func newCursor(c *class, path []dtlv.NSCode) *cursor {
	cur := &cursor{class: c, path: path, blocks: c.formattedBlocks()}
	cur.seqs = make([]uint32, len(cur.blocks))
	for i, blk := range cur.blocks {
		cur.seqs[i] = blk.seq
	}
	return cur
}

// advance returns the next matching object
func (cur *cursor) advance() (Object, bool, error) {
	c := cur.class
	for {
		for len(cur.pending) > 0 {
			off := cur.pending[0]
			cur.pending = cur.pending[1:]
			if cur.pendBlk.seq != cur.pendSeq {
				cur.pending = nil
				break
			}
			s := c.slotAt(cur.pendBlk, off)
			if s.State != layout.SlotUsed {
				continue
			}
			obj := c.object(cur.pendBlk, off, s)
			if cur.match(obj) {
				return obj, true, nil
			}
		}

		if cur.next >= len(cur.blocks) {
			return Object{}, false, nil
		}
		blk, seq := cur.blocks[cur.next], cur.seqs[cur.next]
		cur.next++
		if blk.seq != seq {
			continue
		}
		offs, err := c.usedSlots(blk)
		if err != nil {
			return Object{}, false, err
		}
		for i, j := 0, len(offs)-1; i < j; i, j = i+1, j-1 {
			offs[i], offs[j] = offs[j], offs[i]
		}
		cur.pending, cur.pendBlk, cur.pendSeq = offs, blk, seq
	}
}

// match reports whether the payload decodes as DTLV with at least one AVP
// at the cursor path
func (cur *cursor) match(obj Object) bool {
	if len(cur.path) == 0 {
		return true
	}
	_, found, err := dtlv.Find(obj.Data, cur.path)
	return err == nil && found
}

// --------------------------------------------------------------------------
// Public cursor API
// --------------------------------------------------------------------------

// Query opens a cursor over a class. With PathNone every object is returned,
// otherwise only objects whose payload holds an AVP at path.
func (db *DB) Query(h ClassHandle, path []dtlv.NSCode) (CursorHandle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return 0, err
	}
	if len(path) > 0 && path[0] == dtlv.PathEnd {
		path = PathNone
	}
	ch := CursorHandle(db.nextCur.Add(1))
	db.cursors.Store(ch, newCursor(c, path))
	return ch, nil
}

// Fetch returns up to max objects. When fewer than max objects are left the
// partial batch is returned together with ErrCursorNoDataFound.
func (db *DB) Fetch(ch CursorHandle, max int) ([]Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrInvalidHandle
	}
	cur, ok := db.cursors.Load(ch)
	if !ok {
		return nil, newError(RetCInvalidHandle, "unknown cursor %d", ch)
	}
	if max <= 0 {
		return nil, newError(RetCInvalidArgs, "fetch of %d objects", max)
	}

	objs := make([]Object, 0, max)
	for len(objs) < max {
		obj, ok, err := cur.advance()
		if err != nil {
			return objs, err
		}
		if !ok {
			return objs, ErrCursorNoDataFound
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// Close releases a cursor, closing it twice fails with ErrInvalidHandle
func (db *DB) Close(ch CursorHandle) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrInvalidHandle
	}
	if _, ok := db.cursors.LoadAndDelete(ch); !ok {
		return newError(RetCInvalidHandle, "unknown cursor %d", ch)
	}
	return nil
}

// slotRef names a slot of a block as it was when it was collected
type slotRef struct {
	blk *block
	seq uint32
	off int
}

// Forall calls fn for every object of a class in storage order. Returning
// ErrForallBreak stops the iteration and is passed on to the caller, any
// other error aborts it. The database is not locked while fn runs, so fn may
// call other methods of the database. Objects deleted or recycled before
// their turn are left out.
func (db *DB) Forall(h ClassHandle, fn func(Object) error) error {
	refs, err := db.collect(h)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		obj, ok, err := db.resolve(h, ref)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(obj); err != nil {
			if errors.Is(err, ErrForallBreak) {
				return ErrForallBreak
			}
			return err
		}
	}
	return nil
}

// collect lists the used slots of a class in storage order
func (db *DB) collect(h ClassHandle) ([]slotRef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return nil, err
	}
	var refs []slotRef
	for _, blk := range c.formattedBlocks() {
		offs, err := c.usedSlots(blk)
		if err != nil {
			return nil, err
		}
		for i := len(offs) - 1; i >= 0; i-- {
			refs = append(refs, slotRef{blk: blk, seq: blk.seq, off: offs[i]})
		}
	}
	return refs, nil
}

// resolve returns the object at ref if the slot still holds it
func (db *DB) resolve(h ClassHandle, ref slotRef) (Object, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return Object{}, false, err
	}
	if ref.blk.seq != ref.seq {
		return Object{}, false, nil
	}
	s := c.slotAt(ref.blk, ref.off)
	if s.State != layout.SlotUsed {
		return Object{}, false, nil
	}
	return c.object(ref.blk, ref.off, s), true, nil
}
