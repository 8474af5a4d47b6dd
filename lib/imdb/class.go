package imdb

import (
	"bytes"
	"container/list"
	"sort"

	"github.com/ValentinKolb/imdb/lib/imdb/internal/layout"
	"github.com/ValentinKolb/imdb/lib/util"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Pages, blocks and free slots
// --------------------------------------------------------------------------

type page struct {
	index     int
	blocks    []*block // nil entries are not formatted yet
	formatted int
	offset    int64 // file offset, durable databases only
	dirty     bool
}

type block struct {
	pg    *page
	index int
	seq   uint32
	start int // offset of the first slot
	data  []byte
	used  int
	free  map[int]*list.Element // free slots of this block on the class free list
	dirty bool
}

func (b *block) key() uint64 {
	return util.BlockKey(b.pg.index, b.index)
}

// freeSlot is an entry of the class free list
type freeSlot struct {
	blk  *block
	off  int
	size int
}

type uniqueEntry struct {
	key []byte
	id  RowID
}

func uniqueLess(a, b uniqueEntry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// --------------------------------------------------------------------------
// Class
// --------------------------------------------------------------------------

// class is the allocator of one object class. Free slots are kept on a
// LIFO list, the most recently freed slot is tried first. Recycling classes
// fill one block at a time and reuse the block with the oldest format
// sequence once all pages are in use.
type class struct {
	db     *DB
	handle ClassHandle
	def    ClassDef
	hdr    int // slot header size

	pages   []*page
	fl      *list.List
	current *block        // block being filled by a recycling class
	ring    *util.MapHeap // formatted blocks of a recycling class by sequence
	seq     uint32

	objects int
	flSkip  int
	sizes   *util.SizeHistogram
	unique  *btree.BTreeG[uniqueEntry]
}

func newClass(db *DB, h ClassHandle, def ClassDef) *class {
	c := &class{
		db:     db,
		handle: h,
		def:    def,
		hdr:    layout.SlotHeaderSize(def.Variable),
		fl:     list.New(),
		sizes:  util.NewSizeHistogram(),
	}
	if def.Recycle {
		c.ring = util.NewMapHeap()
	}
	if def.Unique {
		c.unique = btree.NewG(32, uniqueLess)
	}
	return c
}

func (c *class) blockSize() int {
	return c.db.def.BlockSize
}

// blockStart returns the offset of the first slot of a block
func (c *class) blockStart(page, index int) int {
	sizes := c.db.def.Profile.Sizes()
	switch {
	case page == 0 && index == 0:
		return sizes.ClassHeader
	case index == 0:
		return sizes.PageHeader
	default:
		return sizes.BlockHeader
	}
}

// footprint returns the slot size needed for a payload of length bytes
func (c *class) footprint(length int) int {
	if c.def.Variable {
		return c.hdr + layout.AlignUp(length)
	}
	return c.hdr + c.def.ObjSize
}

// maxFootprint is the largest slot any block of the class can hold
func (c *class) maxFootprint() int {
	sizes := c.db.def.Profile.Sizes()
	switch {
	case c.def.PageBlocks > 1:
		return c.blockSize() - sizes.BlockHeader
	case c.def.PagesMax > 1:
		return c.blockSize() - sizes.PageHeader
	default:
		return c.blockSize() - sizes.ClassHeader
	}
}

// splits reports whether a free slot leaving rem bytes after an object of
// need bytes is split
func (c *class) splits(need, rem int) bool {
	if c.def.Variable {
		return rem >= c.hdr+layout.Align
	}
	return rem >= need
}

func (c *class) length(s layout.Slot) int {
	if c.def.Variable {
		return s.Length
	}
	return c.def.ObjSize
}

func (c *class) slotAt(blk *block, off int) layout.Slot {
	return layout.ParseSlot(blk.data[off:], c.def.Variable)
}

func (c *class) putSlot(blk *block, off int, s layout.Slot) {
	layout.PutSlot(blk.data[off:], c.def.Variable, s)
}

func (c *class) payload(blk *block, off int, s layout.Slot) []byte {
	start := off + c.hdr
	return blk.data[start : start+c.length(s)]
}

func (c *class) object(blk *block, off int, s layout.Slot) Object {
	return Object{
		ID: RowID{
			Class:  c.handle,
			Page:   uint16(blk.pg.index),
			Block:  uint16(blk.index),
			Offset: uint32(off),
		},
		Data: c.payload(blk, off, s),
	}
}

// walk calls fn for every slot of blk in offset order until fn returns false
func (c *class) walk(blk *block, fn func(off int, s layout.Slot) bool) error {
	for off := blk.start; off < len(blk.data); {
		s := c.slotAt(blk, off)
		if s.Size < c.hdr || off+s.Size > len(blk.data) || s.Size%layout.Align != 0 {
			return newError(RetCCorrupted, "class %s: bad slot at %d:%d:%d", c.def.Name, blk.pg.index, blk.index, off)
		}
		if !fn(off, s) {
			return nil
		}
		off += s.Size
	}
	return nil
}

func (c *class) usedSlots(blk *block) ([]int, error) {
	var offs []int
	err := c.walk(blk, func(off int, s layout.Slot) bool {
		if s.State == layout.SlotUsed {
			offs = append(offs, off)
		}
		return true
	})
	return offs, err
}

// formattedBlocks returns all formatted blocks ordered by sequence, newest first
func (c *class) formattedBlocks() []*block {
	var blocks []*block
	for _, p := range c.pages {
		for _, blk := range p.blocks {
			if blk != nil {
				blocks = append(blocks, blk)
			}
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].seq > blocks[j].seq })
	return blocks
}

// --------------------------------------------------------------------------
// Pages and blocks
// --------------------------------------------------------------------------

// addPage appends a page and formats its first block
func (c *class) addPage() error {
	p := &page{index: len(c.pages), blocks: make([]*block, c.def.PageBlocks)}
	if c.db.store != nil {
		c.db.store.allocPage(c, p)
	}
	c.pages = append(c.pages, p)
	c.db.stats.pageAlloc.Inc()
	Logger.Debugf("class %s: allocated page %d", c.def.Name, p.index)
	return c.format(p, 0)
}

// formatNext formats the next unformatted block of an existing page
func (c *class) formatNext() (bool, error) {
	for _, p := range c.pages {
		if p.formatted == len(p.blocks) {
			continue
		}
		for i, blk := range p.blocks {
			if blk == nil {
				return true, c.format(p, i)
			}
		}
	}
	return false, nil
}

func (c *class) format(p *page, index int) error {
	mem, err := c.db.pool.alloc()
	if err != nil {
		return err
	}
	blk := &block{pg: p, index: index, start: c.blockStart(p.index, index), data: mem}
	p.blocks[index] = blk
	p.formatted++
	c.reset(blk)
	c.db.stats.blockAlloc.Inc()
	return nil
}

// reset wipes a block and turns it into a single free slot with a new sequence
func (c *class) reset(blk *block) {
	clear(blk.data)
	c.seq++
	blk.seq = c.seq
	blk.used = 0

	size := len(blk.data) - blk.start
	c.putSlot(blk, blk.start, layout.Slot{Size: size})
	blk.free = map[int]*list.Element{
		blk.start: c.fl.PushFront(&freeSlot{blk: blk, off: blk.start, size: size}),
	}
	if c.def.Recycle {
		c.current = blk
		c.ring.AddItem(blk.key(), uint64(blk.seq))
	}
	c.db.touch(blk)
}

// abandon drops the remaining free slots of the current block of a
// recycling class from the free list
func (c *class) abandon() {
	if c.current == nil {
		return
	}
	for off, el := range c.current.free {
		c.fl.Remove(el)
		delete(c.current.free, off)
	}
	c.current = nil
}

// recycleOldest evicts all objects of the block with the lowest sequence and
// makes it the current block
func (c *class) recycleOldest() error {
	it, ok := c.ring.Peek()
	if !ok {
		return newError(RetCAllocPagesMax, "class %s has no block to recycle", c.def.Name)
	}
	pi, bi := util.SplitBlockKey(it.Key)
	blk := c.pages[pi].blocks[bi]

	evicted := 0
	err := c.walk(blk, func(off int, s layout.Slot) bool {
		if s.State == layout.SlotUsed {
			c.forget(c.object(blk, off, s))
			evicted++
		}
		return true
	})
	if err != nil {
		return err
	}
	for off, el := range blk.free {
		c.fl.Remove(el)
		delete(blk.free, off)
	}
	c.reset(blk)
	c.db.stats.blockRecycle.Inc()
	Logger.Debugf("class %s: recycled block %d:%d, evicted %d objects", c.def.Name, pi, bi, evicted)
	return nil
}

// forget removes a used object from the class accounting
func (c *class) forget(obj Object) {
	c.objects--
	c.sizes.RemoveSample(len(obj.Data))
	if c.unique != nil {
		c.unindex(obj)
	}
}

// --------------------------------------------------------------------------
// Allocation
// --------------------------------------------------------------------------

// coalesce merges the physically following free slots into fs
func (c *class) coalesce(fs *freeSlot) {
	blk := fs.blk
	for {
		next := fs.off + fs.size
		if next >= len(blk.data) {
			return
		}
		s := c.slotAt(blk, next)
		if s.State != layout.SlotFree || s.Size < c.hdr {
			return
		}
		if el, ok := blk.free[next]; ok {
			c.fl.Remove(el)
			delete(blk.free, next)
		}
		fs.size += s.Size
		c.putSlot(blk, fs.off, layout.Slot{Size: fs.size})
		c.db.touch(blk)
	}
}

// fit places an object into the first free slot that is large enough
func (c *class) fit(need, length int) (*block, int, bool) {
	for el := c.fl.Front(); el != nil; el = el.Next() {
		fs := el.Value.(*freeSlot)
		c.coalesce(fs)
		if fs.size < need {
			c.flSkip++
			continue
		}
		blk, off := c.place(el, need, length)
		return blk, off, true
	}
	return nil, 0, false
}

// place allocates the front of a free slot. A remainder that is split off
// keeps the list position of the slot.
func (c *class) place(el *list.Element, need, length int) (*block, int) {
	fs := el.Value.(*freeSlot)
	blk, off, size := fs.blk, fs.off, fs.size
	delete(blk.free, off)

	if rem := size - need; c.splits(need, rem) {
		size = need
		fs.off += need
		fs.size = rem
		blk.free[fs.off] = el
		c.putSlot(blk, fs.off, layout.Slot{Size: rem})
		c.db.stats.slotSplit.Inc()
	} else {
		c.fl.Remove(el)
	}

	stored := 0
	if c.def.Variable {
		stored = length
	}
	c.putSlot(blk, off, layout.Slot{Size: size, State: layout.SlotUsed, Length: stored})
	clear(blk.data[off+c.hdr : off+size])

	blk.used++
	c.objects++
	c.sizes.AddSample(c.length(layout.Slot{Length: length}))
	c.db.stats.slotData.Inc()
	c.db.touch(blk)
	return blk, off
}

// insert allocates a slot for a payload of length bytes
func (c *class) insert(length int) (Object, error) {
	if length < 0 {
		return Object{}, newError(RetCInvalidSize, "negative object size %d", length)
	}
	need := c.footprint(length)
	if limit := c.maxFootprint(); need > limit {
		return Object{}, newError(RetCInvalidSize, "class %s: object of %d bytes needs %d, a block holds %d", c.def.Name, length, need, limit)
	}

	recycled := 0
	for {
		if blk, off, ok := c.fit(need, length); ok {
			if !c.def.Recycle && c.fl.Len() == 0 {
				if _, err := c.formatNext(); err != nil {
					Logger.Warningf("class %s: failed to format a spare block: %v", c.def.Name, err)
				}
			}
			return c.object(blk, off, c.slotAt(blk, off)), nil
		}

		if c.def.Recycle {
			c.abandon()
		}
		formatted, err := c.formatNext()
		if err != nil {
			return Object{}, err
		}
		if formatted {
			continue
		}
		if len(c.pages) < c.def.PagesMax {
			if err := c.addPage(); err != nil {
				return Object{}, err
			}
			continue
		}
		if c.def.Recycle && recycled <= len(c.pages)*c.def.PageBlocks {
			recycled++
			if err := c.recycleOldest(); err != nil {
				return Object{}, err
			}
			continue
		}
		return Object{}, newError(RetCAllocPagesMax, "class %s: all %d pages are in use", c.def.Name, c.def.PagesMax)
	}
}

// locate validates that id names a live object of the class. The slot
// header is read at the offset of the rowid, so the offset has to be
// aligned and inside the block.
func (c *class) locate(id RowID) (*block, layout.Slot, error) {
	invalid := newError(RetCInvalidObject, "rowid %s is not a live object of class %s", id, c.def.Name)
	if id.Class != c.handle || int(id.Page) >= len(c.pages) {
		return nil, layout.Slot{}, invalid
	}
	p := c.pages[id.Page]
	if int(id.Block) >= len(p.blocks) || p.blocks[id.Block] == nil {
		return nil, layout.Slot{}, invalid
	}
	blk := p.blocks[id.Block]
	off := int(id.Offset)
	if off < blk.start || off%layout.Align != 0 || off+c.hdr > len(blk.data) {
		return nil, layout.Slot{}, invalid
	}

	s := c.slotAt(blk, off)
	if s.State != layout.SlotUsed || s.Size < c.hdr || s.Size%layout.Align != 0 || off+s.Size > len(blk.data) {
		return nil, layout.Slot{}, invalid
	}
	if c.length(s) > s.Size-c.hdr {
		return nil, layout.Slot{}, invalid
	}
	return blk, s, nil
}

// delete frees the slot of a live object
func (c *class) delete(blk *block, off int, s layout.Slot) {
	c.forget(c.object(blk, off, s))
	blk.used--

	if c.def.AppendOnly {
		s.State = layout.SlotDead
		c.putSlot(blk, off, s)
		c.db.touch(blk)
		return
	}

	c.putSlot(blk, off, layout.Slot{Size: s.Size})
	if !c.def.Recycle || blk == c.current {
		blk.free[off] = c.fl.PushFront(&freeSlot{blk: blk, off: off, size: s.Size})
	}
	c.db.stats.slotFree.Inc()
	c.db.touch(blk)
}

// --------------------------------------------------------------------------
// Unique index
// --------------------------------------------------------------------------

// key returns the index key of a payload, fixed size payloads are zero padded
func (c *class) key(data []byte) []byte {
	if c.def.Variable {
		return bytes.Clone(data)
	}
	k := make([]byte, c.def.ObjSize)
	copy(k, data)
	return k
}

func (c *class) index(obj Object) {
	c.unique.ReplaceOrInsert(uniqueEntry{key: c.key(obj.Data), id: obj.ID})
}

// unindex removes the entry of obj. The payload may have been changed in
// place since the insert, so the entry is searched by id as a fallback.
func (c *class) unindex(obj Object) {
	if e, ok := c.unique.Get(uniqueEntry{key: c.key(obj.Data)}); ok && e.id == obj.ID {
		c.unique.Delete(e)
		return
	}
	var stale *uniqueEntry
	c.unique.Ascend(func(e uniqueEntry) bool {
		if e.id == obj.ID {
			stale = &e
			return false
		}
		return true
	})
	if stale != nil {
		c.unique.Delete(*stale)
	}
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

func (c *class) info() (ClassInfo, error) {
	ci := ClassInfo{
		Handle:      c.handle,
		Def:         c.def,
		Pages:       len(c.pages),
		Blocks:      len(c.pages) * c.def.PageBlocks,
		SlotsFree:   c.fl.Len(),
		FLSkipCount: c.flSkip,
		Objects:     c.objects,
		ObjectSize: SizeSummary{
			Count:   c.sizes.GetCount(),
			Average: c.sizes.AverageSize(),
			Median:  c.sizes.MedianEstimate(),
			P90:     c.sizes.GetPercentileEstimate(90),
			P99:     c.sizes.GetPercentileEstimate(99),
		},
	}
	for _, p := range c.pages {
		ci.BlocksFree += len(p.blocks) - p.formatted
	}
	for el := c.fl.Front(); el != nil; el = el.Next() {
		ci.SlotsFreeSize += el.Value.(*freeSlot).size
	}

	var fill []float64
	for _, blk := range c.formattedBlocks() {
		used := 0
		err := c.walk(blk, func(off int, s layout.Slot) bool {
			if s.State != layout.SlotFree {
				used += s.Size
			}
			return true
		})
		if err != nil {
			return ClassInfo{}, err
		}
		fill = append(fill, float64(used)/float64(len(blk.data)-blk.start))
	}
	ci.BlockFill = util.NewDistributionStats(fill)
	return ci, nil
}
