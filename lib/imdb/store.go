package imdb

import (
	"container/list"
	"io"
	"sort"

	"github.com/ValentinKolb/imdb/lib/imdb/fio"
	"github.com/ValentinKolb/imdb/lib/imdb/internal/layout"
	"github.com/ValentinKolb/imdb/lib/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// fileStore persists the blocks of a durable database.
//
// File layout: the superblock occupies the first block, pages of
// PageBlocks*BlockSize bytes follow in allocation order. The first page of
// every class is listed in the superblock, each page header links to the
// next page of its class.
type fileStore struct {
	path       string
	io         fio.IOManager
	lock       fio.FileLocker
	super      layout.Superblock
	profile    Profile
	blockSize  int
	crc        CRCPolicy // effective policy of this session
	verify     bool      // check block checksums while loading
	restamp    bool      // blocks on disk carry no checksum yet
	dirtyPages int
	superDirty bool
}

func ioError(err error, format string, args ...interface{}) *Error {
	return wrapError(RetCIOError, errors.Wrapf(err, format, args...))
}

// openStore locks and opens the file of a durable database. The block size,
// profile and id of an existing file override def.
func openStore(def *DBDef, explicitBlockSize bool, o options) (*fileStore, bool, error) {
	lock := fio.NewFlock(def.Path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, false, ioError(err, "lock %s", def.Path)
	}
	if !locked {
		return nil, false, newError(RetCLocked, "%s is locked by another process", def.Path)
	}

	iom := o.io
	if iom == nil {
		if o.directIO {
			iom, err = fio.NewDirectIO(def.Path)
		} else {
			iom, err = fio.NewFileIO(def.Path)
		}
		if err != nil {
			_ = lock.Unlock()
			return nil, false, ioError(err, "open %s", def.Path)
		}
	}
	s := &fileStore{
		path: def.Path,
		io:   fio.NewRetrying(iom, def.Retries, def.RetryBackoff),
		lock: lock,
	}

	existing, err := s.readSuper(def, explicitBlockSize)
	if err != nil {
		_ = s.close()
		return nil, false, err
	}
	if !existing {
		s.super = layout.Superblock{
			Version:    layout.Version,
			Profile:    def.Profile,
			BlockSize:  uint32(def.BlockSize),
			ID:         uuid.New(),
			NextOffset: uint64(def.BlockSize),
		}
	}
	s.profile = def.Profile
	s.blockSize = def.BlockSize
	s.crc = def.CRC
	s.super.CRC = uint8(def.CRC)
	s.superDirty = true
	return s, existing, nil
}

// readSuper loads the superblock of an existing file
func (s *fileStore) readSuper(def *DBDef, explicitBlockSize bool) (bool, error) {
	size, err := s.io.Size()
	if err != nil {
		return false, ioError(err, "stat %s", s.path)
	}
	if size == 0 {
		return false, nil
	}

	probe := def.BlockSize
	if !explicitBlockSize {
		probe = layout.MaxBlockSize
	}
	buf := make([]byte, probe)
	n, err := s.io.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return false, ioError(err, "read superblock of %s", s.path)
	}
	bs, err := layout.PeekBlockSize(buf[:n])
	if err != nil {
		return false, newError(RetCCorrupted, "%s is not a database file", s.path)
	}
	if explicitBlockSize && bs != def.BlockSize {
		return false, newError(RetCInvalidDef, "%s has block size %d, not %d", s.path, bs, def.BlockSize)
	}
	if n < bs {
		return false, newError(RetCCorrupted, "%s: truncated superblock", s.path)
	}

	sb, err := layout.ParseSuperblock(buf[:bs])
	switch {
	case errors.Is(err, layout.ErrHeaderCRC):
		Logger.Warningf("superblock checksum mismatch in %s", s.path)
		return false, newError(RetCCRCMismatch, "%s: superblock", s.path)
	case err != nil:
		return false, newError(RetCCorrupted, "%s: %v", s.path, err)
	case sb.Version != layout.Version:
		return false, newError(RetCCorrupted, "%s: unsupported version %d", s.path, sb.Version)
	case !sb.Profile.Valid():
		return false, newError(RetCCorrupted, "%s: unknown profile %d", s.path, sb.Profile)
	}

	def.BlockSize = bs
	def.Profile = sb.Profile
	fileCRC := CRCPolicy(sb.CRC)
	if def.CRC == CRCNone {
		def.CRC = fileCRC
	}
	if def.CRC != CRCNone && !def.Profile.HasBlockCRC() {
		return false, newError(RetCInvalidDef, "profile %s has no block checksum, crc policy must be none", def.Profile)
	}
	s.verify = def.CRC == CRCReadWrite && fileCRC != CRCNone
	s.restamp = def.CRC != CRCNone && fileCRC == CRCNone
	s.super = sb
	return true, nil
}

func (s *fileStore) close() error {
	err := s.io.Close()
	if uerr := s.lock.Unlock(); err == nil && uerr != nil {
		err = uerr
	}
	return err
}

// addClass reserves the superblock entry of a new class
func (s *fileStore) addClass() {
	s.super.Classes = append(s.super.Classes, 0)
	s.superDirty = true
}

// dropClass releases the entry of a class whose creation failed
func (s *fileStore) dropClass() {
	s.super.Classes = s.super.Classes[:len(s.super.Classes)-1]
}

// allocPage assigns the file region of a new page
func (s *fileStore) allocPage(c *class, p *page) {
	p.offset = int64(s.super.NextOffset)
	s.super.NextOffset += uint64(c.def.PageBlocks * s.blockSize)
	if p.index == 0 {
		s.super.Classes[c.handle] = uint64(p.offset)
	} else if prev := c.pages[p.index-1].blocks[0]; prev != nil {
		// the previous page header links to the new page
		c.db.touch(prev)
	}
	s.superDirty = true
}

// --------------------------------------------------------------------------
// Flush
// --------------------------------------------------------------------------

// flush writes all dirty blocks, then the superblock, then syncs the file
func (s *fileStore) flush(db *DB) error {
	written := 0
	for _, c := range db.classes {
		for _, p := range c.pages {
			if !p.dirty {
				continue
			}
			for _, blk := range p.blocks {
				if blk == nil || !blk.dirty {
					continue
				}
				if err := s.writeBlock(c, blk); err != nil {
					Logger.Errorf("flush of %s failed: %v", s.path, err)
					return err
				}
				blk.dirty = false
				written++
				db.stats.blockWrite.Inc()
			}
			p.dirty = false
		}
	}
	s.dirtyPages = 0

	if s.superDirty {
		buf := make([]byte, s.blockSize)
		s.super.Put(buf)
		if _, err := s.io.WriteAt(buf, 0); err != nil {
			Logger.Errorf("flush of %s failed: %v", s.path, err)
			return ioError(err, "write superblock of %s", s.path)
		}
		s.superDirty = false
		db.stats.headerWrite.Inc()
	}
	if err := s.io.Sync(); err != nil {
		return ioError(err, "sync %s", s.path)
	}
	Logger.Debugf("flushed %d blocks to %s", written, s.path)
	return nil
}

// writeBlock encodes the headers nested in a block and writes it
func (s *fileStore) writeBlock(c *class, blk *block) error {
	p := blk.pg
	layout.BlockHeader{
		Seq:   blk.seq,
		Page:  uint16(p.index),
		Block: uint16(blk.index),
		Used:  uint16(blk.used),
		Flags: layout.BlockFormatted,
	}.Put(s.profile, blk.data)

	if blk.index == 0 {
		var next uint64
		if p.index+1 < len(c.pages) {
			next = uint64(c.pages[p.index+1].offset)
		}
		layout.PageHeader{
			Class:     uint16(c.handle),
			Page:      uint16(p.index),
			Blocks:    uint16(len(p.blocks)),
			Formatted: uint16(p.formatted),
			Next:      next,
			Self:      uint64(p.offset),
		}.Put(s.profile, blk.data)
	}
	if p.index == 0 && blk.index == 0 {
		layout.ClassHeader{
			Class:      uint16(c.handle),
			Flags:      c.def.flags(),
			Name:       c.def.Name,
			PagesMax:   uint16(c.def.PagesMax),
			PageBlocks: uint16(c.def.PageBlocks),
			ObjSize:    uint32(c.def.ObjSize),
			InitBlocks: uint16(c.def.InitBlocks),
			Pages:      uint16(len(c.pages)),
			Seq:        c.seq,
			NameHash:   util.HashString(c.def.Name, 0),
		}.Put(s.profile, blk.data)
	}
	if s.crc != CRCNone {
		layout.StampBlockCRC(s.profile, blk.data)
	}

	off := p.offset + int64(blk.index*s.blockSize)
	if _, err := s.io.WriteAt(blk.data, off); err != nil {
		return ioError(err, "write block %d:%d of class %s at %d", p.index, blk.index, c.def.Name, off)
	}
	return nil
}

// --------------------------------------------------------------------------
// Load
// --------------------------------------------------------------------------

// load rebuilds all classes from the file
func (db *DB) load() error {
	s := db.store
	for i, off := range s.super.Classes {
		c, err := db.loadClass(ClassHandle(i), int64(off))
		if err != nil {
			return err
		}
		db.classes = append(db.classes, c)
		db.names.Store(c.def.Name, c.handle)
		db.stats.registerClass(c)
	}
	Logger.Infof("loaded %d classes from %s", len(db.classes), s.path)
	return nil
}

// readBlock reads one block into pool memory. Unformatted blocks, also those
// past the end of the file, return nil.
func (db *DB) readBlock(off int64) ([]byte, error) {
	s := db.store
	mem, err := db.pool.alloc()
	if err != nil {
		return nil, err
	}
	n, err := s.io.ReadAt(mem, off)
	if err != nil && err != io.EOF {
		db.pool.free(mem)
		return nil, ioError(err, "read block at %d", off)
	}
	if n < len(mem) {
		db.pool.free(mem)
		return nil, nil
	}
	db.stats.blockRead.Inc()

	if layout.ParseBlockHeader(s.profile, mem).Flags&layout.BlockFormatted == 0 {
		db.pool.free(mem)
		return nil, nil
	}
	if s.verify && !layout.VerifyBlockCRC(s.profile, mem) {
		db.pool.free(mem)
		Logger.Warningf("checksum mismatch of block at %d in %s", off, s.path)
		return nil, newError(RetCCRCMismatch, "block at offset %d", off)
	}
	return mem, nil
}

func (db *DB) headerError(err error, what string, off int64) *Error {
	if errors.Is(err, layout.ErrHeaderCRC) {
		Logger.Warningf("checksum mismatch of %s header at %d in %s", what, off, db.store.path)
		return newError(RetCCRCMismatch, "%s header at offset %d", what, off)
	}
	return newError(RetCCorrupted, "%s header at offset %d: %v", what, off, err)
}

// loadClass reads the page chain of a class and rebuilds its allocator state
func (db *DB) loadClass(h ClassHandle, first int64) (*class, error) {
	s := db.store
	if first == 0 {
		return nil, newError(RetCCorrupted, "class %d has no pages", h)
	}

	var c *class
	for off := first; off != 0; {
		head, err := db.readBlock(off)
		if err != nil {
			return nil, err
		}
		if head == nil {
			return nil, newError(RetCCorrupted, "page at offset %d is not formatted", off)
		}
		ph, err := layout.ParsePageHeader(s.profile, head, s.verify)
		if err != nil {
			db.pool.free(head)
			return nil, db.headerError(err, "page", off)
		}

		if c == nil {
			ch, err := layout.ParseClassHeader(s.profile, head, s.verify)
			if err != nil {
				db.pool.free(head)
				return nil, db.headerError(err, "class", off)
			}
			if ClassHandle(ch.Class) != h {
				db.pool.free(head)
				return nil, newError(RetCCorrupted, "class header at %d names class %d, want %d", off, ch.Class, h)
			}
			if ch.NameHash != util.HashString(ch.Name, 0) {
				db.pool.free(head)
				return nil, newError(RetCCorrupted, "class header at %d: name %q does not match its hash", off, ch.Name)
			}
			c = newClass(db, h, classDefFromHeader(ch))
			c.seq = ch.Seq
		}

		p := &page{index: len(c.pages), offset: off, blocks: make([]*block, c.def.PageBlocks)}
		if int(ph.Page) != p.index || int(ph.Class) != int(h) {
			db.pool.free(head)
			return nil, newError(RetCCorrupted, "page at offset %d is page %d of class %d", off, ph.Page, ph.Class)
		}
		c.pages = append(c.pages, p)
		c.adopt(p, 0, head)

		for i := 1; i < c.def.PageBlocks; i++ {
			mem, err := db.readBlock(off + int64(i*s.blockSize))
			if err != nil {
				return nil, err
			}
			if mem != nil {
				c.adopt(p, i, mem)
			}
		}
		off = int64(ph.Next)
	}

	if err := c.rebuild(); err != nil {
		return nil, err
	}
	Logger.Debugf("loaded class %s: %d pages, %d objects", c.def.Name, len(c.pages), c.objects)
	return c, nil
}

// adopt installs a block read from the file
func (c *class) adopt(p *page, index int, mem []byte) {
	bh := layout.ParseBlockHeader(c.db.def.Profile, mem)
	blk := &block{
		pg:    p,
		index: index,
		seq:   bh.Seq,
		start: c.blockStart(p.index, index),
		data:  mem,
		free:  map[int]*list.Element{},
	}
	p.blocks[index] = blk
	p.formatted++
	if c.db.store.restamp {
		c.db.touch(blk)
	}
}

// rebuild restores free lists, object counts and indexes from the slots of
// all blocks. Free slots are pushed in sequence order, so the newest block
// is tried first.
func (c *class) rebuild() error {
	blocks := c.formattedBlocks()
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].seq < blocks[j].seq })

	for _, blk := range blocks {
		if blk.seq > c.seq {
			c.seq = blk.seq
		}
		var frees []freeSlot
		err := c.walk(blk, func(off int, s layout.Slot) bool {
			switch s.State {
			case layout.SlotUsed:
				obj := c.object(blk, off, s)
				blk.used++
				c.objects++
				c.sizes.AddSample(len(obj.Data))
				if c.unique != nil {
					c.index(obj)
				}
			case layout.SlotFree:
				frees = append(frees, freeSlot{blk: blk, off: off, size: s.Size})
			}
			return true
		})
		if err != nil {
			return err
		}
		if c.def.Recycle {
			c.ring.AddItem(blk.key(), uint64(blk.seq))
			c.abandon()
			c.current = blk
		}
		for i := range frees {
			fs := frees[i]
			blk.free[fs.off] = c.fl.PushFront(&fs)
		}
	}
	return nil
}
