package imdb

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/imdb/lib/imdb/fio"
	"github.com/ValentinKolb/imdb/lib/imdb/internal/layout"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("imdb")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type options struct {
	backing  *DB
	directIO bool
	io       fio.IOManager
}

// Option configures Open
type Option func(*options)

// WithBacking takes the block memory from a fixed size class of another
// (usually in-memory) database instead of the Go heap
func WithBacking(backing *DB) Option {
	return func(o *options) { o.backing = backing }
}

// WithDirectIO makes a durable database bypass the page cache. The block
// size has to be a multiple of fio.Alignment.
func WithDirectIO() Option {
	return func(o *options) { o.directIO = true }
}

// WithIOManager replaces the file of a durable database, e.g. for tests
func WithIOManager(m fio.IOManager) Option {
	return func(o *options) { o.io = m }
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// DB is an instance of the object database. All methods are serialized by
// an instance lock, Object.Data views must not be used concurrently with
// mutations of the same class.
type DB struct {
	mu      sync.Mutex
	def     DBDef
	id      uuid.UUID
	closed  bool
	classes []*class // indexed by handle
	names   *xsync.MapOf[string, ClassHandle]
	cursors *xsync.MapOf[CursorHandle, *cursor]
	nextCur atomic.Uint64
	pool    blockPool
	store   *fileStore // nil for in-memory databases
	stats   *dbStats
}

// Open creates a database instance. A durable database loads the classes
// stored at def.Path or creates a new file.
func Open(def DBDef, opts ...Option) (*DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	explicitBlockSize := def.BlockSize != 0
	def, err := def.normalize()
	if err != nil {
		return nil, err
	}
	if o.directIO && def.BlockSize%fio.Alignment != 0 {
		return nil, newError(RetCInvalidDef, "direct io needs a block size multiple of %d", fio.Alignment)
	}
	if o.backing != nil && o.backing.closed {
		return nil, newError(RetCInvalidHandle, "backing database is closed")
	}

	db := &DB{
		def:     def,
		id:      uuid.New(),
		names:   xsync.NewMapOf[string, ClassHandle](),
		cursors: xsync.NewMapOf[CursorHandle, *cursor](),
	}

	existing := false
	if def.Durable {
		db.store, existing, err = openStore(&db.def, explicitBlockSize, o)
		if err != nil {
			return nil, err
		}
		db.id = db.store.super.ID
	}
	db.stats = newDBStats(db.id.String())

	if o.backing != nil {
		db.pool, err = newBackedPool(o.backing, db.id.String()[:8], db.def.BlockSize)
		if err != nil {
			db.closeStore()
			return nil, err
		}
	} else {
		db.pool = &heapPool{blockSize: db.def.BlockSize}
	}

	if existing {
		db.stats.headerRead.Inc()
		if err := db.load(); err != nil {
			db.release()
			db.closeStore()
			return nil, err
		}
	} else if db.store != nil {
		if err := db.flush(); err != nil {
			db.release()
			db.closeStore()
			return nil, err
		}
	}

	Logger.Infof("opened database %s (block size %d, profile %s, durable %t, %d classes)",
		db.id, db.def.BlockSize, db.def.Profile, db.def.Durable, len(db.classes))
	return db, nil
}

// Def returns the effective definition of the database
func (db *DB) Def() DBDef {
	return db.def
}

// ID returns the instance id, durable databases keep it across reopening
func (db *DB) ID() uuid.UUID {
	return db.id
}

// Done flushes a durable database and releases all resources. Every later
// call on the database or its handles returns ErrInvalidHandle.
func (db *DB) Done() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrInvalidHandle
	}

	var err error
	if db.store != nil {
		err = db.flush()
	}
	db.cursors.Clear()
	db.release()
	db.closeStore()
	db.closed = true
	db.classes = nil
	Logger.Infof("closed database %s", db.id)
	return err
}

// release returns all block memory to the pool
func (db *DB) release() {
	for _, c := range db.classes {
		for _, p := range c.pages {
			for _, blk := range p.blocks {
				if blk != nil {
					db.pool.free(blk.data)
				}
			}
		}
	}
	db.pool.close()
}

func (db *DB) closeStore() {
	if db.store == nil {
		return
	}
	if err := db.store.close(); err != nil {
		Logger.Errorf("failed to close %s: %v", db.def.Path, err)
	}
}

// Flush writes all dirty blocks of a durable database. It is a no-op for
// in-memory databases.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrInvalidHandle
	}
	return db.flush()
}

func (db *DB) flush() error {
	if db.store == nil {
		return nil
	}
	return db.store.flush(db)
}

// touch marks a block as modified
func (db *DB) touch(blk *block) {
	if db.store == nil {
		return
	}
	blk.dirty = true
	if !blk.pg.dirty {
		blk.pg.dirty = true
		db.store.dirtyPages++
	}
}

// checkpoint runs an implicit flush once too many pages are dirty. A failed
// flush is reported as ErrFlushFailed wrapping the cause, the mutation that
// triggered it stays in effect.
func (db *DB) checkpoint() error {
	if db.store == nil || db.def.RecoveryPages == 0 || db.store.dirtyPages <= db.def.RecoveryPages {
		return nil
	}
	Logger.Debugf("%d dirty pages, flushing", db.store.dirtyPages)
	if err := db.flush(); err != nil {
		Logger.Warningf("implicit flush of %s failed: %v", db.def.Path, err)
		return &Error{Code: RetCFlushFailed, Msg: "implicit flush", Err: err}
	}
	return nil
}

// --------------------------------------------------------------------------
// Classes
// --------------------------------------------------------------------------

func (db *DB) class(h ClassHandle) (*class, error) {
	if db.closed {
		return nil, ErrInvalidHandle
	}
	if int(h) >= len(db.classes) {
		return nil, newError(RetCInvalidHandle, "unknown class handle %d", h)
	}
	return db.classes[h], nil
}

// ClassCreate creates a class and formats its first blocks
func (db *DB) ClassCreate(def ClassDef) (ClassHandle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrInvalidHandle
	}

	def, err := def.normalize(db.def)
	if err != nil {
		return 0, err
	}
	if _, exists := db.names.Load(def.Name); exists {
		return 0, newError(RetCEntryExists, "class %s already exists", def.Name)
	}
	limit := 0xFFFF
	if db.store != nil {
		limit = layout.MaxClasses(db.def.BlockSize)
	}
	if len(db.classes) >= limit {
		return 0, newError(RetCInvalidDef, "database holds at most %d classes", limit)
	}

	h := ClassHandle(len(db.classes))
	c := newClass(db, h, def)
	if db.store != nil {
		db.store.addClass()
	}
	if err := c.addPage(); err != nil {
		if db.store != nil {
			db.store.dropClass()
		}
		return 0, err
	}
	for i := 1; i < def.InitBlocks; i++ {
		if _, err := c.formatNext(); err != nil {
			Logger.Warningf("class %s: formatted %d of %d initial blocks: %v", def.Name, i, def.InitBlocks, err)
			break
		}
	}

	db.classes = append(db.classes, c)
	db.names.Store(def.Name, h)
	db.stats.registerClass(c)
	Logger.Infof("created class %d: %s", h, def)
	return h, db.checkpoint()
}

// ClassFind returns the handle of the class with the given name
func (db *DB) ClassFind(name string) (ClassHandle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrInvalidHandle
	}
	h, ok := db.names.Load(name)
	if !ok {
		return 0, newError(RetCEntryNotFound, "class %s not found", name)
	}
	return h, nil
}

// ClassInfo returns the definition and allocator state of a class
func (db *DB) ClassInfo(h ClassHandle) (ClassInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return ClassInfo{}, err
	}
	return c.info()
}

// --------------------------------------------------------------------------
// Objects
// --------------------------------------------------------------------------

// Insert places a zeroed object. The size is ignored for fixed size classes.
// Unique classes need the payload up front and only accept InsertData.
//
// When the insert triggers an implicit flush that fails, the placed object
// is returned together with an ErrFlushFailed error. The object stays valid
// and is written by the next successful flush.
func (db *DB) Insert(h ClassHandle, size int) (Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return Object{}, err
	}
	if c.def.Unique {
		return Object{}, newError(RetCInvalidArgs, "class %s is unique, use InsertData", c.def.Name)
	}
	if !c.def.Variable {
		size = c.def.ObjSize
	}
	obj, err := c.insert(size)
	if err != nil {
		return Object{}, err
	}
	return obj, db.checkpoint()
}

// InsertData places an object holding a copy of data. Fixed size payloads
// shorter than the object size are zero padded. A failed implicit flush is
// reported like for Insert.
func (db *DB) InsertData(h ClassHandle, data []byte) (Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return Object{}, err
	}
	size := len(data)
	if !c.def.Variable {
		if size > c.def.ObjSize {
			return Object{}, newError(RetCInvalidSize, "class %s: %d bytes exceed the object size %d", c.def.Name, size, c.def.ObjSize)
		}
		size = c.def.ObjSize
	}
	if c.unique != nil && c.unique.Has(uniqueEntry{key: c.key(data)}) {
		return Object{}, newError(RetCEntryExists, "class %s already holds this key", c.def.Name)
	}

	obj, err := c.insert(size)
	if err != nil {
		return Object{}, err
	}
	copy(obj.Data, data)
	if c.unique != nil {
		c.index(obj)
	}
	return obj, db.checkpoint()
}

// Get returns the live object named by id
func (db *DB) Get(h ClassHandle, id RowID) (Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return Object{}, err
	}
	blk, s, err := c.locate(id)
	if err != nil {
		return Object{}, err
	}
	return c.object(blk, int(id.Offset), s), nil
}

// Delete removes the object named by id. An id that does not name a live
// object of the class fails with ErrInvalidObject and changes nothing. An
// ErrFlushFailed error means the object is deleted but not yet written.
func (db *DB) Delete(h ClassHandle, id RowID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return err
	}
	blk, s, err := c.locate(id)
	if err != nil {
		return err
	}
	c.delete(blk, int(id.Offset), s)
	return db.checkpoint()
}

// ObjectFind looks up the object with the given payload in a unique class
func (db *DB) ObjectFind(h ClassHandle, key []byte) (Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, err := db.class(h)
	if err != nil {
		return Object{}, err
	}
	if c.unique == nil {
		return Object{}, newError(RetCInvalidArgs, "class %s is not unique", c.def.Name)
	}
	e, ok := c.unique.Get(uniqueEntry{key: c.key(key)})
	if !ok {
		return Object{}, newError(RetCEntryNotFound, "key not found in class %s", c.def.Name)
	}
	blk, s, err := c.locate(e.id)
	if err != nil {
		return Object{}, err
	}
	return c.object(blk, int(e.id.Offset), s), nil
}
