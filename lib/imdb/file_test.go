package imdb

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/imdb/lib/imdb/fio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func durableDef(t *testing.T) DBDef {
	return DBDef{
		BlockSize: 4096,
		Durable:   true,
		Path:      filepath.Join(t.TempDir(), "test.imdb"),
	}
}

func sumValues(t *testing.T, db *DB, h ClassHandle) (count, sum int) {
	t.Helper()
	err := db.Forall(h, func(obj Object) error {
		count++
		sum += int(binary.LittleEndian.Uint16(obj.Data))
		return nil
	})
	require.NoError(t, err)
	return count, sum
}

func TestReopen(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	id := db.ID()

	_, err = db.ClassCreate(ClassDef{Name: "first", ObjSize: 64})
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "second", Variable: true})
	require.NoError(t, err)
	for _, v := range []uint16{1, 3} {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		_, err := db.InsertData(h, b)
		require.NoError(t, err)
	}
	require.NoError(t, db.Done())

	// the block size is taken from the file
	def.BlockSize = 0
	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()

	assert.Equal(t, id, db.ID())
	assert.Equal(t, 4096, db.Def().BlockSize)

	found, err := db.ClassFind("second")
	require.NoError(t, err)
	assert.Equal(t, h, found)

	count, sum := sumValues(t, db, found)
	assert.Equal(t, 2, count)
	assert.Equal(t, 4, sum)

	ci, err := db.ClassInfo(found)
	require.NoError(t, err)
	assert.Equal(t, 2, ci.Objects)
	assert.Equal(t, 1, ci.SlotsFree)
	assert.Equal(t, 4096-128-2*12, ci.SlotsFreeSize)

	info, err := db.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Stats.HeaderRead)
	assert.Greater(t, info.Stats.BlockRead, uint64(0))
}

func TestReopenRecycle(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "ring", ObjSize: 1024, Recycle: true, PagesMax: 1, PageBlocks: 4})
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(i))
		_, err := db.InsertData(h, b)
		require.NoError(t, err)
	}
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()

	ci, err := db.ClassInfo(h)
	require.NoError(t, err)
	assert.Equal(t, 10, ci.Objects)
	assert.Equal(t, 1, ci.SlotsFree)
	assert.Equal(t, 4072-1028, ci.SlotsFreeSize)

	// the newest block is filled on
	obj, err := db.InsertData(h, []byte{16, 0})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), obj.ID.Block)

	var first []int
	require.NoError(t, db.Forall(h, func(obj Object) error {
		first = append(first, int(binary.LittleEndian.Uint16(obj.Data)))
		return nil
	}))
	require.Len(t, first, 11)
	assert.Equal(t, []int{16, 15, 14, 13, 12}, first[:5])
}

func TestReopenUnique(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "keys", Variable: true, Unique: true})
	require.NoError(t, err)
	obj, err := db.InsertData(h, []byte("alpha"))
	require.NoError(t, err)
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()

	_, err = db.InsertData(h, []byte("alpha"))
	assert.ErrorIs(t, err, ErrEntryExists)
	found, err := db.ObjectFind(h, []byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, obj.ID, found.ID)
}

func TestCRCMismatch(t *testing.T) {
	def := durableDef(t)
	def.CRC = CRCWrite
	db, err := Open(def)
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "var", Variable: true})
	require.NoError(t, err)
	obj, err := db.InsertData(h, []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, db.Done())

	// flip a payload byte of the first object
	f, err := os.OpenFile(def.Path, os.O_RDWR, 0)
	require.NoError(t, err)
	off := int64(def.BlockSize) + int64(obj.ID.Offset) + 8 + 4
	_, err = f.WriteAt([]byte{'X'}, off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	def.CRC = CRCReadWrite
	_, err = Open(def)
	assert.ErrorIs(t, err, ErrCRCMismatch)

	// without verification the corrupted payload is loaded
	def.CRC = CRCNone
	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()
	assert.Equal(t, CRCWrite, db.Def().CRC)
	got, err := db.Get(h, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "hellX world", string(got.Data))
}

func TestCRCRestamp(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "var", Variable: true})
	require.NoError(t, err)
	_, err = db.InsertData(h, []byte("unstamped"))
	require.NoError(t, err)
	require.NoError(t, db.Done())

	// blocks written without checksum are stamped on the next flush
	def.CRC = CRCReadWrite
	db, err = Open(def)
	require.NoError(t, err)
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()
	ci, err := db.ClassInfo(h)
	require.NoError(t, err)
	assert.Equal(t, 1, ci.Objects)
}

func TestLocked(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)

	_, err = Open(def)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, db.Done())
	db, err = Open(def)
	require.NoError(t, err)
	require.NoError(t, db.Done())
}

func TestBlockSizeMismatch(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	require.NoError(t, db.Done())

	def.BlockSize = 8192
	_, err = Open(def)
	assert.ErrorIs(t, err, ErrInvalidDef)
}

func TestNotADatabase(t *testing.T) {
	def := durableDef(t)
	require.NoError(t, os.WriteFile(def.Path, []byte("definitely not a database file, but long enough to peek"), 0644))
	_, err := Open(def)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestImplicitFlush(t *testing.T) {
	def := durableDef(t)
	def.RecoveryPages = 1
	db, err := Open(def)
	require.NoError(t, err)
	defer db.Done()

	h, err := db.ClassCreate(ClassDef{Name: "fixed", ObjSize: 1024, PageBlocks: 1})
	require.NoError(t, err)
	info, err := db.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Stats.BlockWrite)

	for i := 0; i < 4; i++ {
		_, err := db.Insert(h, 0)
		require.NoError(t, err)
	}
	info, err = db.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Classes[h].Pages)
	assert.Equal(t, uint64(2), info.Stats.BlockWrite)
	assert.Equal(t, uint64(2), info.Stats.HeaderWrite)
}

// faultyIO fails the first writes with a transient error
type faultyIO struct {
	fio.IOManager
	failWrites int
}

var errTransient = errors.New("transient write error")

func (f *faultyIO) WriteAt(data []byte, offset int64) (int, error) {
	if f.failWrites > 0 {
		f.failWrites--
		return 0, errTransient
	}
	return f.IOManager.WriteAt(data, offset)
}

func TestRetriedIO(t *testing.T) {
	def := durableDef(t)
	def.Retries = 3
	def.RetryBackoff = time.Millisecond

	file, err := fio.NewFileIO(def.Path)
	require.NoError(t, err)
	db, err := Open(def, WithIOManager(&faultyIO{IOManager: file, failWrites: 2}))
	require.NoError(t, err)
	require.NoError(t, db.Done())

	def.Path = filepath.Join(t.TempDir(), "broken.imdb")
	file, err = fio.NewFileIO(def.Path)
	require.NoError(t, err)
	_, err = Open(def, WithIOManager(&faultyIO{IOManager: file, failWrites: 100}))
	assert.ErrorIs(t, err, ErrIOError)
	assert.ErrorIs(t, err, errTransient)
}

func TestBackedDurable(t *testing.T) {
	backing, err := Open(DBDef{BlockSize: 16384})
	require.NoError(t, err)
	defer backing.Done()

	def := durableDef(t)
	db, err := Open(def, WithBacking(backing))
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "var", Variable: true})
	require.NoError(t, err)
	_, err = db.InsertData(h, []byte{2, 0})
	require.NoError(t, err)

	info, err := backing.Info()
	require.NoError(t, err)
	require.Len(t, info.Classes, 1)
	assert.Equal(t, 1, info.Classes[0].Objects)
	require.NoError(t, db.Done())

	info, err = backing.Info()
	require.NoError(t, err)
	assert.Equal(t, 0, info.Classes[0].Objects)

	db, err = Open(def, WithBacking(backing))
	require.NoError(t, err)
	defer db.Done()
	count, sum := sumValues(t, db, h)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, sum)
}

func TestReopenAfterDelete(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "var", Variable: true, PagesMax: 1, PageBlocks: 1})
	require.NoError(t, err)

	// three objects fill the first block without a remainder
	a, err := db.Insert(h, 1000)
	require.NoError(t, err)
	b, err := db.Insert(h, 1000)
	require.NoError(t, err)
	c, err := db.Insert(h, 4096-128-2*1008-8)
	require.NoError(t, err)
	copy(c.Data, "last")
	require.NoError(t, db.Delete(h, a.ID))
	require.NoError(t, db.Delete(h, b.ID))
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)

	// the free slots are loaded as they were written, not merged
	ci, err := db.ClassInfo(h)
	require.NoError(t, err)
	assert.Equal(t, 1, ci.Objects)
	assert.Equal(t, 2, ci.SlotsFree)
	assert.Equal(t, 2*1008, ci.SlotsFreeSize)
	_, err = db.Get(h, a.ID)
	assert.ErrorIs(t, err, ErrInvalidObject)

	// only both slots together hold the new object
	obj, err := db.Insert(h, 2000)
	require.NoError(t, err)
	assert.Equal(t, a.ID, obj.ID)
	ci, err = db.ClassInfo(h)
	require.NoError(t, err)
	assert.Equal(t, 2, ci.Objects)
	assert.Equal(t, 0, ci.SlotsFree)
	assert.Equal(t, 1, ci.FLSkipCount)
	_, err = db.Get(h, b.ID)
	assert.ErrorIs(t, err, ErrInvalidObject)
	copy(obj.Data, "merged")
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()
	ci, err = db.ClassInfo(h)
	require.NoError(t, err)
	assert.Equal(t, 2, ci.Objects)
	assert.Equal(t, 0, ci.SlotsFree)
	got, err := db.Get(h, a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Data, 2000)
	assert.Equal(t, "merged", string(got.Data[:6]))
	got, err = db.Get(h, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "last", string(got.Data[:4]))
}

func TestFlushCounters(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	h, err := db.ClassCreate(ClassDef{Name: "testobj", Variable: true, PagesMax: 3, PageBlocks: 8})
	require.NoError(t, err)
	_, err = db.ClassCreate(ClassDef{Name: "testobj2", Variable: true, PagesMax: 3, PageBlocks: 8})
	require.NoError(t, err)

	for i := 0; i < 128; i++ {
		b := make([]byte, 64*(1+i%16))
		binary.LittleEndian.PutUint16(b, uint16(i))
		_, err := db.InsertData(h, b)
		require.NoError(t, err)
	}
	require.NoError(t, db.Flush())

	// 19 blocks of the first class and one of the second, the superblock
	// once at creation and once now
	info, err := db.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), info.Stats.BlockWrite)
	assert.Equal(t, uint64(2), info.Stats.HeaderWrite)
	assert.Equal(t, uint64(0), info.Stats.HeaderRead)

	// a second flush has nothing to write
	require.NoError(t, db.Flush())
	info, err = db.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), info.Stats.BlockWrite)
	assert.Equal(t, uint64(2), info.Stats.HeaderWrite)
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()
	count, _ := sumValues(t, db, h)
	assert.Equal(t, 128, count)

	// unformatted blocks inside the file are read as well, those of the last
	// page past the end of the file are not
	info, err = db.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(27), info.Stats.BlockRead)
	assert.Equal(t, uint64(0), info.Stats.BlockWrite)

	require.NoError(t, db.Flush())
	info, err = db.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Stats.BlockWrite)
	assert.Equal(t, uint64(1), info.Stats.HeaderRead)
	assert.Equal(t, info.Stats.HeaderRead, info.Stats.HeaderWrite)
}

func TestCorruptedClassName(t *testing.T) {
	def := durableDef(t)
	db, err := Open(def)
	require.NoError(t, err)
	_, err = db.ClassCreate(ClassDef{Name: "names", Variable: true})
	require.NoError(t, err)
	nameOff := int64(def.BlockSize) + int64(db.Def().Profile.Sizes().PageHeader) + 8
	require.NoError(t, db.Done())

	f, err := os.OpenFile(def.Path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{'X'}, nameOff)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(def)
	assert.ErrorIs(t, err, ErrCorrupted)

	// the file is unlocked again after the failed open
	require.NoError(t, os.Remove(def.Path))
	db, err = Open(def)
	require.NoError(t, err)
	require.NoError(t, db.Done())
}

func TestImplicitFlushFailure(t *testing.T) {
	def := durableDef(t)
	def.RecoveryPages = 1

	file, err := fio.NewFileIO(def.Path)
	require.NoError(t, err)
	faulty := &faultyIO{IOManager: file}
	db, err := Open(def, WithIOManager(faulty))
	require.NoError(t, err)

	h, err := db.ClassCreate(ClassDef{Name: "fixed", ObjSize: 1024, PageBlocks: 1})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := db.InsertData(h, []byte{1, 0})
		require.NoError(t, err)
	}

	// the fourth object opens a second page and triggers a flush
	faulty.failWrites = 100
	obj, err := db.InsertData(h, []byte{2, 0})
	assert.ErrorIs(t, err, ErrFlushFailed)
	assert.ErrorIs(t, err, ErrIOError)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, uint16(1), obj.ID.Page)

	got, err := db.Get(h, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(2), got.Data[0])

	faulty.failWrites = 0
	require.NoError(t, db.Flush())
	require.NoError(t, db.Done())

	db, err = Open(def)
	require.NoError(t, err)
	defer db.Done()
	count, sum := sumValues(t, db, h)
	assert.Equal(t, 4, count)
	assert.Equal(t, 5, sum)
}
