package fio

import "github.com/lni/dragonboat/v4/logger"

var Logger = logger.GetLogger("fio")

// IOManager is the block device used by a durable database. Offsets and
// buffer lengths passed by the database are multiples of its block size.
type IOManager interface {
	ReadAt([]byte, int64) (int, error)
	WriteAt([]byte, int64) (int, error)
	Size() (int64, error)
	Sync() error
	Close() error
}

// FileLocker guards a database file against a second writer
type FileLocker interface {
	TryLock() (bool, error)
	Unlock() error
}
