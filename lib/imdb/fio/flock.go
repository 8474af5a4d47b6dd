package fio

import "github.com/gofrs/flock"

const flockSuffix = ".lock"

// NewFlock returns the lock guarding the database file at path
func NewFlock(path string) *flock.Flock {
	return flock.New(path + flockSuffix)
}
