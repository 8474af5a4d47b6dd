// Package fio provides the block I/O layer of durable databases: the
// IOManager abstraction with a regular file and a direct I/O implementation,
// a retrying wrapper and the file lock that keeps a database file exclusive
// to one process.
package fio
