// Package util contains helpers shared by the database engine: the
// recycle queue (MapHeap), size and distribution statistics reported in
// class info, and string hashing.
package util
