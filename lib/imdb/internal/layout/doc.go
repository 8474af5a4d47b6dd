// Package layout defines the persisted byte layout of the database: header
// size profiles, block, page and class headers, slot headers and the
// superblock of a database file. All multi-byte fields are little-endian.
package layout
