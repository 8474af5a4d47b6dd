package layout

import (
	"fmt"
	"hash/crc32"
)

// --------------------------------------------------------------------------
// Profiles
// --------------------------------------------------------------------------

// Profile selects a frozen set of header sizes
type Profile uint8

const (
	// Standard is the default layout with per-block checksums
	Standard Profile = iota
	// SmallRAM shrinks block and page headers, it carries no block checksum
	SmallRAM
)

// Sizes holds the byte sizes of all persisted structures of a profile.
// ClassHeader and PageHeader include the headers nested in them.
type Sizes struct {
	ClassHeader int `json:"class_header"`
	PageHeader  int `json:"page_header"`
	BlockHeader int `json:"block_header"`
	RowID       int `json:"rowid"`
	Cursor      int `json:"cursor"`
}

var profileSizes = map[Profile]Sizes{
	Standard: {ClassHeader: 128, PageHeader: 56, BlockHeader: 24, RowID: 16, Cursor: 56},
	SmallRAM: {ClassHeader: 128, PageHeader: 48, BlockHeader: 8, RowID: 4, Cursor: 40},
}

// Valid reports whether p names a known profile
func (p Profile) Valid() bool {
	_, ok := profileSizes[p]
	return ok
}

// Sizes returns the header sizes of the profile
func (p Profile) Sizes() Sizes {
	return profileSizes[p]
}

// HasBlockCRC reports whether blocks of this profile carry a checksum field
func (p Profile) HasBlockCRC() bool {
	return p == Standard
}

func (p Profile) String() string {
	switch p {
	case Standard:
		return "standard"
	case SmallRAM:
		return "small-ram"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// ParseProfile converts a profile name into a Profile
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "", "standard":
		return Standard, nil
	case "small-ram", "small":
		return SmallRAM, nil
	}
	return 0, fmt.Errorf("invalid profile: %s. must be one of standard, small-ram", s)
}

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// Align is the alignment of block sizes, object sizes and slot offsets
	Align = 4
	// SlotHeaderFixed is the slot header size of fixed size classes
	SlotHeaderFixed = 4
	// SlotHeaderVariable is the slot header size of variable size classes
	SlotHeaderVariable = 8
	// ClassNameMax is the maximum length of a class name
	ClassNameMax = 32

	// MinBlockSize and MaxBlockSize bound the configurable block size
	MinBlockSize = 256
	MaxBlockSize = 32768
)

// AlignUp rounds n up to the next multiple of Align
func AlignUp(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// SlotHeaderSize returns the slot header size for fixed or variable classes
func SlotHeaderSize(variable bool) int {
	if variable {
		return SlotHeaderVariable
	}
	return SlotHeaderFixed
}

// --------------------------------------------------------------------------
// Checksums
// --------------------------------------------------------------------------

// Checksum returns the CRC-32 (IEEE) of data
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CheckChecksum reports whether data matches crc
func CheckChecksum(crc uint32, data []byte) bool {
	return Checksum(data) == crc
}
