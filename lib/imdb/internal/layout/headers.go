package layout

import (
	"encoding/binary"
	"errors"
)

var le = binary.LittleEndian

// ErrBadMagic is returned when a header does not carry its magic number
var ErrBadMagic = errors.New("bad header magic")

// ErrHeaderCRC is returned when a header checksum does not match
var ErrHeaderCRC = errors.New("header checksum mismatch")

// --------------------------------------------------------------------------
// Block header
// --------------------------------------------------------------------------

// Block flags
const (
	BlockFormatted uint8 = 1 << iota
)

// BlockHeader is stored at offset 0 of every block.
//
// Standard layout (24 bytes):
//
//	[0:4] crc  [4:8] seq  [8:10] page  [10:12] block  [12:14] used  [14] flags
//
// Small-RAM layout (8 bytes):
//
//	[0:4] seq  [4:6] used  [6] flags
type BlockHeader struct {
	CRC   uint32
	Seq   uint32
	Page  uint16
	Block uint16
	Used  uint16
	Flags uint8
}

// Put writes the header into the start of b
func (h BlockHeader) Put(p Profile, b []byte) {
	clear(b[:p.Sizes().BlockHeader])
	if p == SmallRAM {
		le.PutUint32(b[0:4], h.Seq)
		le.PutUint16(b[4:6], h.Used)
		b[6] = h.Flags
		return
	}
	le.PutUint32(b[0:4], h.CRC)
	le.PutUint32(b[4:8], h.Seq)
	le.PutUint16(b[8:10], h.Page)
	le.PutUint16(b[10:12], h.Block)
	le.PutUint16(b[12:14], h.Used)
	b[14] = h.Flags
}

// ParseBlockHeader reads the header at the start of b
func ParseBlockHeader(p Profile, b []byte) BlockHeader {
	if p == SmallRAM {
		return BlockHeader{
			Seq:   le.Uint32(b[0:4]),
			Used:  le.Uint16(b[4:6]),
			Flags: b[6],
		}
	}
	return BlockHeader{
		CRC:   le.Uint32(b[0:4]),
		Seq:   le.Uint32(b[4:8]),
		Page:  le.Uint16(b[8:10]),
		Block: le.Uint16(b[10:12]),
		Used:  le.Uint16(b[12:14]),
		Flags: b[14],
	}
}

// StampBlockCRC computes the checksum over the block past the crc field and
// stores it. It is a no-op for profiles without block checksums.
func StampBlockCRC(p Profile, b []byte) {
	if p.HasBlockCRC() {
		le.PutUint32(b[0:4], Checksum(b[4:]))
	}
}

// VerifyBlockCRC reports whether the stored block checksum matches
func VerifyBlockCRC(p Profile, b []byte) bool {
	if !p.HasBlockCRC() {
		return true
	}
	return CheckChecksum(le.Uint32(b[0:4]), b[4:])
}

// --------------------------------------------------------------------------
// Page header
// --------------------------------------------------------------------------

const pageMagic uint32 = 0x31475049 // "IPG1"

// PageHeader follows the block header in the first block of every page.
//
//	[0:4] magic  [4:6] class  [6:8] page  [8:10] blocks  [10:12] formatted
//	[12:20] next page offset  [20:28] own offset  [28:32] header crc
type PageHeader struct {
	Class     uint16
	Page      uint16
	Blocks    uint16
	Formatted uint16
	Next      uint64
	Self      uint64
}

const pageHeaderFields = 32

// Put writes the page header into a block buffer
func (h PageHeader) Put(p Profile, block []byte) {
	b := block[p.Sizes().BlockHeader:]
	le.PutUint32(b[0:4], pageMagic)
	le.PutUint16(b[4:6], h.Class)
	le.PutUint16(b[6:8], h.Page)
	le.PutUint16(b[8:10], h.Blocks)
	le.PutUint16(b[10:12], h.Formatted)
	le.PutUint64(b[12:20], h.Next)
	le.PutUint64(b[20:28], h.Self)
	le.PutUint32(b[28:32], Checksum(b[0:28]))
}

// ParsePageHeader reads the page header of a block buffer. verify enables
// the header checksum check.
func ParsePageHeader(p Profile, block []byte, verify bool) (PageHeader, error) {
	b := block[p.Sizes().BlockHeader:]
	if le.Uint32(b[0:4]) != pageMagic {
		return PageHeader{}, ErrBadMagic
	}
	if verify && !CheckChecksum(le.Uint32(b[28:32]), b[0:28]) {
		return PageHeader{}, ErrHeaderCRC
	}
	return PageHeader{
		Class:     le.Uint16(b[4:6]),
		Page:      le.Uint16(b[6:8]),
		Blocks:    le.Uint16(b[8:10]),
		Formatted: le.Uint16(b[10:12]),
		Next:      le.Uint64(b[12:20]),
		Self:      le.Uint64(b[20:28]),
	}, nil
}

// --------------------------------------------------------------------------
// Class header
// --------------------------------------------------------------------------

const classMagic uint32 = 0x31534c43 // "CLS1"

// Class flags
const (
	ClassRecycle uint8 = 1 << iota
	ClassVariable
	ClassUnique
	ClassAppendOnly
)

// ClassHeader follows the page header in the first block of a class.
//
//	[0:4] magic  [4:6] class  [6] flags  [7] name length  [8:40] name
//	[40:42] pages max  [42:44] page blocks  [44:48] object size
//	[48:50] init blocks  [50:52] pages  [52:56] seq  [56:64] name hash
//	[64:68] header crc
type ClassHeader struct {
	Class      uint16
	Flags      uint8
	Name       string
	PagesMax   uint16
	PageBlocks uint16
	ObjSize    uint32
	InitBlocks uint16
	Pages      uint16
	Seq        uint32
	NameHash   uint64
}

const classHeaderFields = 68

// Put writes the class header into a block buffer
func (h ClassHeader) Put(p Profile, block []byte) {
	b := block[p.Sizes().PageHeader:]
	clear(b[:classHeaderFields])
	le.PutUint32(b[0:4], classMagic)
	le.PutUint16(b[4:6], h.Class)
	b[6] = h.Flags
	b[7] = uint8(copy(b[8:8+ClassNameMax], h.Name))
	le.PutUint16(b[40:42], h.PagesMax)
	le.PutUint16(b[42:44], h.PageBlocks)
	le.PutUint32(b[44:48], h.ObjSize)
	le.PutUint16(b[48:50], h.InitBlocks)
	le.PutUint16(b[50:52], h.Pages)
	le.PutUint32(b[52:56], h.Seq)
	le.PutUint64(b[56:64], h.NameHash)
	le.PutUint32(b[64:68], Checksum(b[0:64]))
}

// ParseClassHeader reads the class header of a block buffer
func ParseClassHeader(p Profile, block []byte, verify bool) (ClassHeader, error) {
	b := block[p.Sizes().PageHeader:]
	if le.Uint32(b[0:4]) != classMagic {
		return ClassHeader{}, ErrBadMagic
	}
	if verify && !CheckChecksum(le.Uint32(b[64:68]), b[0:64]) {
		return ClassHeader{}, ErrHeaderCRC
	}
	n := int(b[7])
	if n > ClassNameMax {
		n = ClassNameMax
	}
	return ClassHeader{
		Class:      le.Uint16(b[4:6]),
		Flags:      b[6],
		Name:       string(b[8 : 8+n]),
		PagesMax:   le.Uint16(b[40:42]),
		PageBlocks: le.Uint16(b[42:44]),
		ObjSize:    le.Uint32(b[44:48]),
		InitBlocks: le.Uint16(b[48:50]),
		Pages:      le.Uint16(b[50:52]),
		Seq:        le.Uint32(b[52:56]),
		NameHash:   le.Uint64(b[56:64]),
	}, nil
}

// --------------------------------------------------------------------------
// Slot header
// --------------------------------------------------------------------------

// SlotState is the state of a slot
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotUsed
	SlotDead
)

const (
	fixedUsed    = 0x8000
	fixedDead    = 0x4000
	varUsed      = 0x80000000
	varDead      = 0x40000000
	varLenMask   = 0x3FFFFFFF
	fixedLenMask = 0x3FFF
)

// Slot describes one slot: its total footprint including the header, its
// state and the payload length of used or dead slots.
type Slot struct {
	Size   int
	State  SlotState
	Length int
}

// PutSlot writes a slot header at the start of b
func PutSlot(b []byte, variable bool, s Slot) {
	if variable {
		st := uint32(s.Length) & varLenMask
		switch s.State {
		case SlotUsed:
			st |= varUsed
		case SlotDead:
			st |= varDead
		default:
			st = 0
		}
		le.PutUint32(b[0:4], uint32(s.Size))
		le.PutUint32(b[4:8], st)
		return
	}
	st := uint16(s.Length) & fixedLenMask
	switch s.State {
	case SlotUsed:
		st |= fixedUsed
	case SlotDead:
		st |= fixedDead
	default:
		st = 0
	}
	le.PutUint16(b[0:2], uint16(s.Size))
	le.PutUint16(b[2:4], st)
}

// ParseSlot reads the slot header at the start of b
func ParseSlot(b []byte, variable bool) Slot {
	if variable {
		st := le.Uint32(b[4:8])
		s := Slot{Size: int(le.Uint32(b[0:4])), Length: int(st & varLenMask)}
		switch {
		case st&varUsed != 0:
			s.State = SlotUsed
		case st&varDead != 0:
			s.State = SlotDead
		default:
			s.Length = 0
		}
		return s
	}
	st := le.Uint16(b[2:4])
	s := Slot{Size: int(le.Uint16(b[0:2])), Length: int(st & fixedLenMask)}
	switch {
	case st&fixedUsed != 0:
		s.State = SlotUsed
	case st&fixedDead != 0:
		s.State = SlotDead
	default:
		s.Length = 0
	}
	return s
}

// --------------------------------------------------------------------------
// Superblock
// --------------------------------------------------------------------------

const (
	superMagic = "IMDBFILE"
	// Version is the file format version
	Version uint8 = 1
	// superFixed is the size of the superblock fields before the class table
	superFixed = 44
)

// Superblock is the first block of a database file.
//
//	[0:8] magic  [8] version  [9] profile  [10] crc policy  [12:16] block size
//	[16:32] instance id  [32:40] next free offset  [40:42] class count
//	[44:...] first page offset per class  [size-4:size] crc
type Superblock struct {
	Version    uint8
	Profile    Profile
	CRC        uint8
	BlockSize  uint32
	ID         [16]byte
	NextOffset uint64
	Classes    []uint64
}

// MaxClasses returns how many classes fit into a superblock of blockSize bytes
func MaxClasses(blockSize int) int {
	return (blockSize - superFixed - 4) / 8
}

// Put writes the superblock into b, len(b) is the block size
func (s Superblock) Put(b []byte) {
	clear(b)
	copy(b[0:8], superMagic)
	b[8] = s.Version
	b[9] = uint8(s.Profile)
	b[10] = s.CRC
	le.PutUint32(b[12:16], s.BlockSize)
	copy(b[16:32], s.ID[:])
	le.PutUint64(b[32:40], s.NextOffset)
	le.PutUint16(b[40:42], uint16(len(s.Classes)))
	for i, off := range s.Classes {
		le.PutUint64(b[superFixed+8*i:], off)
	}
	n := len(b)
	le.PutUint32(b[n-4:], Checksum(b[:n-4]))
}

// PeekBlockSize returns the block size stored in a superblock prefix of at
// least superFixed bytes
func PeekBlockSize(b []byte) (int, error) {
	if len(b) < superFixed || string(b[0:8]) != superMagic {
		return 0, ErrBadMagic
	}
	return int(le.Uint32(b[12:16])), nil
}

// ParseSuperblock reads a superblock, len(b) is the block size
func ParseSuperblock(b []byte) (Superblock, error) {
	if len(b) < superFixed+4 || string(b[0:8]) != superMagic {
		return Superblock{}, ErrBadMagic
	}
	n := len(b)
	if !CheckChecksum(le.Uint32(b[n-4:]), b[:n-4]) {
		return Superblock{}, ErrHeaderCRC
	}
	s := Superblock{
		Version:    b[8],
		Profile:    Profile(b[9]),
		CRC:        b[10],
		BlockSize:  le.Uint32(b[12:16]),
		NextOffset: le.Uint64(b[32:40]),
	}
	copy(s.ID[:], b[16:32])
	count := int(le.Uint16(b[40:42]))
	if count > MaxClasses(n) {
		return Superblock{}, ErrBadMagic
	}
	s.Classes = make([]uint64, count)
	for i := range s.Classes {
		s.Classes[i] = le.Uint64(b[superFixed+8*i:])
	}
	return s, nil
}
