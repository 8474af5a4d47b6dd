package imdb

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ClassHandle identifies a class of a database. Handles are class indices,
// they stay valid across reopening a durable database.
type ClassHandle uint16

// CursorHandle identifies an open cursor
type CursorHandle uint64

// RowID addresses one object inside its class
type RowID struct {
	Class  ClassHandle
	Page   uint16
	Block  uint16
	Offset uint32
}

func (id RowID) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", id.Class, id.Page, id.Block, id.Offset)
}

// ParseRowID parses the "class:page:block:offset" form returned by String
func ParseRowID(s string) (RowID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return RowID{}, newError(RetCInvalidArgs, "rowid %q is not class:page:block:offset", s)
	}
	var v [4]uint64
	for i, p := range parts {
		bits := 16
		if i == 3 {
			bits = 32
		}
		n, err := strconv.ParseUint(p, 10, bits)
		if err != nil {
			return RowID{}, newError(RetCInvalidArgs, "rowid %q: %v", s, err)
		}
		v[i] = n
	}
	return RowID{Class: ClassHandle(v[0]), Page: uint16(v[1]), Block: uint16(v[2]), Offset: uint32(v[3])}, nil
}

// Encode returns the persisted form of the id, its length is the RowID size
// of the profile. The small-RAM form omits the class.
//
//	standard:  [0:2] class  [2:4] page  [4:6] block  [6:10] offset  [10:16] reserved
//	small-ram: [0] page  [1] block  [2:4] offset
func (id RowID) Encode(p Profile) []byte {
	b := make([]byte, p.Sizes().RowID)
	if p == ProfileSmallRAM {
		b[0] = uint8(id.Page)
		b[1] = uint8(id.Block)
		binary.LittleEndian.PutUint16(b[2:4], uint16(id.Offset))
		return b
	}
	binary.LittleEndian.PutUint16(b[0:2], uint16(id.Class))
	binary.LittleEndian.PutUint16(b[2:4], id.Page)
	binary.LittleEndian.PutUint16(b[4:6], id.Block)
	binary.LittleEndian.PutUint32(b[6:10], id.Offset)
	return b
}

// DecodeRowID parses an encoded id. Small-RAM ids carry no class, it is
// taken from class.
func DecodeRowID(p Profile, class ClassHandle, b []byte) (RowID, error) {
	if len(b) != p.Sizes().RowID {
		return RowID{}, newError(RetCInvalidObject, "rowid of %d bytes, want %d", len(b), p.Sizes().RowID)
	}
	if p == ProfileSmallRAM {
		return RowID{
			Class:  class,
			Page:   uint16(b[0]),
			Block:  uint16(b[1]),
			Offset: uint32(binary.LittleEndian.Uint16(b[2:4])),
		}, nil
	}
	return RowID{
		Class:  ClassHandle(binary.LittleEndian.Uint16(b[0:2])),
		Page:   binary.LittleEndian.Uint16(b[2:4]),
		Block:  binary.LittleEndian.Uint16(b[4:6]),
		Offset: binary.LittleEndian.Uint32(b[6:10]),
	}, nil
}

// Object is a placed object. Data is a view into the block holding the
// object; it stays valid until the object is deleted or its block recycled.
type Object struct {
	ID   RowID
	Data []byte
}
