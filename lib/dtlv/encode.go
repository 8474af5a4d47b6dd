package dtlv

import "encoding/binary"

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// GroupHandle identifies an open group or list returned by EncodeGrouping and
// EncodeList. It has to be passed to GroupDone to close the group.
type GroupHandle struct {
	depth  int
	offset int
}

type openGroup struct {
	offset int
	code   NSCode
	list   bool
	elem   DataType
}

// Encoder appends AVPs to a caller owned buffer. The encoder never grows the
// buffer: a record that does not fit fails with ErrBufferOverflow and leaves
// the encoded data untouched.
//
// Thread-safety: an Encoder must not be used concurrently.
type Encoder struct {
	buf   []byte
	n     int
	stack []openGroup
}

// NewEncoder returns an encoder writing into buf. The capacity of the
// encoder is len(buf).
func NewEncoder(buf []byte) *Encoder {
	e := &Encoder{}
	e.Reset(buf)
	return e
}

// Reset discards all encoded data and open groups and binds the encoder to buf
func (e *Encoder) Reset(buf []byte) {
	e.buf = buf
	e.n = 0
	e.stack = e.stack[:0]
}

// Len returns the number of bytes encoded so far
func (e *Encoder) Len() int { return e.n }

// Cap returns the capacity of the underlying buffer
func (e *Encoder) Cap() int { return len(e.buf) }

// Bytes returns the encoded data. Groups that are still open carry a
// placeholder length until GroupDone is called.
func (e *Encoder) Bytes() []byte { return e.buf[:e.n] }

// Depth returns the number of open groups
func (e *Encoder) Depth() int { return len(e.stack) }

// EncodeUint8 appends a one byte integer
func (e *Encoder) EncodeUint8(c NSCode, v uint8) error {
	return e.Encode(c, TypeInteger, []byte{v})
}

// EncodeUint16 appends a big-endian two byte integer
func (e *Encoder) EncodeUint16(c NSCode, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return e.Encode(c, TypeInteger, b[:])
}

// EncodeUint32 appends a big-endian four byte integer
func (e *Encoder) EncodeUint32(c NSCode, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.Encode(c, TypeInteger, b[:])
}

// EncodeChar appends a NUL terminated string, the terminator is part of the payload
func (e *Encoder) EncodeChar(c NSCode, s string) error {
	if err := e.check(c, TypeChar, len(s)+1); err != nil {
		return err
	}
	e.writeHeader(c, TypeChar, false, HeaderSize+len(s)+1)
	e.n += copy(e.buf[e.n:], s)
	e.buf[e.n] = 0
	e.n++
	return nil
}

// EncodeOctets appends an opaque byte blob. Empty blobs are valid.
func (e *Encoder) EncodeOctets(c NSCode, b []byte) error {
	return e.Encode(c, TypeOctets, b)
}

// Encode appends one record of the given type with payload as its content.
// A TypeObject record with a payload takes it as an already encoded AVP
// sequence. Without a payload it opens a group like EncodeGrouping, the
// following records nest into it until GroupDone(e.Innermost()) closes it.
func (e *Encoder) Encode(c NSCode, t DataType, payload []byte) error {
	if !t.valid() {
		return newError(RetCInvalidArgs, "unknown data type %d", t)
	}
	if t == TypeObject && payload == nil {
		_, err := e.open(c, TypeObject, false)
		return err
	}
	if err := e.check(c, t, len(payload)); err != nil {
		return err
	}
	e.writeHeader(c, t, false, HeaderSize+len(payload))
	e.n += copy(e.buf[e.n:], payload)
	return nil
}

// EncodeGrouping opens a nested object. All following records are written
// into the object until GroupDone is called with the returned handle.
func (e *Encoder) EncodeGrouping(c NSCode) (GroupHandle, error) {
	return e.open(c, TypeObject, false)
}

// EncodeList opens a homogeneous list of elem values. Only records with the
// list's own code and element type may be encoded while the list is open.
func (e *Encoder) EncodeList(c NSCode, elem DataType) (GroupHandle, error) {
	if !elem.valid() || elem == TypeUndefined {
		return GroupHandle{}, newError(RetCInvalidArgs, "invalid list element type %s", elem)
	}
	return e.open(c, elem, true)
}

// Innermost returns the handle of the innermost open group. With no open
// group the zero handle is returned, which GroupDone rejects.
func (e *Encoder) Innermost() GroupHandle {
	n := len(e.stack)
	if n == 0 {
		return GroupHandle{}
	}
	return GroupHandle{depth: n, offset: e.stack[n-1].offset}
}

// GroupDone closes the innermost open group and patches its length.
// Closing any other group fails with ErrPathError.
func (e *Encoder) GroupDone(g GroupHandle) error {
	top := len(e.stack) - 1
	if top < 0 || g.depth != top+1 || e.stack[top].offset != g.offset {
		return newError(RetCPathError, "group at offset %d is not the innermost open group", g.offset)
	}
	og := e.stack[top]
	e.stack = e.stack[:top]

	w0 := binary.BigEndian.Uint16(e.buf[og.offset:])
	w0 = w0&^lenMask | uint16(e.n-og.offset)
	binary.BigEndian.PutUint16(e.buf[og.offset:], w0)
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (e *Encoder) open(c NSCode, t DataType, list bool) (GroupHandle, error) {
	if n := len(e.stack); list && n > 0 && e.stack[n-1].list {
		return GroupHandle{}, newError(RetCPathError, "cannot open list %s inside list %s", c, e.stack[n-1].code)
	}
	if err := e.check(c, t, 0); err != nil {
		return GroupHandle{}, err
	}
	off := e.n
	e.writeHeader(c, t, list, HeaderSize)
	e.stack = append(e.stack, openGroup{offset: off, code: c, list: list, elem: t})
	return GroupHandle{depth: len(e.stack), offset: off}, nil
}

// check validates that a record with payloadLen bytes can be appended as a
// whole: inside the buffer, inside the length limit of every open group, and
// matching an open list.
func (e *Encoder) check(c NSCode, t DataType, payloadLen int) error {
	if !c.valid() {
		return newError(RetCInvalidArgs, "code %d.%d out of range", c.Namespace, c.Code)
	}
	if n := len(e.stack); n > 0 && e.stack[n-1].list {
		top := e.stack[n-1]
		if c != top.code || t != top.elem {
			return newError(RetCPathError, "cannot encode %s (%s) into list %s of %s", c, t, top.code, top.elem)
		}
	}
	size := HeaderSize + payloadLen
	if size > MaxAVPLength {
		return newError(RetCBufferOverflow, "avp %s of %d bytes exceeds %d", c, size, MaxAVPLength)
	}
	end := e.n + size
	if end > len(e.buf) {
		return newError(RetCBufferOverflow, "need %d bytes, %d available", size, len(e.buf)-e.n)
	}
	for _, g := range e.stack {
		if end-g.offset > MaxAVPLength {
			return newError(RetCBufferOverflow, "group %s would exceed %d bytes", g.code, MaxAVPLength)
		}
	}
	return nil
}

func (e *Encoder) writeHeader(c NSCode, t DataType, list bool, length int) {
	header{dtype: t, list: list, length: length, code: c}.put(e.buf[e.n:])
	e.n += HeaderSize
}
