package dtlv

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Wire constants
// --------------------------------------------------------------------------

const (
	// HeaderSize is the size of the fixed AVP header
	HeaderSize = 4
	// MaxAVPLength is the largest total length (header included) of one AVP
	MaxAVPLength = 0x0FFF
	// MaxNamespace is the largest namespace id
	MaxNamespace = 0x3F
	// MaxCode is the largest attribute code
	MaxCode = 0x03FF

	typeShift = 13
	typeMask  = 0x7
	listFlag  = 1 << 12
	lenMask   = 0x0FFF
	nsShift   = 10
)

// DataType is the declared type of an AVP payload
type DataType uint8

const (
	TypeUndefined DataType = iota
	TypeInteger
	TypeOctets
	TypeObject
	TypeChar
)

func (t DataType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeInteger:
		return "integer"
	case TypeOctets:
		return "octets"
	case TypeObject:
		return "object"
	case TypeChar:
		return "char"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

func (t DataType) valid() bool {
	return t <= TypeChar
}

// --------------------------------------------------------------------------
// Namespace / code
// --------------------------------------------------------------------------

// NSCode is the compound attribute address of an AVP
type NSCode struct {
	Namespace uint8
	Code      uint16
}

// Wildcard matches any attribute at its level of a path
var Wildcard = NSCode{Namespace: 0xFF, Code: 0xFFFF}

// PathEnd terminates a path, segments after it are ignored
var PathEnd = NSCode{}

// Code returns the address of a code in the default namespace
func Code(code uint16) NSCode {
	return NSCode{Code: code}
}

// NS returns the address of a code inside a namespace
func NS(namespace uint8, code uint16) NSCode {
	return NSCode{Namespace: namespace, Code: code}
}

// String renders "code" or "namespace.code"
func (c NSCode) String() string {
	if c == Wildcard {
		return "*"
	}
	if c.Namespace == 0 {
		return strconv.Itoa(int(c.Code))
	}
	return strconv.Itoa(int(c.Namespace)) + "." + strconv.Itoa(int(c.Code))
}

func (c NSCode) valid() bool {
	return c.Namespace <= MaxNamespace && c.Code <= MaxCode
}

func (c NSCode) word() uint16 {
	return uint16(c.Namespace)<<nsShift | c.Code
}

func nsCodeFromWord(w uint16) NSCode {
	return NSCode{Namespace: uint8(w >> nsShift), Code: w & MaxCode}
}

// ParseNSCode parses "code", "ns.code" or "*"
func ParseNSCode(s string) (NSCode, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return Wildcard, nil
	}
	nsPart, codePart, compound := strings.Cut(s, ".")
	if !compound {
		codePart, nsPart = nsPart, "0"
	}
	ns, err := strconv.ParseUint(nsPart, 10, 8)
	if err != nil || ns > MaxNamespace {
		return NSCode{}, newError(RetCInvalidArgs, "invalid namespace in %q", s)
	}
	code, err := strconv.ParseUint(codePart, 10, 16)
	if err != nil || code > MaxCode {
		return NSCode{}, newError(RetCInvalidArgs, "invalid code in %q", s)
	}
	return NSCode{Namespace: uint8(ns), Code: uint16(code)}, nil
}

// ParsePath parses a slash separated list of codes, e.g. "10/11/63.3" or "10/*/3"
func ParsePath(s string) ([]NSCode, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	path := make([]NSCode, 0, len(parts))
	for _, p := range parts {
		c, err := ParseNSCode(p)
		if err != nil {
			return nil, err
		}
		path = append(path, c)
	}
	return path, nil
}

// --------------------------------------------------------------------------
// Header
// --------------------------------------------------------------------------

type header struct {
	dtype  DataType
	list   bool
	length int
	code   NSCode
}

func (h header) put(b []byte) {
	w0 := uint16(h.dtype&typeMask)<<typeShift | uint16(h.length&lenMask)
	if h.list {
		w0 |= listFlag
	}
	binary.BigEndian.PutUint16(b[0:2], w0)
	binary.BigEndian.PutUint16(b[2:4], h.code.word())
}

func parseHeader(b []byte) header {
	w0 := binary.BigEndian.Uint16(b[0:2])
	return header{
		dtype:  DataType(w0>>typeShift) & typeMask,
		list:   w0&listFlag != 0,
		length: int(w0 & lenMask),
		code:   nsCodeFromWord(binary.BigEndian.Uint16(b[2:4])),
	}
}

// --------------------------------------------------------------------------
// AVP
// --------------------------------------------------------------------------

// AVP is a decoded attribute-value pair. Data is a view into the buffer
// of the decoder that produced it and is only valid as long as that buffer.
type AVP struct {
	Code NSCode
	Type DataType
	List bool
	Data []byte
}

// Len returns the encoded size of the AVP including its header
func (a AVP) Len() int {
	return HeaderSize + len(a.Data)
}

// IsGroup reports whether the payload is a nested AVP sequence
func (a AVP) IsGroup() bool {
	return a.List || a.Type == TypeObject
}

// Children returns a decoder over the nested AVPs of a group or list
func (a AVP) Children() (*Decoder, error) {
	if !a.IsGroup() {
		return nil, newError(RetCTypeMismatch, "avp %s of type %s has no children", a.Code, a.Type)
	}
	return NewDecoder(a.Data), nil
}

// Uint8 returns the value of a one byte integer
func (a AVP) Uint8() (uint8, error) {
	if a.Type != TypeInteger || a.List || len(a.Data) != 1 {
		return 0, a.mismatch("uint8")
	}
	return a.Data[0], nil
}

// Uint16 returns the value of a one or two byte integer
func (a AVP) Uint16() (uint16, error) {
	if a.Type != TypeInteger || a.List {
		return 0, a.mismatch("uint16")
	}
	switch len(a.Data) {
	case 1:
		return uint16(a.Data[0]), nil
	case 2:
		return binary.BigEndian.Uint16(a.Data), nil
	}
	return 0, a.mismatch("uint16")
}

// Uint32 returns the value of a one, two or four byte integer
func (a AVP) Uint32() (uint32, error) {
	if a.Type != TypeInteger || a.List {
		return 0, a.mismatch("uint32")
	}
	switch len(a.Data) {
	case 1:
		return uint32(a.Data[0]), nil
	case 2:
		return uint32(binary.BigEndian.Uint16(a.Data)), nil
	case 4:
		return binary.BigEndian.Uint32(a.Data), nil
	}
	return 0, a.mismatch("uint32")
}

// Str returns the value of a char AVP without its terminator
func (a AVP) Str() (string, error) {
	if a.Type != TypeChar || a.List {
		return "", a.mismatch("char")
	}
	return trimNUL(a.Data), nil
}

func (a AVP) mismatch(target string) error {
	return newError(RetCTypeMismatch, "avp %s (%s, %d bytes) is not a %s", a.Code, a.Type, len(a.Data), target)
}

func trimNUL(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// Value is the typed payload of an AVP. The concrete type is one of
// Null, Uint8, Uint16, Uint32, Char, Octets, Group or List.
type Value interface {
	dtlvValue()
}

type (
	Null   struct{}
	Uint8  uint8
	Uint16 uint16
	Uint32 uint32
	Char   string
	// Octets borrows the decoder buffer
	Octets []byte
	// Group borrows the encoded children of an object AVP
	Group []byte
	// List borrows the encoded elements of a list AVP
	List struct {
		Elem DataType
		Data []byte
	}
)

func (Null) dtlvValue()   {}
func (Uint8) dtlvValue()  {}
func (Uint16) dtlvValue() {}
func (Uint32) dtlvValue() {}
func (Char) dtlvValue()   {}
func (Octets) dtlvValue() {}
func (Group) dtlvValue()  {}
func (List) dtlvValue()   {}

// Value returns the typed payload of the AVP
func (a AVP) Value() (Value, error) {
	if a.List {
		return List{Elem: a.Type, Data: a.Data}, nil
	}
	switch a.Type {
	case TypeUndefined:
		return Null{}, nil
	case TypeInteger:
		switch len(a.Data) {
		case 1:
			return Uint8(a.Data[0]), nil
		case 2:
			return Uint16(binary.BigEndian.Uint16(a.Data)), nil
		case 4:
			return Uint32(binary.BigEndian.Uint32(a.Data)), nil
		}
		return nil, newError(RetCAVPInvalidLen, "integer avp %s has width %d", a.Code, len(a.Data))
	case TypeOctets:
		return Octets(a.Data), nil
	case TypeObject:
		return Group(a.Data), nil
	case TypeChar:
		return Char(trimNUL(a.Data)), nil
	}
	return nil, newError(RetCTypeMismatch, "avp %s has unknown type %d", a.Code, a.Type)
}

func (a AVP) String() string {
	return fmt.Sprintf("%s:%s(%d)", a.Code, a.Type, len(a.Data))
}
