package dtlv

import (
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOctets = "test_octets_avp"

func newTestEncoder() *Encoder {
	return NewEncoder(make([]byte, 1024))
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func TestBasicEncodingDecoding(t *testing.T) {
	enc := newTestEncoder()
	require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))
	require.NoError(t, enc.EncodeUint16(Code(2), 0xFFF0))
	require.NoError(t, enc.EncodeUint32(Code(3), 0xFFFFFFF0))
	require.NoError(t, enc.EncodeChar(Code(4), testOctets))
	require.NoError(t, enc.EncodeOctets(Code(5), append([]byte(testOctets), 0)))

	t.Run("Decode", func(t *testing.T) {
		dec := NewDecoder(enc.Bytes())

		avp, err := dec.Decode()
		require.NoError(t, err)
		v8, err := avp.Uint8()
		require.NoError(t, err)
		assert.Equal(t, uint8(0xF0), v8)

		avp, err = dec.Decode()
		require.NoError(t, err)
		v16, err := avp.Uint16()
		require.NoError(t, err)
		assert.Equal(t, uint16(0xFFF0), v16)

		avp, err = dec.Decode()
		require.NoError(t, err)
		v32, err := avp.Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(0xFFFFFFF0), v32)

		avp, err = dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, TypeChar, avp.Type)
		s, err := avp.Str()
		require.NoError(t, err)
		assert.Equal(t, testOctets, s)
		assert.Len(t, avp.Data, len(testOctets)+1)

		avp, err = dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, TypeOctets, avp.Type)
		assert.Equal(t, append([]byte(testOctets), 0), avp.Data)

		_, err = dec.Decode()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("JSON", func(t *testing.T) {
		js, err := ToJSON(enc.Bytes())
		require.NoError(t, err)
		assert.Equal(t, `{"1":240,"2":65520,"3":4294967280,"4":"test_octets_avp","5":"746573745f6f63746574735f61767000"}`, js)
	})
}

func TestListEncodingDecoding(t *testing.T) {
	enc := newTestEncoder()
	require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))
	require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))

	g, err := enc.EncodeList(Code(2), TypeInteger)
	require.NoError(t, err)
	require.NoError(t, enc.EncodeUint8(Code(2), 0xF1))
	require.NoError(t, enc.EncodeUint8(Code(2), 0xF2))
	require.NoError(t, enc.EncodeUint8(Code(2), 0xF3))

	lenBefore := enc.Len()
	err = enc.EncodeUint8(Code(4), 0xF4)
	assert.True(t, errors.Is(err, ErrPathError), "got %v", err)
	err = enc.EncodeChar(Code(2), "x")
	assert.True(t, errors.Is(err, ErrPathError), "got %v", err)
	assert.Equal(t, lenBefore, enc.Len())

	require.NoError(t, enc.GroupDone(g))
	assert.Equal(t, 0, enc.Depth())

	js, err := ToJSON(enc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"1":240,"1":240,"2":[241,242,243]}`, js)

	dec := NewDecoder(enc.Bytes())
	avps, err := dec.DecodeAll()
	require.NoError(t, err)
	require.Len(t, avps, 3)
	assert.True(t, avps[2].List)
	v, err := avps[2].Value()
	require.NoError(t, err)
	list, ok := v.(List)
	require.True(t, ok)
	assert.Equal(t, TypeInteger, list.Elem)
}

func TestGroupingEncodingDecoding(t *testing.T) {
	enc := newTestEncoder()
	require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))
	require.NoError(t, enc.EncodeUint16(Code(2), 0xFFF0))

	writeGroup := func(c NSCode) {
		g, err := enc.EncodeGrouping(c)
		require.NoError(t, err)
		require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))
		require.NoError(t, enc.EncodeUint16(Code(2), 0xFFF0))
		require.NoError(t, enc.EncodeUint32(Code(3), 0xFFFFFFF0))
		require.NoError(t, enc.EncodeOctets(Code(4), []byte(testOctets)))
		require.NoError(t, enc.GroupDone(g))
	}
	writeGroup(Code(3))
	writeGroup(NS(63, 4))

	require.NoError(t, enc.EncodeUint16(Code(5), 0xFFF0))
	require.NoError(t, enc.EncodeUint32(Code(6), 0xFFFFFFF0))
	require.NoError(t, enc.EncodeOctets(Code(7), []byte(testOctets)))

	dec := NewDecoder(enc.Bytes())
	for i := 0; i < 3; i++ {
		_, err := dec.Decode()
		require.NoError(t, err)
	}
	avp, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeObject, avp.Type)
	assert.Equal(t, uint8(63), avp.Code.Namespace)
	assert.Equal(t, uint16(4), avp.Code.Code)

	children, err := avp.Children()
	require.NoError(t, err)
	first, err := children.Decode()
	require.NoError(t, err)
	v8, err := first.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xF0), v8)

	js, err := ToJSON(enc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"1":240,"2":65520,"3":{"1":240,"2":65520,"3":4294967280,"4":"746573745f6f63746574735f617670"},`+
		`"63.4":{"1":240,"2":65520,"3":4294967280,"4":"746573745f6f63746574735f617670"},`+
		`"5":65520,"6":4294967280,"7":"746573745f6f63746574735f617670"}`, js)
}

func TestGroupDoneOutOfOrder(t *testing.T) {
	enc := newTestEncoder()
	outer, err := enc.EncodeGrouping(Code(1))
	require.NoError(t, err)
	inner, err := enc.EncodeGrouping(Code(2))
	require.NoError(t, err)

	err = enc.GroupDone(outer)
	assert.True(t, errors.Is(err, ErrPathError))

	require.NoError(t, enc.GroupDone(inner))
	require.NoError(t, enc.GroupDone(outer))

	err = enc.GroupDone(outer)
	assert.True(t, errors.Is(err, ErrPathError))

	js, err := ToJSON(enc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"1":{"2":{}}}`, js)
}

func TestGenericObjectEncoding(t *testing.T) {
	enc := newTestEncoder()
	require.NoError(t, enc.Encode(NS(63, 4), TypeObject, nil))
	require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))
	assert.Equal(t, 1, enc.Depth())
	require.NoError(t, enc.GroupDone(enc.Innermost()))
	assert.Equal(t, 0, enc.Depth())

	js, err := ToJSON(enc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"63.4":{"1":240}}`, js)

	// no open group left to close
	assert.True(t, errors.Is(enc.GroupDone(enc.Innermost()), ErrPathError))

	// with a payload the record is written as a whole
	nested := enc.Bytes()[HeaderSize:]
	out := newTestEncoder()
	require.NoError(t, out.Encode(Code(2), TypeObject, nested))
	assert.Equal(t, 0, out.Depth())
	js, err = ToJSON(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"2":{"1":240}}`, js)
}

func TestBufferOverflow(t *testing.T) {
	enc := NewEncoder(make([]byte, 10))
	require.NoError(t, enc.EncodeUint16(Code(1), 1))
	assert.Equal(t, 6, enc.Len())

	err := enc.EncodeUint8(Code(2), 1)
	assert.True(t, errors.Is(err, ErrBufferOverflow), "got %v", err)
	assert.Equal(t, 6, enc.Len())

	require.NoError(t, enc.EncodeOctets(Code(3), nil))
	assert.Equal(t, 10, enc.Len())

	_, err = enc.EncodeGrouping(Code(4))
	assert.True(t, errors.Is(err, ErrBufferOverflow))

	t.Run("AVPLimit", func(t *testing.T) {
		enc := NewEncoder(make([]byte, 2*MaxAVPLength))
		err := enc.EncodeOctets(Code(1), make([]byte, MaxAVPLength))
		assert.True(t, errors.Is(err, ErrBufferOverflow))
		require.NoError(t, enc.EncodeOctets(Code(1), make([]byte, MaxAVPLength-HeaderSize)))

		enc.Reset(enc.buf)
		g, err := enc.EncodeGrouping(Code(2))
		require.NoError(t, err)
		err = enc.EncodeOctets(Code(1), make([]byte, MaxAVPLength-HeaderSize))
		assert.True(t, errors.Is(err, ErrBufferOverflow))
		require.NoError(t, enc.EncodeOctets(Code(1), make([]byte, MaxAVPLength-2*HeaderSize)))
		require.NoError(t, enc.GroupDone(g))
		assert.Equal(t, MaxAVPLength, enc.Len())
	})
}

func TestInvalidCodes(t *testing.T) {
	enc := newTestEncoder()
	err := enc.EncodeUint8(NS(64, 1), 1)
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	err = enc.EncodeUint8(Code(1024), 1)
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	require.NoError(t, enc.EncodeUint8(NS(63, 1023), 1))
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func TestErrorDecoding(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
		json  string
	}{
		{"ZeroLength", "00000000", ErrAVPInvalidLen, "{}"},
		{"OutOfBounds", "00050000", ErrAVPOutOfBounds, "{}"},
		{"Undefined", "00040000", nil, `{"0":null}`},
		{"TruncatedHeader", "0004000000", ErrAVPInvalidLen, `{"0":null}`},
		{"Empty", "", nil, "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js, err := ToJSON(decodeHex(t, tt.input))
			if tt.err == nil {
				require.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.err), "expected %v, got %v", tt.err, err)
			}
			assert.Equal(t, tt.json, js)
		})
	}
}

func TestTypedGetters(t *testing.T) {
	enc := newTestEncoder()
	require.NoError(t, enc.EncodeUint8(Code(1), 7))
	require.NoError(t, enc.EncodeUint16(Code(2), 0x0102))
	require.NoError(t, enc.EncodeUint32(Code(3), 0x01020304))
	require.NoError(t, enc.EncodeChar(Code(4), "x"))

	avps, err := NewDecoder(enc.Bytes()).DecodeAll()
	require.NoError(t, err)
	require.Len(t, avps, 4)

	t.Run("Widening", func(t *testing.T) {
		v16, err := avps[0].Uint16()
		require.NoError(t, err)
		assert.Equal(t, uint16(7), v16)
		v32, err := avps[0].Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(7), v32)
		v32, err = avps[1].Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(0x0102), v32)
	})

	t.Run("Narrowing", func(t *testing.T) {
		_, err := avps[1].Uint8()
		assert.True(t, errors.Is(err, ErrTypeMismatch))
		_, err = avps[2].Uint16()
		assert.True(t, errors.Is(err, ErrTypeMismatch))
	})

	t.Run("WrongType", func(t *testing.T) {
		_, err := avps[3].Uint32()
		assert.True(t, errors.Is(err, ErrTypeMismatch))
		_, err = avps[0].Str()
		assert.True(t, errors.Is(err, ErrTypeMismatch))
		_, err = avps[0].Children()
		assert.True(t, errors.Is(err, ErrTypeMismatch))
	})

	t.Run("Values", func(t *testing.T) {
		want := []Value{Uint8(7), Uint16(0x0102), Uint32(0x01020304), Char("x")}
		for i, avp := range avps {
			v, err := avp.Value()
			require.NoError(t, err)
			assert.Equal(t, want[i], v)
		}
	})
}

func TestDecodeByPath(t *testing.T) {
	enc := newTestEncoder()
	require.NoError(t, enc.EncodeUint8(Code(1), 0xF0))
	require.NoError(t, enc.EncodeUint16(Code(2), 0xFFF0))
	require.NoError(t, enc.EncodeUint32(Code(3), 0xFFFFFFF0))

	g1, err := enc.EncodeGrouping(Code(10))
	require.NoError(t, err)
	for i := uint32(1); i <= 2; i++ {
		g2, err := enc.EncodeGrouping(Code(11))
		require.NoError(t, err)
		require.NoError(t, enc.EncodeUint8(Code(1), uint8(0xF0+i)))
		require.NoError(t, enc.EncodeUint16(Code(2), uint16(0xFFF0+i)))
		require.NoError(t, enc.EncodeUint32(Code(3), 0xFFFFFFF0+i))
		require.NoError(t, enc.GroupDone(g2))
	}
	require.NoError(t, enc.EncodeUint16(Code(4), 0xFFF3))
	require.NoError(t, enc.EncodeUint16(Code(5), 0xFFF4))
	require.NoError(t, enc.GroupDone(g1))

	path := []NSCode{Code(10), Code(11), PathEnd}
	path2 := []NSCode{Code(10), Code(11), Code(3), PathEnd}
	out := make([]AVP, 10)

	t.Run("Groups", func(t *testing.T) {
		total, err := NewDecoder(enc.Bytes()).DecodeByPath(path, out, false)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, TypeObject, out[0].Type)
	})

	t.Run("Leaves", func(t *testing.T) {
		total, err := NewDecoder(enc.Bytes()).DecodeByPath(path2, out, false)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		v, err := out[0].Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(0xFFFFFFF1), v)
		v, err = out[1].Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(0xFFFFFFF2), v)
	})

	t.Run("TotalExceedsCapacity", func(t *testing.T) {
		total, err := NewDecoder(enc.Bytes()).DecodeByPath(path2, out[:1], false)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("LimitOne", func(t *testing.T) {
		total, err := NewDecoder(enc.Bytes()).DecodeByPath(path2, out[:1], true)
		assert.True(t, errors.Is(err, ErrForallBreak))
		assert.Equal(t, 1, total)
	})

	t.Run("Wildcard", func(t *testing.T) {
		total, err := NewDecoder(enc.Bytes()).DecodeByPath([]NSCode{Code(10), Wildcard, Code(1)}, out, false)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("NoMatch", func(t *testing.T) {
		total, err := NewDecoder(enc.Bytes()).DecodeByPath([]NSCode{Code(11)}, out, false)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := NewDecoder(enc.Bytes()).DecodeByPath([]NSCode{PathEnd, Code(1)}, out, false)
		assert.True(t, errors.Is(err, ErrInvalidArgs))
	})

	t.Run("Find", func(t *testing.T) {
		avp, found, err := Find(enc.Bytes(), []NSCode{Code(10), Code(5)})
		require.NoError(t, err)
		require.True(t, found)
		v, err := avp.Uint16()
		require.NoError(t, err)
		assert.Equal(t, uint16(0xFFF4), v)
	})
}

func TestRoundTrip(t *testing.T) {
	enc := newTestEncoder()
	values := []struct {
		code NSCode
		enc  func(NSCode) error
		want Value
	}{
		{Code(1), func(c NSCode) error { return enc.EncodeUint8(c, 0) }, Uint8(0)},
		{Code(2), func(c NSCode) error { return enc.EncodeUint8(c, 255) }, Uint8(255)},
		{NS(1, 3), func(c NSCode) error { return enc.EncodeUint16(c, 0xABCD) }, Uint16(0xABCD)},
		{NS(2, 4), func(c NSCode) error { return enc.EncodeUint32(c, 0xDEADBEEF) }, Uint32(0xDEADBEEF)},
		{Code(5), func(c NSCode) error { return enc.EncodeChar(c, "") }, Char("")},
		{Code(6), func(c NSCode) error { return enc.EncodeChar(c, "a \"quoted\" <value>") }, Char("a \"quoted\" <value>")},
		{Code(7), func(c NSCode) error { return enc.EncodeOctets(c, []byte{}) }, Octets{}},
		{Code(8), func(c NSCode) error { return enc.EncodeOctets(c, []byte{1, 2, 3}) }, Octets{1, 2, 3}},
	}
	for _, v := range values {
		require.NoError(t, v.enc(v.code))
	}

	avps, err := NewDecoder(enc.Bytes()).DecodeAll()
	require.NoError(t, err)
	require.Len(t, avps, len(values))
	for i, avp := range avps {
		assert.Equal(t, values[i].code, avp.Code)
		got, err := avp.Value()
		require.NoError(t, err)
		assert.Equal(t, values[i].want, got, "value %d", i)
	}

	js, err := ToJSON(enc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"1":0,"2":255,"1.3":43981,"2.4":3735928559,"5":"","6":"a \"quoted\" <value>","7":"","8":"010203"}`, js)
}

func TestParsePath(t *testing.T) {
	path, err := ParsePath("10/*/63.3")
	require.NoError(t, err)
	assert.Equal(t, []NSCode{Code(10), Wildcard, NS(63, 3)}, path)

	_, err = ParsePath("10/64.1")
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	_, err = ParsePath("a")
	assert.True(t, errors.Is(err, ErrInvalidArgs))

	assert.Equal(t, "63.4", NS(63, 4).String())
	assert.Equal(t, "4", Code(4).String())
}
