package dtlv

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// JSON projection
// --------------------------------------------------------------------------

// ToJSON renders all remaining AVPs of the decoder as a JSON object.
//
// Keys are the "code" or "ns.code" address of each AVP, repeated codes are
// rendered as repeated keys. Integers are decimal, octets lowercase hex,
// char values JSON strings, undefined values null, objects nested objects and
// lists arrays. If decoding fails the output built so far is returned closed
// together with the error.
func (d *Decoder) ToJSON() (string, error) {
	var sb strings.Builder
	err := writeObject(&sb, d)
	return sb.String(), err
}

// ToJSON renders an encoded AVP sequence as JSON
func ToJSON(buf []byte) (string, error) {
	return NewDecoder(buf).ToJSON()
}

func writeObject(sb *strings.Builder, d *Decoder) error {
	sb.WriteByte('{')
	defer sb.WriteByte('}')

	for i := 0; ; i++ {
		avp, err := d.Decode()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(avp.Code.String())
		sb.WriteString(`":`)
		if err := writeValue(sb, avp); err != nil {
			return err
		}
	}
}

func writeList(sb *strings.Builder, avp AVP) error {
	sb.WriteByte('[')
	defer sb.WriteByte(']')

	d := NewDecoder(avp.Data)
	for i := 0; ; i++ {
		elem, err := d.Decode()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := writeValue(sb, elem); err != nil {
			return err
		}
	}
}

func writeValue(sb *strings.Builder, avp AVP) error {
	if avp.List {
		return writeList(sb, avp)
	}
	v, err := avp.Value()
	if err != nil {
		sb.WriteString("null")
		return err
	}
	switch v := v.(type) {
	case Null:
		sb.WriteString("null")
	case Uint8:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case Uint16:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case Uint32:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case Octets:
		sb.WriteByte('"')
		sb.WriteString(hex.EncodeToString(v))
		sb.WriteByte('"')
	case Char:
		sb.WriteString(quote(string(v)))
	case Group:
		return writeObject(sb, NewDecoder(v))
	}
	return nil
}

// quote returns s as a JSON string literal without HTML escaping
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
