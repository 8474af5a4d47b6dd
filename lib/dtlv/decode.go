package dtlv

import "io"

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// Decoder reads AVPs from a byte slice without copying payloads.
//
// Thread-safety: a Decoder must not be used concurrently.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder over buf
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Reset rebinds the decoder to buf and rewinds it
func (d *Decoder) Reset(buf []byte) {
	d.buf = buf
	d.off = 0
}

// Offset returns the number of bytes consumed so far
func (d *Decoder) Offset() int { return d.off }

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// More reports whether there are bytes left to decode
func (d *Decoder) More() bool { return d.off < len(d.buf) }

// Decode reads the next AVP. It returns io.EOF once the input is exhausted.
// A record whose header is truncated or declares less than HeaderSize bytes
// fails with ErrAVPInvalidLen, one that declares more bytes than remain fails
// with ErrAVPOutOfBounds. The read offset only advances on success.
func (d *Decoder) Decode() (AVP, error) {
	rem := len(d.buf) - d.off
	if rem == 0 {
		return AVP{}, io.EOF
	}
	if rem < HeaderSize {
		return AVP{}, newError(RetCAVPInvalidLen, "%d trailing bytes at offset %d", rem, d.off)
	}
	h := parseHeader(d.buf[d.off:])
	if h.length < HeaderSize {
		return AVP{}, newError(RetCAVPInvalidLen, "avp at offset %d declares length %d", d.off, h.length)
	}
	if h.length > rem {
		return AVP{}, newError(RetCAVPOutOfBounds, "avp at offset %d declares length %d, %d bytes left", d.off, h.length, rem)
	}
	avp := AVP{
		Code: h.code,
		Type: h.dtype,
		List: h.list,
		Data: d.buf[d.off+HeaderSize : d.off+h.length : d.off+h.length],
	}
	d.off += h.length
	return avp, nil
}

// DecodeAll reads every remaining AVP of the current level
func (d *Decoder) DecodeAll() ([]AVP, error) {
	var avps []AVP
	for {
		avp, err := d.Decode()
		if err == io.EOF {
			return avps, nil
		}
		if err != nil {
			return avps, err
		}
		avps = append(avps, avp)
	}
}
