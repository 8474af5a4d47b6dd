package dtlv

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Path decode
// --------------------------------------------------------------------------

// DecodeByPath walks the remaining AVPs depth first and collects every AVP
// whose address chain matches path. A PathEnd segment terminates the path,
// a Wildcard segment matches any code at its level.
//
// Matches are stored in out up to its length, the returned count is always
// the total number of matches. With limitOne the walk stops at the first
// match and returns ErrForallBreak with a count of 1.
func (d *Decoder) DecodeByPath(path []NSCode, out []AVP, limitOne bool) (int, error) {
	path = trimPath(path)
	if len(path) == 0 {
		return 0, newError(RetCInvalidArgs, "empty path")
	}
	w := pathWalker{out: out, limitOne: limitOne}
	err := w.walk(d, path)
	return w.total, err
}

// Find returns the first AVP matching path
func Find(buf []byte, path []NSCode) (AVP, bool, error) {
	var out [1]AVP
	n, err := NewDecoder(buf).DecodeByPath(path, out[:], true)
	if errors.Is(err, ErrForallBreak) {
		err = nil
	}
	return out[0], n > 0, err
}

type pathWalker struct {
	out      []AVP
	total    int
	limitOne bool
}

func (w *pathWalker) walk(d *Decoder, path []NSCode) error {
	for {
		avp, err := d.Decode()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if path[0] != Wildcard && path[0] != avp.Code {
			continue
		}
		if len(path) == 1 {
			if w.total < len(w.out) {
				w.out[w.total] = avp
			}
			w.total++
			if w.limitOne {
				return ErrForallBreak
			}
			continue
		}
		if avp.IsGroup() {
			if err := w.walk(NewDecoder(avp.Data), path[1:]); err != nil {
				return err
			}
		}
	}
}

func trimPath(path []NSCode) []NSCode {
	for i, c := range path {
		if c == PathEnd {
			return path[:i]
		}
	}
	return path
}
