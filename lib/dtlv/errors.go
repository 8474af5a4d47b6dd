package dtlv

import "fmt"

// --------------------------------------------------------------------------
// Status codes
// --------------------------------------------------------------------------

// RetCode is the status code carried by every codec error
type RetCode int

const (
	RetCSuccess RetCode = iota
	RetCBufferOverflow
	RetCAVPInvalidLen
	RetCAVPOutOfBounds
	RetCPathError
	RetCTypeMismatch
	RetCForallBreak
	RetCInvalidArgs
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "SUCCESS"
	case RetCBufferOverflow:
		return "BUFFER_OVERFLOW"
	case RetCAVPInvalidLen:
		return "AVP_INVALID_LEN"
	case RetCAVPOutOfBounds:
		return "AVP_OUT_OF_BOUNDS"
	case RetCPathError:
		return "PATH_ERROR"
	case RetCTypeMismatch:
		return "TYPE_MISMATCH"
	case RetCForallBreak:
		return "FORALL_BREAK"
	case RetCInvalidArgs:
		return "INVALID_ARGS"
	default:
		return fmt.Sprintf("RetCode(%d)", int(c))
	}
}

// Error is the error type returned by the codec.
// Two errors are considered equal by errors.Is if their codes match,
// so a detailed error still matches the exported sentinel values.
type Error struct {
	Code RetCode
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "dtlv: " + e.Code.String()
	}
	return fmt.Sprintf("dtlv: %s: %s", e.Code, e.Msg)
}

// Is reports whether target is a codec error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code RetCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrBufferOverflow = &Error{Code: RetCBufferOverflow}
	ErrAVPInvalidLen  = &Error{Code: RetCAVPInvalidLen}
	ErrAVPOutOfBounds = &Error{Code: RetCAVPOutOfBounds}
	ErrPathError      = &Error{Code: RetCPathError}
	ErrTypeMismatch   = &Error{Code: RetCTypeMismatch}
	ErrForallBreak    = &Error{Code: RetCForallBreak}
	ErrInvalidArgs    = &Error{Code: RetCInvalidArgs}
)
