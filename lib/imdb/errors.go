package imdb

import "fmt"

// --------------------------------------------------------------------------
// Status codes
// --------------------------------------------------------------------------

// RetCode is the status code carried by every engine error
type RetCode int

const (
	RetCSuccess RetCode = iota
	RetCInvalidArgs
	RetCInvalidDef
	RetCInvalidHandle
	RetCInvalidObject
	RetCInvalidSize
	RetCAllocPagesMax
	RetCEntryExists
	RetCEntryNotFound
	RetCCursorNoDataFound
	RetCForallBreak
	RetCCRCMismatch
	RetCCorrupted
	RetCIOError
	RetCLocked
	RetCFlushFailed
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "SUCCESS"
	case RetCInvalidArgs:
		return "INVALID_ARGS"
	case RetCInvalidDef:
		return "INVALID_DEF"
	case RetCInvalidHandle:
		return "INVALID_HANDLE"
	case RetCInvalidObject:
		return "INVALID_OBJECT"
	case RetCInvalidSize:
		return "INVALID_SIZE"
	case RetCAllocPagesMax:
		return "ALLOC_PAGES_MAX"
	case RetCEntryExists:
		return "ENTRY_EXISTS"
	case RetCEntryNotFound:
		return "ENTRY_NOTFOUND"
	case RetCCursorNoDataFound:
		return "CURSOR_NO_DATA_FOUND"
	case RetCForallBreak:
		return "FORALL_BREAK"
	case RetCCRCMismatch:
		return "CRC_MISMATCH"
	case RetCCorrupted:
		return "CORRUPTED"
	case RetCIOError:
		return "IO_ERROR"
	case RetCLocked:
		return "LOCKED"
	case RetCFlushFailed:
		return "FLUSH_FAILED"
	default:
		return fmt.Sprintf("RetCode(%d)", int(c))
	}
}

// Error is the error type returned by the engine. errors.Is matches two
// engine errors by code, so detailed errors match the exported sentinels:
//
//	if errors.Is(err, imdb.ErrAllocPagesMax) { ... }
type Error struct {
	Code RetCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := "imdb: " + e.Code.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is an engine error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause, e.g. an I/O error
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code RetCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(code RetCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

var (
	ErrInvalidArgs       = &Error{Code: RetCInvalidArgs}
	ErrInvalidDef        = &Error{Code: RetCInvalidDef}
	ErrInvalidHandle     = &Error{Code: RetCInvalidHandle}
	ErrInvalidObject     = &Error{Code: RetCInvalidObject}
	ErrInvalidSize       = &Error{Code: RetCInvalidSize}
	ErrAllocPagesMax     = &Error{Code: RetCAllocPagesMax}
	ErrEntryExists       = &Error{Code: RetCEntryExists}
	ErrEntryNotFound     = &Error{Code: RetCEntryNotFound}
	ErrCursorNoDataFound = &Error{Code: RetCCursorNoDataFound}
	ErrForallBreak       = &Error{Code: RetCForallBreak}
	ErrCRCMismatch       = &Error{Code: RetCCRCMismatch}
	ErrCorrupted         = &Error{Code: RetCCorrupted}
	ErrIOError           = &Error{Code: RetCIOError}
	ErrLocked            = &Error{Code: RetCLocked}
	// ErrFlushFailed reports an implicit flush that failed after the
	// operation itself took effect. The cause is wrapped.
	ErrFlushFailed       = &Error{Code: RetCFlushFailed}
)
