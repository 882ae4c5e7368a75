package db

import "fmt"

// --------------------------------------------------------------------------
// Native Engine Error Codes
// --------------------------------------------------------------------------

// ECode is the error code a native engine attaches to every failure.
type ECode uint64

const (
	ESuccess ECode = iota // 0: operation succeeded
	EInvalid              // 1: invalid operation or argument
	ENoFile               // 2: storage path does not exist
	ENoPerm               // 3: open mode forbids the operation
	EOpen                 // 4: open failed
	EClose                // 5: close failed or engine already closed
	ESync                 // 6: sync failed
	ERead                 // 7: read failed
	EWrite                // 8: write failed
	EKeep                 // 9: existing record kept (PutKeep on present key)
	ENoRec                // 10: no record found
	EMisc                 // 11: miscellaneous failure
)

func (c ECode) String() string {
	switch c {
	case ESuccess:
		return "ESuccess"
	case EInvalid:
		return "EInvalid"
	case ENoFile:
		return "ENoFile"
	case ENoPerm:
		return "ENoPerm"
	case EOpen:
		return "EOpen"
	case EClose:
		return "EClose"
	case ESync:
		return "ESync"
	case ERead:
		return "ERead"
	case EWrite:
		return "EWrite"
	case EKeep:
		return "EKeep"
	case ENoRec:
		return "ENoRec"
	case EMisc:
		return "EMisc"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the typed error every native engine failure surfaces as. It
// carries the engine error code and message so callers can distinguish
// "not found" from "misuse" without inspecting engine internals.
type Error struct {
	Code  ECode  // the native error code
	Msg   string // the error message
	cause error  // optional underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("EngineError (code %s): %s", e.Code, e.Msg)
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a new engine Error with the given code and message.
func NewError(code ECode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new engine Error that keeps the underlying error
// reachable through errors.Unwrap.
func WrapError(code ECode, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, cause: cause}
}

// CodeOf extracts the engine error code from an error chain. Returns
// ESuccess for nil and EMisc for foreign errors.
func CodeOf(err error) ECode {
	if err == nil {
		return ESuccess
	}
	for e := err; e != nil; {
		if ee, ok := e.(*Error); ok {
			return ee.Code
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return EMisc
}
