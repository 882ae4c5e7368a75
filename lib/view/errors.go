package view

import (
	"errors"
	"fmt"

	"github.com/pombreda/go-tcdb/lib/codec"
	"github.com/pombreda/go-tcdb/lib/db"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation executed successfully.
	RetCNotFound                     // 1: Open on a missing path without the create flag.
	RetCKeyNotFound                  // 2: Get/Out on an absent key.
	RetCConfig                       // 3: Unrecognized or invalid open option.
	RetCCodec                        // 4: Corrupt payload or unknown type tag.
	RetCTypeMismatch                 // 5: Requested type incompatible with the stored tag.
	RetCTxState                      // 6: Illegal transaction nesting or terminal call without scope.
	RetCCursorInvalid                // 7: Cursor use after invalidation.
	RetCUseAfterClose                // 8: Operation on a closed handle.
	RetCUnsupported                  // 9: Operation not available for the handle's engine kind.
	RetCNativeEngine                 // 10: Failure surfaced verbatim from the native engine.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCNotFound:
		return "NotFound"
	case RetCKeyNotFound:
		return "KeyNotFound"
	case RetCConfig:
		return "ConfigError"
	case RetCCodec:
		return "CodecError"
	case RetCTypeMismatch:
		return "TypeMismatch"
	case RetCTxState:
		return "TransactionStateError"
	case RetCCursorInvalid:
		return "CursorInvalid"
	case RetCUseAfterClose:
		return "UseAfterClose"
	case RetCUnsupported:
		return "UnsupportedOperation"
	case RetCNativeEngine:
		return "NativeEngineError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the host-facing error type. It wraps a return code (of type
// RetCode), an error message, and optionally the underlying cause (for
// RetCNativeEngine the native *db.Error with its own code and message).
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ViewError (code %s): %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ViewError (code %s): %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new Error wrapping an underlying cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, cause: cause}
}

// CodeOf extracts the RetCode from an error, walking the unwrap chain.
// A nil error yields RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCNativeEngine
}

// --------------------------------------------------------------------------
// Error mapping
// --------------------------------------------------------------------------

// fromNative translates a native engine failure into the host-facing
// taxonomy. Native codes with no dedicated host meaning surface as
// RetCNativeEngine with the *db.Error preserved as cause.
func fromNative(err error) error {
	if err == nil {
		return nil
	}
	switch db.CodeOf(err) {
	case db.ENoRec:
		return WrapError(RetCKeyNotFound, "no record found", err)
	case db.ENoFile:
		return WrapError(RetCNotFound, "no such database", err)
	case db.EClose:
		return WrapError(RetCUseAfterClose, "handle is closed", err)
	default:
		return WrapError(RetCNativeEngine, "native engine failure", err)
	}
}

// fromNativeOpen translates open-time failures; at open, an EInvalid from
// tuning validation is a configuration error, not engine misuse.
func fromNativeOpen(err error) error {
	if err == nil {
		return nil
	}
	if db.CodeOf(err) == db.EInvalid {
		return WrapError(RetCConfig, "invalid open option", err)
	}
	return fromNative(err)
}

// fromCodec translates codec failures: a tag/want conflict is a type
// mismatch, everything else is corrupt or unknown data.
func fromCodec(err error) error {
	if err == nil {
		return nil
	}
	var mismatch *codec.TypeMismatchError
	if errors.As(err, &mismatch) {
		return WrapError(RetCTypeMismatch, mismatch.Error(), err)
	}
	return WrapError(RetCCodec, "codec failure", err)
}
