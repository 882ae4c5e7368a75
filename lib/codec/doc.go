// Package codec converts between opaque byte strings and typed Go values.
// It is the leaf dependency of the storage layer: every key and value that
// crosses the native engine boundary passes through this package first.
//
// The package focuses on:
//   - A typed mode that prefixes each payload with a one-byte type tag so
//     that reads reconstruct the exact original type without external schema
//     knowledge (round-trip law: Decode(Encode(v)) == v with the same type)
//   - A raw mode that stores byte and text data unmodified with no tag
//     overhead, for cross-language interoperability
//   - Order-preserving integer encoding, so that typed integer keys sort
//     numerically under the byte-wise comparison of ordered engines
//
// Key Components:
//
//   - Type: the closed set of supported host types (bytes, string, int,
//     float, complex, generic object). TypeAny means "whatever the stored
//     tag says" and is the default for reads.
//
//   - Encode/Decode: typed-mode conversion. Encode dispatches on the
//     runtime type of the value with a generic gob-encoded fallback for
//     anything outside the closed set. Decode reads the tag first and
//     dispatches to the matching decoder; an optional expected Type either
//     coerces (only across documented compatible pairs) or fails with a
//     *TypeMismatchError.
//
//   - EncodeRaw/DecodeRaw: raw-mode conversion. Only []byte and string are
//     accepted; everything else fails with ErrNotRaw.
//
// Error Semantics:
//
// A corrupt or unknown tag yields ErrUnknownTag and a truncated payload
// yields ErrTruncated; both are distinct from *TypeMismatchError, which is
// only returned when the stored tag and the requested type are known but
// incompatible. The package never silently coerces outside the documented
// pairs (int->float, bytes<->string).
//
// Values encoded through the generic object fallback must have their
// concrete type registered with Register (a thin wrapper over gob.Register)
// before they can be decoded again.
package codec
