package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Types and Tags
// --------------------------------------------------------------------------

// Type identifies a host type supported by the typed codec.
type Type uint8

const (
	TypeAny     Type = iota // decode to whatever the stored tag says
	TypeBytes               // []byte
	TypeString              // string (UTF-8)
	TypeInt                 // int64 (all integer inputs normalize to int64)
	TypeFloat               // float64
	TypeComplex             // complex128
	TypeObject              // generic gob-serialized object
)

func (t Type) String() string {
	switch t {
	case TypeAny:
		return "Any"
	case TypeBytes:
		return "Bytes"
	case TypeString:
		return "String"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeComplex:
		return "Complex"
	case TypeObject:
		return "Object"
	default:
		return "Unknown"
	}
}

// One-byte tags written in front of every typed-mode payload.
// The values are part of the on-disk format and must not be reordered.
const (
	tagBytes   byte = 0x01
	tagString  byte = 0x02
	tagInt     byte = 0x03
	tagFloat   byte = 0x04
	tagComplex byte = 0x05
	tagObject  byte = 0x06
)

// tagType maps a stored tag to its Type. Returns TypeAny for unknown tags.
func tagType(tag byte) Type {
	switch tag {
	case tagBytes:
		return TypeBytes
	case tagString:
		return TypeString
	case tagInt:
		return TypeInt
	case tagFloat:
		return TypeFloat
	case tagComplex:
		return TypeComplex
	case tagObject:
		return TypeObject
	default:
		return TypeAny
	}
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrUnknownTag is returned when a typed-mode payload carries a tag
	// outside the closed tag set (corrupt data or a foreign writer).
	ErrUnknownTag = errors.New("codec: unknown type tag")

	// ErrTruncated is returned when a typed-mode payload is shorter than
	// its tag requires.
	ErrTruncated = errors.New("codec: truncated payload")

	// ErrNotRaw is returned when raw mode is used with a value that is
	// neither a byte string nor a text string.
	ErrNotRaw = errors.New("codec: raw mode requires byte or text data")

	// ErrIntRange is returned when an unsigned integer does not fit the
	// signed 64-bit payload.
	ErrIntRange = errors.New("codec: unsigned integer out of int64 range")
)

// TypeMismatchError is returned when the stored tag and the requested type
// are both known but incompatible.
type TypeMismatchError struct {
	Stored    Type
	Requested Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("codec: stored type %s incompatible with requested type %s", e.Stored, e.Requested)
}

// Register makes a concrete type available to the generic object codec.
// It must be called for every type stored through the object fallback
// before that value can be decoded again. Wraps gob.Register.
func Register(v any) {
	gob.Register(v)
}

// --------------------------------------------------------------------------
// Typed Mode
// --------------------------------------------------------------------------

// Encode serializes a host value in typed mode: one tag byte followed by
// the type-specific payload. All integer kinds normalize to int64, float32
// widens exactly to float64 and complex64 to complex128. Values outside the
// closed type set fall back to the generic gob object encoding.
func Encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		out := make([]byte, 1+len(val))
		out[0] = tagBytes
		copy(out[1:], val)
		return out, nil
	case string:
		out := make([]byte, 1+len(val))
		out[0] = tagString
		copy(out[1:], val)
		return out, nil
	case int:
		return encodeInt(int64(val)), nil
	case int8:
		return encodeInt(int64(val)), nil
	case int16:
		return encodeInt(int64(val)), nil
	case int32:
		return encodeInt(int64(val)), nil
	case int64:
		return encodeInt(val), nil
	case uint8:
		return encodeInt(int64(val)), nil
	case uint16:
		return encodeInt(int64(val)), nil
	case uint32:
		return encodeInt(int64(val)), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, ErrIntRange
		}
		return encodeInt(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, ErrIntRange
		}
		return encodeInt(int64(val)), nil
	case float32:
		return encodeFloat(float64(val)), nil
	case float64:
		return encodeFloat(val), nil
	case complex64:
		return encodeComplex(complex128(val)), nil
	case complex128:
		return encodeComplex(val), nil
	default:
		return encodeObject(v)
	}
}

// Decode deserializes a typed-mode payload. The want parameter requests a
// specific host type: TypeAny accepts whatever the tag says, otherwise the
// stored tag must match or be coercible (int->float, bytes<->string).
func Decode(b []byte, want Type) (any, error) {
	if len(b) == 0 {
		return nil, ErrTruncated
	}
	stored := tagType(b[0])
	if stored == TypeAny {
		return nil, ErrUnknownTag
	}
	payload := b[1:]

	if want != TypeAny && want != stored {
		// The only coercions permitted by the contract.
		switch {
		case stored == TypeInt && want == TypeFloat:
			i, err := decodeInt(payload)
			if err != nil {
				return nil, err
			}
			return float64(i), nil
		case stored == TypeBytes && want == TypeString:
			return string(payload), nil
		case stored == TypeString && want == TypeBytes:
			out := make([]byte, len(payload))
			copy(out, payload)
			return out, nil
		default:
			return nil, &TypeMismatchError{Stored: stored, Requested: want}
		}
	}

	switch stored {
	case TypeBytes:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case TypeString:
		return string(payload), nil
	case TypeInt:
		return decodeInt(payload)
	case TypeFloat:
		return decodeFloat(payload)
	case TypeComplex:
		return decodeComplex(payload)
	case TypeObject:
		return decodeObject(payload)
	default:
		return nil, ErrUnknownTag
	}
}

// StoredType reports the host type a typed-mode payload will decode to,
// without decoding it.
func StoredType(b []byte) (Type, error) {
	if len(b) == 0 {
		return TypeAny, ErrTruncated
	}
	t := tagType(b[0])
	if t == TypeAny {
		return TypeAny, ErrUnknownTag
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Raw Mode
// --------------------------------------------------------------------------

// EncodeRaw passes byte or text data through unmodified. No tag is written.
func EncodeRaw(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case string:
		return []byte(val), nil
	default:
		return nil, ErrNotRaw
	}
}

// DecodeRaw returns raw data as bytes (TypeAny, TypeBytes) or text
// (TypeString). No tag is read.
func DecodeRaw(b []byte, want Type) (any, error) {
	switch want {
	case TypeAny, TypeBytes:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case TypeString:
		return string(b), nil
	default:
		return nil, &TypeMismatchError{Stored: TypeBytes, Requested: want}
	}
}

// --------------------------------------------------------------------------
// Payload Encodings
// --------------------------------------------------------------------------

// encodeInt writes the integer payload in an order-preserving form: fixed
// 8 bytes, big-endian, sign bit flipped. Byte-wise comparison of two
// encoded integers (including the shared tag byte) equals their numeric
// comparison, which ordered engines rely on.
func encodeInt(v int64) []byte {
	out := make([]byte, 9)
	out[0] = tagInt
	binary.BigEndian.PutUint64(out[1:], uint64(v)^(1<<63))
	return out
}

func decodeInt(payload []byte) (int64, error) {
	if len(payload) != 8 {
		return 0, ErrTruncated
	}
	return int64(binary.BigEndian.Uint64(payload) ^ (1 << 63)), nil
}

// encodeFloat stores the IEEE-754 bit pattern so round-trips are bit-exact
// (NaN payloads and signed zeros included).
func encodeFloat(v float64) []byte {
	out := make([]byte, 9)
	out[0] = tagFloat
	binary.BigEndian.PutUint64(out[1:], math.Float64bits(v))
	return out
}

func decodeFloat(payload []byte) (float64, error) {
	if len(payload) != 8 {
		return 0, ErrTruncated
	}
	return math.Float64frombits(binary.BigEndian.Uint64(payload)), nil
}

func encodeComplex(v complex128) []byte {
	out := make([]byte, 17)
	out[0] = tagComplex
	binary.BigEndian.PutUint64(out[1:], math.Float64bits(real(v)))
	binary.BigEndian.PutUint64(out[9:], math.Float64bits(imag(v)))
	return out
}

func decodeComplex(payload []byte) (complex128, error) {
	if len(payload) != 16 {
		return 0, ErrTruncated
	}
	re := math.Float64frombits(binary.BigEndian.Uint64(payload[:8]))
	im := math.Float64frombits(binary.BigEndian.Uint64(payload[8:]))
	return complex(re, im), nil
}

func encodeObject(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tagObject)
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&v); err != nil {
		return nil, fmt.Errorf("codec: object encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeObject(payload []byte) (any, error) {
	dec := gob.NewDecoder(bytes.NewReader(payload))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: object decode failed: %w", err)
	}
	return v, nil
}
