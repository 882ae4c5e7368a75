package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripTyped(t *testing.T) {
	cases := []struct {
		name string
		in   any
		out  any
	}{
		{"Bytes", []byte{0x00, 0xff, 0x10}, []byte{0x00, 0xff, 0x10}},
		{"EmptyBytes", []byte{}, []byte{}},
		{"String", "hop step jump", "hop step jump"},
		{"UnicodeString", "カスケット", "カスケット"},
		{"Int", 42, int64(42)},
		{"NegativeInt", -7, int64(-7)},
		{"IntZero", 0, int64(0)},
		{"Int64Min", int64(math.MinInt64), int64(math.MinInt64)},
		{"Int64Max", int64(math.MaxInt64), int64(math.MaxInt64)},
		{"Uint32", uint32(7), int64(7)},
		{"Float", 3.25, 3.25},
		{"Float32", float32(1.5), 1.5},
		{"NegativeZero", math.Copysign(0, -1), math.Copysign(0, -1)},
		{"Complex", complex(1.5, -2.25), complex(1.5, -2.25)},
		{"Complex64", complex64(complex(1, 2)), complex(1, 2)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := Encode(tc.in)
			require.NoError(t, err)

			dec, err := Decode(enc, TypeAny)
			require.NoError(t, err)
			assert.Equal(t, tc.out, dec)
		})
	}
}

func TestFloatBitExact(t *testing.T) {
	for _, f := range []float64{
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
		math.Copysign(0, -1),
		math.SmallestNonzeroFloat64,
		math.MaxFloat64,
	} {
		enc, err := Encode(f)
		require.NoError(t, err)

		dec, err := Decode(enc, TypeFloat)
		require.NoError(t, err)

		got, ok := dec.(float64)
		require.True(t, ok)
		assert.Equal(t, math.Float64bits(f), math.Float64bits(got))
	}
}

func TestIntOrderPreserving(t *testing.T) {
	ints := []int64{math.MinInt64, -1000, -1, 0, 1, 42, 1000, math.MaxInt64}
	var prev []byte
	for _, v := range ints {
		enc, err := Encode(v)
		require.NoError(t, err)
		if prev != nil {
			assert.Negative(t, bytes.Compare(prev, enc), "encoded order must follow numeric order at %d", v)
		}
		prev = enc
	}
}

func TestRawFidelity(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x00, 0xfe}

	enc, err := EncodeRaw(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, enc, "raw mode must not add tag overhead")

	dec, err := DecodeRaw(enc, TypeAny)
	require.NoError(t, err)
	assert.Equal(t, payload, dec)

	asText, err := DecodeRaw([]byte("plain"), TypeString)
	require.NoError(t, err)
	assert.Equal(t, "plain", asText)

	_, err = EncodeRaw(42)
	assert.ErrorIs(t, err, ErrNotRaw)
}

func TestExpectedType(t *testing.T) {
	enc, err := Encode(int64(23))
	require.NoError(t, err)

	// exact match
	dec, err := Decode(enc, TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(23), dec)

	// permitted coercion int -> float
	dec, err = Decode(enc, TypeFloat)
	require.NoError(t, err)
	assert.Equal(t, 23.0, dec)

	// incompatible request
	_, err = Decode(enc, TypeComplex)
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, TypeInt, mismatch.Stored)
	assert.Equal(t, TypeComplex, mismatch.Requested)
}

func TestBytesStringCoercion(t *testing.T) {
	enc, err := Encode("casket")
	require.NoError(t, err)

	dec, err := Decode(enc, TypeBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte("casket"), dec)

	enc, err = Encode([]byte("casket"))
	require.NoError(t, err)

	dec, err = Decode(enc, TypeString)
	require.NoError(t, err)
	assert.Equal(t, "casket", dec)
}

func TestCorruptPayloads(t *testing.T) {
	_, err := Decode(nil, TypeAny)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Decode([]byte{0x7f, 0x01}, TypeAny)
	assert.ErrorIs(t, err, ErrUnknownTag)

	// int payload must be exactly 8 bytes
	_, err = Decode([]byte{0x03, 0x01, 0x02}, TypeAny)
	assert.ErrorIs(t, err, ErrTruncated)

	// a mismatch is never reported for corrupt data
	var mismatch *TypeMismatchError
	assert.False(t, errors.As(err, &mismatch))
}

func TestUintRange(t *testing.T) {
	_, err := Encode(uint64(math.MaxUint64))
	assert.ErrorIs(t, err, ErrIntRange)

	enc, err := Encode(uint64(12))
	require.NoError(t, err)
	dec, err := Decode(enc, TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(12), dec)
}

type testPoint struct {
	X, Y int
	Name string
}

func TestObjectFallback(t *testing.T) {
	Register(testPoint{})

	in := testPoint{X: 3, Y: 4, Name: "pythagoras"}
	enc, err := Encode(in)
	require.NoError(t, err)

	st, err := StoredType(enc)
	require.NoError(t, err)
	assert.Equal(t, TypeObject, st)

	dec, err := Decode(enc, TypeAny)
	require.NoError(t, err)
	assert.Equal(t, in, dec)

	_, err = Decode(enc, TypeInt)
	var mismatch *TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
