package db

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
)

// --------------------------------------------------------------------------
// Record Compression
// --------------------------------------------------------------------------

// Compression selects the per-record value compression an engine applies
// transparently on Put and reverses on Get. It is a tuning option; records
// written with one setting must be read back with the same setting.
type Compression uint8

const (
	CompressNone    Compression = iota // store values unmodified
	CompressDeflate                    // DEFLATE each record value
	CompressLZ4                        // LZ4-frame each record value
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressDeflate:
		return "deflate"
	case CompressLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Compress applies the selected codec to a record value.
func (c Compression) Compress(value []byte) ([]byte, error) {
	switch c {
	case CompressNone:
		return value, nil
	case CompressDeflate:
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, WrapError(EWrite, "deflate init failed", err)
		}
		if _, err := fw.Write(value); err != nil {
			return nil, WrapError(EWrite, "deflate write failed", err)
		}
		if err := fw.Close(); err != nil {
			return nil, WrapError(EWrite, "deflate flush failed", err)
		}
		return buf.Bytes(), nil
	case CompressLZ4:
		var buf bytes.Buffer
		lw := lz4.NewWriter(&buf)
		if _, err := lw.Write(value); err != nil {
			return nil, WrapError(EWrite, "lz4 write failed", err)
		}
		if err := lw.Close(); err != nil {
			return nil, WrapError(EWrite, "lz4 flush failed", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, NewError(EInvalid, "unrecognized compression option")
	}
}

// Decompress reverses Compress on a stored record value.
func (c Compression) Decompress(stored []byte) ([]byte, error) {
	switch c {
	case CompressNone:
		return stored, nil
	case CompressDeflate:
		fr := flate.NewReader(bytes.NewReader(stored))
		out, err := io.ReadAll(fr)
		if err != nil {
			return nil, WrapError(ERead, "deflate read failed", err)
		}
		if err := fr.Close(); err != nil {
			return nil, WrapError(ERead, "deflate close failed", err)
		}
		return out, nil
	case CompressLZ4:
		lr := lz4.NewReader(bytes.NewReader(stored))
		out, err := io.ReadAll(lr)
		if err != nil {
			return nil, WrapError(ERead, "lz4 read failed", err)
		}
		return out, nil
	default:
		return nil, NewError(EInvalid, "unrecognized compression option")
	}
}
