package view

import (
	"github.com/pombreda/go-tcdb/lib/codec"
)

// Schema maps column names to the host type each column decodes to on
// read. Columns absent from the schema decode by their own type tags.
type Schema map[string]codec.Type

// opConfig collects the per-call switches of view operations. The zero
// value is typed mode for both key and value with no expected type.
type opConfig struct {
	rawKey   bool
	rawValue bool
	wantType codec.Type
	rawCols  bool
	schema   Schema
}

// Option adjusts a single view operation.
type Option func(*opConfig)

// RawKey passes the key through the codec in raw mode. The key must
// already be a byte or text string.
func RawKey() Option {
	return func(c *opConfig) { c.rawKey = true }
}

// RawValue passes the value through the codec in raw mode. The value must
// already be a byte or text string.
func RawValue() Option {
	return func(c *opConfig) { c.rawValue = true }
}

// WithType forwards an expected type to the codec on read. Decoding fails
// with TypeMismatch when the stored tag is incompatible.
func WithType(t codec.Type) Option {
	return func(c *opConfig) { c.wantType = t }
}

// RawCols stores or reads every column of a table row as raw bytes.
func RawCols() Option {
	return func(c *opConfig) { c.rawCols = true }
}

// WithSchema decodes the named columns of a table row to their declared
// types on read.
func WithSchema(s Schema) Option {
	return func(c *opConfig) { c.schema = s }
}

func applyOptions(opts []Option) opConfig {
	var cfg opConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
