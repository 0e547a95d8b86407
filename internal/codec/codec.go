// Package codec implements the class-tag codec registry used for typed
// shared-memory serde: every dataset crossing a process boundary is
// (class tag, bytes), and this package is the only place that knows how
// to turn a tag's bytes back into a value and vice versa.
package codec

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

// Codec serializes a value to bytes and deserializes a read-only byte view
// back into a value. Decode must not mutate the slice it is given; it may
// return a view backed by it.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// Funcs adapts a pair of plain functions into a Codec.
type Funcs struct {
	EncodeFn func(v any) ([]byte, error)
	DecodeFn func(b []byte) (any, error)
}

func (f Funcs) Encode(v any) ([]byte, error) { return f.EncodeFn(v) }
func (f Funcs) Decode(b []byte) (any, error) { return f.DecodeFn(b) }

// Registry maps class tags to codecs, with base-class fallback: a tag like
// "grib.other" that has no codec of its own falls back to "grib"
// (everything up to the last '.').
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry returns a Registry pre-loaded with the built-in class tags:
// bytes, str, int, ndarray, grib.earthkit, grib.mir.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register("bytes", bytesCodec{})
	r.Register("str", strCodec{})
	r.Register("int", intCodec{})
	r.Register("ndarray", ndarrayCodec{})
	r.Register("grib", gribViewCodec{}) // base fallback for grib.* variants
	r.Register("grib.earthkit", gribViewCodec{})
	r.Register("grib.mir", gribViewCodec{})
	return r
}

// Register adds or replaces the codec for tag.
func (r *Registry) Register(tag string, c Codec) {
	r.codecs[tag] = c
}

// Find looks up the codec for tag, falling back to progressively shorter
// dot-separated prefixes (ancestor "classes") when an exact match isn't
// registered.
func (r *Registry) Find(tag string) (Codec, bool) {
	t := tag
	for {
		if c, ok := r.codecs[t]; ok {
			return c, true
		}
		idx := strings.LastIndex(t, ".")
		if idx < 0 {
			return nil, false
		}
		t = t[:idx]
	}
}

// Encode serializes v using the codec registered for tag.
func (r *Registry) Encode(tag string, v any) ([]byte, error) {
	c, ok := r.Find(tag)
	if !ok {
		return nil, errors.Errorf("no codec registered for class tag %q", tag)
	}
	b, err := c.Encode(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding class %q", tag)
	}
	return b, nil
}

// Decode deserializes b (the exact produced-length slice, never padded)
// using the codec registered for tag.
func (r *Registry) Decode(tag string, b []byte) (any, error) {
	c, ok := r.Find(tag)
	if !ok {
		return nil, errors.Errorf("no codec registered for class tag %q", tag)
	}
	v, err := c.Decode(b)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding class %q", tag)
	}
	return v, nil
}

// --- built-in codecs ---

type bytesCodec struct{}

func (bytesCodec) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf("bytes codec expects []byte, got %T", v)
	}
	return b, nil
}

func (bytesCodec) Decode(b []byte) (any, error) { return b, nil }

type strCodec struct{}

func (strCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("str codec expects string, got %T", v)
	}
	return []byte(s), nil
}

func (strCodec) Decode(b []byte) (any, error) { return string(b), nil }

type intCodec struct{}

func (intCodec) Encode(v any) ([]byte, error) {
	i, ok := toInt(v)
	if !ok {
		return nil, errors.Errorf("int codec expects an integer, got %T", v)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(i))
	return buf, nil
}

func (intCodec) Decode(b []byte) (any, error) {
	if len(b) != 4 {
		return nil, errors.Errorf("int codec expects exactly 4 bytes, got %d", len(b))
	}
	return int(int32(binary.BigEndian.Uint32(b))), nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// gribViewCodec implements the "zero-copy byte view" contract for external
// grib variants: encode is identity (the producer already has raw grib
// bytes), decode returns an opaque GribView rather than a parsed grib
// object, since parsing grib wire format belongs to whichever external
// library a task's environment provides.
type gribViewCodec struct{}

// GribView is a read-only view over raw grib bytes, handed to whichever
// external library (earthkit, mir) a task's environment provides.
type GribView struct {
	Raw []byte
}

func (gribViewCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case GribView:
		return b.Raw, nil
	default:
		return nil, errors.Errorf("grib codec expects []byte or GribView, got %T", v)
	}
}

func (gribViewCodec) Decode(b []byte) (any, error) {
	return GribView{Raw: b}, nil
}
