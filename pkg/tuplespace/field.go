package tuplespace

import (
	"encoding/binary"
	"fmt"
)

// Field is one positional element of a [Tuple] or [Template].
//
// This is the portable codec SPEC_FULL.md §3 fixes in place of the
// spec's caller-opaque payload: a tagged union over {wildcard, signed
// integer, byte string}, chosen so the core can decode and compare
// fields itself (required by the matching algorithm in §4.5/§4.6)
// without depending on a caller-supplied serializer.
type Field interface {
	isField()
}

// Wildcard matches any concrete field in the same position. Only valid
// inside a [Template]; encoding a Wildcard into a stored [Tuple] is a
// programming error rejected by [Space.Put].
type Wildcard struct{}

// Int64 is a signed 64-bit integer field.
type Int64 int64

// Bytes is an arbitrary byte-string field.
type Bytes []byte

func (Wildcard) isField() {}
func (Int64) isField()    {}
func (Bytes) isField()    {}

// Str is a convenience constructor for a [Bytes] field from a string.
func Str(s string) Bytes {
	return Bytes(s)
}

// Tuple is an ordered sequence of concrete fields to publish with [Space.Put].
type Tuple []Field

// Template is an ordered query: each position is either a [Wildcard] or a
// concrete field that must equal the corresponding stored field.
type Template []Field

const (
	fieldTagInt64 byte = 0x01
	fieldTagBytes byte = 0x02
)

// encodeTuple serializes t into the slot payload format: fields is
// redundant with len(t) (validated on decode) and kept because the scan
// algorithm filters on arity without decoding the payload.
func encodeTuple(t Tuple) ([]byte, error) {
	if len(t) > 255 {
		return nil, ErrArityOverflow
	}

	size := 1
	for _, f := range t {
		switch v := f.(type) {
		case Int64:
			size += 1 + 8
		case Bytes:
			size += 1 + 4 + len(v)
		default:
			return nil, fmt.Errorf("%s: field %T is not a storable value: %w", "encodeTuple", f, ErrInvalidInput)
		}
	}

	buf := make([]byte, size)
	buf[0] = byte(len(t))
	off := 1

	for _, f := range t {
		switch v := f.(type) {
		case Int64:
			buf[off] = fieldTagInt64
			off++
			binary.LittleEndian.PutUint64(buf[off:], uint64(v))
			off += 8
		case Bytes:
			buf[off] = fieldTagBytes
			off++
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(v)))
			off += 4
			copy(buf[off:], v)
			off += len(v)
		}
	}

	return buf, nil
}

// decodeTuple deserializes a slot payload into a Tuple. It validates that
// the leading field count matches wantArity (the slot header's `fields`
// byte) and that every field's length fits within payload - a mismatch
// means the region is corrupt.
func decodeTuple(payload []byte, wantArity uint8) (Tuple, error) {
	if len(payload) < 1 {
		return nil, ErrCorruptSlot
	}

	arity := payload[0]
	if arity != wantArity {
		return nil, ErrCorruptSlot
	}

	out := make(Tuple, 0, arity)
	off := 1

	for i := 0; i < int(arity); i++ {
		if off >= len(payload) {
			return nil, ErrCorruptSlot
		}

		tag := payload[off]
		off++

		switch tag {
		case fieldTagInt64:
			if off+8 > len(payload) {
				return nil, ErrCorruptSlot
			}

			out = append(out, Int64(binary.LittleEndian.Uint64(payload[off:])))
			off += 8
		case fieldTagBytes:
			if off+4 > len(payload) {
				return nil, ErrCorruptSlot
			}

			n := binary.LittleEndian.Uint32(payload[off:])
			off += 4

			if uint64(off)+uint64(n) > uint64(len(payload)) {
				return nil, ErrCorruptSlot
			}

			b := make([]byte, n)
			copy(b, payload[off:off+int(n)])
			out = append(out, Bytes(b))
			off += int(n)
		default:
			return nil, ErrCorruptSlot
		}
	}

	if off != len(payload) {
		return nil, ErrCorruptSlot
	}

	return out, nil
}

// matches reports whether the decoded tuple satisfies tmpl, per §4.5:
// equal arity, and every non-wildcard template position equals the
// corresponding tuple field by value.
func matches(tmpl Template, t Tuple) bool {
	if len(tmpl) != len(t) {
		return false
	}

	for i, tf := range tmpl {
		if _, ok := tf.(Wildcard); ok {
			continue
		}

		if !fieldEqual(tf, t[i]) {
			return false
		}
	}

	return true
}

func fieldEqual(a, b Field) bool {
	switch av := a.(type) {
	case Int64:
		bv, ok := b.(Int64)
		return ok && av == bv
	case Bytes:
		bv, ok := b.(Bytes)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}

		return true
	default:
		return false
	}
}
