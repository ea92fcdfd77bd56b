// Package nbt decodes the game's named binary tag format: a self-describing,
// big-endian, length-prefixed tree of typed values. Every serialized inventory
// container bottoms out in one of these streams.
package nbt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type TagType byte

const (
	TypeEnd TagType = iota
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeByteArray
	TypeString
	TypeList
	TypeCompound
	TypeIntArray
	TypeLongArray
)

func (t TagType) String() string {
	switch t {
	case TypeEnd:
		return "End"
	case TypeByte:
		return "Byte"
	case TypeShort:
		return "Short"
	case TypeInt:
		return "Int"
	case TypeLong:
		return "Long"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeByteArray:
		return "ByteArray"
	case TypeString:
		return "String"
	case TypeList:
		return "List"
	case TypeCompound:
		return "Compound"
	case TypeIntArray:
		return "IntArray"
	case TypeLongArray:
		return "LongArray"
	}
	return fmt.Sprintf("TagType(%d)", byte(t))
}

// ErrMalformed marks a corrupt or truncated tag stream. All decode failures
// wrap it so callers can distinguish "bad blob" from their own staging errors.
var ErrMalformed = errors.New("malformed tag stream")

// Tag is one node of the decoded tree. Type selects which field is live;
// everything else is zero. Compound order is not preserved (the wire format
// does not make it meaningful).
type Tag struct {
	Type TagType

	Byte   int8
	Short  int16
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Str    string

	ByteArray []byte
	IntArray  []int32
	LongArray []int64

	// List payload. Elem records the element type so empty lists survive
	// a round trip.
	Elem TagType
	List []Tag

	Compound map[string]Tag
}

// Get returns the named child of a Compound tag.
func (t Tag) Get(name string) (Tag, bool) {
	if t.Type != TypeCompound {
		return Tag{}, false
	}
	c, ok := t.Compound[name]
	return c, ok
}

// GetString returns the named child's string value, or "" when the child is
// absent or not a string.
func (t Tag) GetString(name string) string {
	c, ok := t.Get(name)
	if !ok || c.Type != TypeString {
		return ""
	}
	return c.Str
}

// Decode parses one uncompressed tag stream. The stream must start with a
// named Compound (the conventional file root); its name is discarded.
func Decode(data []byte) (Tag, error) {
	d := &decoder{buf: data}
	typ, err := d.readByte()
	if err != nil {
		return Tag{}, err
	}
	if TagType(typ) != TypeCompound {
		return Tag{}, fmt.Errorf("%w: root tag is %s, want Compound", ErrMalformed, TagType(typ))
	}
	if _, err := d.readString(); err != nil {
		return Tag{}, err
	}
	root, err := d.payload(TypeCompound, 0)
	if err != nil {
		return Tag{}, err
	}
	return root, nil
}

// maxDepth bounds tree recursion. Real container data nests a handful of
// levels; anything deeper is treated as corrupt rather than risked against
// the stack.
const maxDepth = 512

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) readByte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, fmt.Errorf("%w: unexpected end of stream at offset %d", ErrMalformed, d.off)
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) read(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, d.off, len(d.buf)-d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) readInt16() (int16, error) {
	b, err := d.read(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (d *decoder) readInt32() (int32, error) {
	b, err := d.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (d *decoder) readInt64() (int64, error) {
	b, err := d.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readInt16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d", ErrMalformed, n)
	}
	b, err := d.read(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) payload(typ TagType, depth int) (Tag, error) {
	if depth > maxDepth {
		return Tag{}, fmt.Errorf("%w: nesting exceeds %d levels", ErrMalformed, maxDepth)
	}
	switch typ {
	case TypeByte:
		b, err := d.readByte()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeByte, Byte: int8(b)}, nil

	case TypeShort:
		v, err := d.readInt16()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeShort, Short: v}, nil

	case TypeInt:
		v, err := d.readInt32()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeInt, Int: v}, nil

	case TypeLong:
		v, err := d.readInt64()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeLong, Long: v}, nil

	case TypeFloat:
		v, err := d.readInt32()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeFloat, Float: math.Float32frombits(uint32(v))}, nil

	case TypeDouble:
		v, err := d.readInt64()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeDouble, Double: math.Float64frombits(uint64(v))}, nil

	case TypeByteArray:
		n, err := d.readInt32()
		if err != nil {
			return Tag{}, err
		}
		if n < 0 {
			return Tag{}, fmt.Errorf("%w: negative byte array length %d", ErrMalformed, n)
		}
		b, err := d.read(int(n))
		if err != nil {
			return Tag{}, err
		}
		out := make([]byte, n)
		copy(out, b)
		return Tag{Type: TypeByteArray, ByteArray: out}, nil

	case TypeString:
		s, err := d.readString()
		if err != nil {
			return Tag{}, err
		}
		return Tag{Type: TypeString, Str: s}, nil

	case TypeList:
		eb, err := d.readByte()
		if err != nil {
			return Tag{}, err
		}
		elem := TagType(eb)
		n, err := d.readInt32()
		if err != nil {
			return Tag{}, err
		}
		if n < 0 {
			return Tag{}, fmt.Errorf("%w: negative list length %d", ErrMalformed, n)
		}
		if elem == TypeEnd && n > 0 {
			return Tag{}, fmt.Errorf("%w: non-empty list of End tags", ErrMalformed)
		}
		// An empty list keeps a nil payload so decoded trees compare equal
		// to hand-built ones.
		var list []Tag
		if n > 0 {
			list = make([]Tag, 0, min(int(n), 4096))
		}
		for i := int32(0); i < n; i++ {
			item, err := d.payload(elem, depth+1)
			if err != nil {
				return Tag{}, err
			}
			list = append(list, item)
		}
		return Tag{Type: TypeList, Elem: elem, List: list}, nil

	case TypeCompound:
		m := map[string]Tag{}
		for {
			cb, err := d.readByte()
			if err != nil {
				return Tag{}, err
			}
			child := TagType(cb)
			if child == TypeEnd {
				return Tag{Type: TypeCompound, Compound: m}, nil
			}
			if child > TypeLongArray {
				return Tag{}, fmt.Errorf("%w: unknown tag type %d at offset %d", ErrMalformed, cb, d.off-1)
			}
			name, err := d.readString()
			if err != nil {
				return Tag{}, err
			}
			val, err := d.payload(child, depth+1)
			if err != nil {
				return Tag{}, err
			}
			m[name] = val
		}

	case TypeIntArray:
		n, err := d.readInt32()
		if err != nil {
			return Tag{}, err
		}
		if n < 0 {
			return Tag{}, fmt.Errorf("%w: negative int array length %d", ErrMalformed, n)
		}
		if int64(n)*4 > int64(len(d.buf)-d.off) {
			return Tag{}, fmt.Errorf("%w: int array length %d exceeds remaining stream", ErrMalformed, n)
		}
		var out []int32
		if n > 0 {
			out = make([]int32, n)
		}
		for i := range out {
			v, err := d.readInt32()
			if err != nil {
				return Tag{}, err
			}
			out[i] = v
		}
		return Tag{Type: TypeIntArray, IntArray: out}, nil

	case TypeLongArray:
		n, err := d.readInt32()
		if err != nil {
			return Tag{}, err
		}
		if n < 0 {
			return Tag{}, fmt.Errorf("%w: negative long array length %d", ErrMalformed, n)
		}
		if int64(n)*8 > int64(len(d.buf)-d.off) {
			return Tag{}, fmt.Errorf("%w: long array length %d exceeds remaining stream", ErrMalformed, n)
		}
		var out []int64
		if n > 0 {
			out = make([]int64, n)
		}
		for i := range out {
			v, err := d.readInt64()
			if err != nil {
				return Tag{}, err
			}
			out[i] = v
		}
		return Tag{Type: TypeLongArray, LongArray: out}, nil
	}
	return Tag{}, fmt.Errorf("%w: unknown tag type %d", ErrMalformed, byte(typ))
}
