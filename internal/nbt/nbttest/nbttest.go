// Package nbttest builds synthetic tag streams for tests. The encoder is the
// inverse of nbt.Decode and exists only so tests can exercise round trips and
// construct container blobs without shipping binary fixtures.
package nbttest

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"skyvault.gg/internal/nbt"
)

// Encode serializes a Compound tag as a named-root tag stream, matching the
// wire layout nbt.Decode expects. Compound children are written in sorted key
// order for deterministic output.
func Encode(root nbt.Tag) []byte {
	if root.Type != nbt.TypeCompound {
		panic(fmt.Sprintf("nbttest: root must be Compound, got %s", root.Type))
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(nbt.TypeCompound))
	writeString(&buf, "") // root name
	writePayload(&buf, root)
	return buf.Bytes()
}

// Blob gzips an encoded tag stream and base64s it, producing the opaque
// container-blob string the inventory decoder consumes.
func Blob(root nbt.Tag) string {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write(Encode(root))
	_ = w.Close()
	return base64.StdEncoding.EncodeToString(gz.Bytes())
}

// Gzip compresses an already-encoded stream, for building nested sub-blobs.
func Gzip(raw []byte) []byte {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write(raw)
	_ = w.Close()
	return gz.Bytes()
}

// Compound is a convenience constructor.
func Compound(m map[string]nbt.Tag) nbt.Tag {
	return nbt.Tag{Type: nbt.TypeCompound, Compound: m}
}

// List builds a homogeneous list tag.
func List(elem nbt.TagType, items ...nbt.Tag) nbt.Tag {
	return nbt.Tag{Type: nbt.TypeList, Elem: elem, List: items}
}

// String builds a string tag.
func String(s string) nbt.Tag { return nbt.Tag{Type: nbt.TypeString, Str: s} }

// Int builds an int tag.
func Int(v int32) nbt.Tag { return nbt.Tag{Type: nbt.TypeInt, Int: v} }

// Short builds a short tag.
func Short(v int16) nbt.Tag { return nbt.Tag{Type: nbt.TypeShort, Short: v} }

// Byte builds a byte tag.
func Byte(v int8) nbt.Tag { return nbt.Tag{Type: nbt.TypeByte, Byte: v} }

// ByteArray builds a byte-array tag.
func ByteArray(b []byte) nbt.Tag { return nbt.Tag{Type: nbt.TypeByteArray, ByteArray: b} }

func writeString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writePayload(buf *bytes.Buffer, t nbt.Tag) {
	switch t.Type {
	case nbt.TypeByte:
		buf.WriteByte(byte(t.Byte))
	case nbt.TypeShort:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(t.Short))
		buf.Write(b[:])
	case nbt.TypeInt:
		writeInt32(buf, t.Int)
	case nbt.TypeLong:
		writeInt64(buf, t.Long)
	case nbt.TypeFloat:
		writeInt32(buf, int32(math.Float32bits(t.Float)))
	case nbt.TypeDouble:
		writeInt64(buf, int64(math.Float64bits(t.Double)))
	case nbt.TypeByteArray:
		writeInt32(buf, int32(len(t.ByteArray)))
		buf.Write(t.ByteArray)
	case nbt.TypeString:
		writeString(buf, t.Str)
	case nbt.TypeList:
		buf.WriteByte(byte(t.Elem))
		writeInt32(buf, int32(len(t.List)))
		for _, item := range t.List {
			writePayload(buf, item)
		}
	case nbt.TypeCompound:
		keys := make([]string, 0, len(t.Compound))
		for k := range t.Compound {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := t.Compound[k]
			buf.WriteByte(byte(child.Type))
			writeString(buf, k)
			writePayload(buf, child)
		}
		buf.WriteByte(byte(nbt.TypeEnd))
	case nbt.TypeIntArray:
		writeInt32(buf, int32(len(t.IntArray)))
		for _, v := range t.IntArray {
			writeInt32(buf, v)
		}
	case nbt.TypeLongArray:
		writeInt32(buf, int32(len(t.LongArray)))
		for _, v := range t.LongArray {
			writeInt64(buf, v)
		}
	default:
		panic(fmt.Sprintf("nbttest: cannot encode %s", t.Type))
	}
}
