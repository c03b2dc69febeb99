package merk

import (
	"encoding/binary"
	"fmt"
)

// KeyFormat builds prefixed, lexicographically sortable []byte keys. Each
// segment has a fixed width given by layout, except that a width of 0 on the
// last segment accepts a segment of any length.
type KeyFormat struct {
	prefix byte
	layout []int
	length int
}

// NewKeyFormat creates a key format from a single byte prefix and the segment
// widths that follow it.
func NewKeyFormat(prefix byte, layout ...int) *KeyFormat {
	length := 1
	for i, l := range layout {
		if l == 0 && i != len(layout)-1 {
			panic("only the last segment of a KeyFormat may have variable width")
		}
		length += l
	}
	return &KeyFormat{
		prefix: prefix,
		layout: layout,
		length: length,
	}
}

// KeyBytes formats the byte segments into a key. Fixed width segments
// shorter than their width are left padded with zeros.
func (kf *KeyFormat) KeyBytes(segments ...[]byte) []byte {
	if len(segments) > len(kf.layout) {
		panic(fmt.Errorf("KeyFormat.KeyBytes() is provided with %d segments but format only has %d",
			len(segments), len(kf.layout)))
	}
	size := kf.length
	if n := len(kf.layout); n > 0 && kf.layout[n-1] == 0 && len(segments) == n {
		size += len(segments[n-1])
	}
	key := make([]byte, size)
	key[0] = kf.prefix
	n := 1
	for i, s := range segments {
		l := kf.layout[i]
		if l == 0 {
			n += copy(key[n:], s)
			break
		}
		if len(s) > l {
			panic(fmt.Errorf("length of segment %X provided to KeyFormat.KeyBytes() is longer than the %d bytes "+
				"required by layout for segment %d", s, l, i))
		}
		n += l
		// Big endian so pad on left if not given the full width for this segment
		copy(key[n-len(s):n], s)
	}
	return key[:n]
}

// Key formats the args into a key. With no args it returns the bare prefix,
// the start of the format's key space.
func (kf *KeyFormat) Key(args ...interface{}) []byte {
	segments := make([][]byte, len(args))
	for i, a := range args {
		segments[i] = format(a)
	}
	return kf.KeyBytes(segments...)
}

// Prefix returns the prefix as a string.
func (kf *KeyFormat) Prefix() string {
	return string([]byte{kf.prefix})
}

func format(a interface{}) []byte {
	switch v := a.(type) {
	case uint64:
		bs := make([]byte, 8)
		binary.BigEndian.PutUint64(bs, v)
		return bs
	case int64:
		return format(uint64(v))
	case int:
		return format(int64(v))
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		panic(fmt.Errorf("KeyFormat format() does not support formatting value of type %T: %v", a, a))
	}
}
