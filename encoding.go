package merk

import (
	"encoding/binary"
	"io"

	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

// Encoded node layout, all integers as varints and byte strings length
// prefixed:
//
//	value
//	left  present (0/1) [key hash height size]
//	right present (0/1) [key hash height size]
//
// The node key is not encoded; it is the storage key.

// Encode serializes a committed node. Resident children must be committed
// too, since their hashes are written out.
func (node *Node) Encode() ([]byte, error) {
	if node.modified {
		return nil, errors.Wrapf(ErrNodeModified, "encoding node %X", node.key)
	}
	buf := proto.NewBuffer(make([]byte, 0, node.encodedSize()))
	if err := buf.EncodeRawBytes(node.value); err != nil {
		return nil, err
	}
	for _, left := range [2]bool{true, false} {
		if err := encodeLink(buf, node.Link(left)); err != nil {
			return nil, errors.Wrapf(err, "encoding %s link of %X", sideName(left), node.key)
		}
	}
	return buf.Bytes(), nil
}

func encodeLink(buf *proto.Buffer, l *Link) error {
	if l == nil {
		return buf.EncodeVarint(0)
	}
	if l.IsModified() {
		return ErrNodeModified
	}
	hash := l.Hash()
	if err := buf.EncodeVarint(1); err != nil {
		return err
	}
	if err := buf.EncodeRawBytes(l.Key()); err != nil {
		return err
	}
	if err := buf.EncodeRawBytes(hash[:]); err != nil {
		return err
	}
	if err := buf.EncodeVarint(uint64(l.Height())); err != nil {
		return err
	}
	return buf.EncodeVarint(uint64(l.Size()))
}

func (node *Node) encodedSize() int {
	n := 2 + proto.SizeVarint(uint64(len(node.value))) + len(node.value)
	for _, left := range [2]bool{true, false} {
		if l := node.Link(left); l != nil {
			n += proto.SizeVarint(uint64(len(l.Key()))) + len(l.Key()) + 1 + HashSize + 2*binary.MaxVarintLen64
		}
	}
	return n
}

// DecodeNode rebuilds a committed node from its encoding. Both children come
// back as pruned links and the hash is recomputed from the decoded fields.
func DecodeNode(key []byte, bz []byte) (*Node, error) {
	buf := proto.NewBuffer(bz)
	value, err := buf.DecodeRawBytes(true)
	if err != nil {
		return nil, errors.Wrap(err, "decoding node.value")
	}
	node := &Node{
		key:   key,
		value: value,
	}
	for _, left := range [2]bool{true, false} {
		l, err := decodeLink(buf)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding node.%s", sideName(left))
		}
		node.setLink(left, l)
	}
	if _, err := buf.DecodeVarint(); err != io.ErrUnexpectedEOF {
		return nil, errors.New("trailing bytes after node")
	}
	node.updateHeightSize()
	node.hash = node.computeHash()
	return node, nil
}

func decodeLink(buf *proto.Buffer) (*Link, error) {
	present, err := buf.DecodeVarint()
	if err != nil {
		return nil, err
	}
	switch present {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, errors.Errorf("invalid link marker %d", present)
	}

	key, err := buf.DecodeRawBytes(true)
	if err != nil {
		return nil, errors.Wrap(err, "key")
	}
	hashBytes, err := buf.DecodeRawBytes(false)
	if err != nil {
		return nil, errors.Wrap(err, "hash")
	}
	if len(hashBytes) != HashSize {
		return nil, errors.Errorf("expected %d-byte hash, got %d bytes", HashSize, len(hashBytes))
	}
	height, err := buf.DecodeVarint()
	if err != nil {
		return nil, errors.Wrap(err, "height")
	}
	if height == 0 || height > 255 {
		return nil, errors.Errorf("invalid height %d", height)
	}
	size, err := buf.DecodeVarint()
	if err != nil {
		return nil, errors.Wrap(err, "size")
	}
	if size == 0 {
		return nil, errors.New("invalid size 0")
	}

	var hash Hash
	copy(hash[:], hashBytes)
	return NewPrunedLink(key, hash, uint8(height), int64(size)), nil
}
