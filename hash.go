package merk

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/gogo/protobuf/proto"
	"golang.org/x/crypto/blake2b"
)

// HashSize is the size in bytes of every node hash.
const HashSize = blake2b.Size256

// Hash is the digest stored in, and authenticating, every node.
type Hash [HashSize]byte

// NullHash stands in for the hash of an absent child.
var NullHash Hash

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsNull reports whether h is the absent-child sentinel.
func (h Hash) IsNull() bool {
	return h == NullHash
}

// KVHash hashes a key/value pair. Both are length prefixed so that distinct
// pairs can never produce the same preimage.
func KVHash(key, value []byte) Hash {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(key)+len(value))
	buf = append(buf, proto.EncodeVarint(uint64(len(key)))...)
	buf = append(buf, key...)
	buf = append(buf, proto.EncodeVarint(uint64(len(value)))...)
	buf = append(buf, value...)
	return blake2b.Sum256(buf)
}

// NodeHash combines a node's kv hash with the hashes of its children.
func NodeHash(kv, left, right Hash) Hash {
	var buf [3 * HashSize]byte
	copy(buf[:], kv[:])
	copy(buf[HashSize:], left[:])
	copy(buf[2*HashSize:], right[:])
	return blake2b.Sum256(buf[:])
}
