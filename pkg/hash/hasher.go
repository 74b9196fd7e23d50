package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// Hasher computes the 32-bit hash a key is routed by. The table's
// directory/bucket lookup only ever uses the low/high bits of this value,
// so implementations need not be cryptographic, only well-distributed.
type Hasher func(key int64) uint32

// Comparator orders two keys, returning negative, zero, or positive exactly
// as for the entries in a bucket to be considered equal (and therefore
// duplicates) Comparator must return zero.
type Comparator func(a, b int64) int

func keyBytes(key int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(key))
	return buf
}

// XxHasher is the table's default hasher, truncating xxHash's 64-bit
// digest to the 32-bit width the routing logic expects.
func XxHasher(key int64) uint32 {
	return uint32(xxhash.Sum64(keyBytes(key)))
}

// MurmurHasher is an alternate 32-bit hasher, offered as a constructor
// option so callers (and tests) can confirm routing is hash-function
// agnostic.
func MurmurHasher(key int64) uint32 {
	return murmur3.Sum32(keyBytes(key))
}

// IntCompare is the default Comparator for int64 keys.
func IntCompare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
