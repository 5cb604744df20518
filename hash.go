package kmertab

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// keyHasher gives shard sets their identity: only the k-mer bits above the
// counters are hashed and compared.
type keyHasher struct{}

func (keyHasher) Hash(key uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key>>CountBits)
	return xxh3.Hash(buf[:])
}

func (keyHasher) Equal(a, b uint64) bool {
	return a>>CountBits == b>>CountBits
}

// hashPair computes the xxh3 hash of a k-mer encoding.
func hashPair(x0, x1 uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], x0)
	binary.LittleEndian.PutUint64(buf[8:], x1)
	return xxh3.Hash(buf[:])
}

// hashSplit splits a 64-bit hash into block index and intra-block hash.
func hashSplit(h uint64, numBlocks uint64) (blockIdx uint64, intraHash uint32) {
	// Upper 32 bits pick the block, lower 32 bits the positions inside it.
	blockIdx = (h >> 32) % numBlocks
	intraHash = uint32(h)
	return
}
