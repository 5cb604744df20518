package kmertab

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// cacheLineSize is the size of a CPU cache line in bytes.
const cacheLineSize = 64

// Prefilter is a lock-free Bloom filter over k-mer encodings. Placed in
// front of a Table it keeps k-mers seen only once, most of them sequencing
// errors, from ever taking a slot: a k-mer is counted from its second
// sighting on.
//
// The filter is split into 512-bit blocks. All probes of one k-mer land in
// the same block, so each operation touches a single cache line, and the
// probe positions come from one xxh3 hash taken modulo the distinct sizes of
// the block's partitions.
//
// All methods are safe for concurrent use.
type Prefilter struct {
	raw       []byte          // keeps the aligned allocation alive for GC
	blocks    []atomic.Uint64 // BlockWords words per block
	numBlocks uint64
	k         uint32
	primes    []uint32
	offsets   []uint32
	count     atomic.Uint64 // k-mers added, duplicates included
}

// NewPrefilter creates a prefilter for about expectedKmers distinct k-mers
// at the given false positive rate.
func NewPrefilter(expectedKmers uint64, fpRate float64) *Prefilter {
	p := OptimalParams(expectedKmers, fpRate)
	return NewPrefilterWithParams(p.NumBlocks, p.K)
}

// NewPrefilterWithParams creates a prefilter of numBlocks 512-bit blocks
// probed k times per k-mer. Unsupported k falls back to 7 probes.
func NewPrefilterWithParams(numBlocks uint64, k uint32) *Prefilter {
	numBlocks = max(numBlocks, 1)

	primes := GetPrimePartition(k)
	if primes == nil {
		k = defaultProbes
		primes = GetPrimePartition(k)
	}

	raw, blocks := makeAlignedAtomicUint64Slice(int(numBlocks * BlockWords))
	return &Prefilter{
		raw:       raw,
		blocks:    blocks,
		numBlocks: numBlocks,
		k:         k,
		primes:    primes,
		offsets:   ComputeOffsets(primes),
	}
}

// makeAlignedAtomicUint64Slice allocates a cache-line aligned slice of atomic.Uint64.
func makeAlignedAtomicUint64Slice(n int) ([]byte, []atomic.Uint64) {
	const atomicSize = 8
	raw := make([]byte, n*atomicSize+cacheLineSize-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := (cacheLineSize - int(addr%cacheLineSize)) % cacheLineSize
	aligned := unsafe.Slice((*atomic.Uint64)(unsafe.Pointer(&raw[offset])), n)
	return raw, aligned
}

// Add records the k-mer (x0, x1).
func (f *Prefilter) Add(x0, x1 uint64) {
	f.TestAndAdd(x0, x1)
}

// TestAndAdd records the k-mer and reports whether it may have been recorded
// before. Probe bits are set atomically, so when a new k-mer arrives from
// several goroutines at once at most one of them sees it as recorded.
func (f *Prefilter) TestAndAdd(x0, x1 uint64) bool {
	blockIdx, intraHash := hashSplit(hashPair(x0, x1), f.numBlocks)
	base := blockIdx * BlockWords

	present := true
	for i := uint32(0); i < f.k; i++ {
		bitPos := f.offsets[i] + intraHash%f.primes[i]
		mask := uint64(1) << (bitPos % 64)
		if f.blocks[base+uint64(bitPos/64)].Or(mask)&mask == 0 {
			present = false
		}
	}
	f.count.Add(1)
	return present
}

// Test reports whether the k-mer may have been recorded. False means it
// definitely was not.
func (f *Prefilter) Test(x0, x1 uint64) bool {
	blockIdx, intraHash := hashSplit(hashPair(x0, x1), f.numBlocks)
	base := blockIdx * BlockWords

	for i := uint32(0); i < f.k; i++ {
		bitPos := f.offsets[i] + intraHash%f.primes[i]
		if f.blocks[base+uint64(bitPos/64)].Load()&(1<<(bitPos%64)) == 0 {
			return false
		}
	}
	return true
}

// K returns the number of probes per k-mer.
func (f *Prefilter) K() uint32 {
	return f.k
}

// NumBlocks returns the number of 512-bit blocks.
func (f *Prefilter) NumBlocks() uint64 {
	return f.numBlocks
}

// Cap returns the size of the filter in bits.
func (f *Prefilter) Cap() uint64 {
	return f.numBlocks * BlockBits
}

// Count returns the number of Add and TestAndAdd calls.
func (f *Prefilter) Count() uint64 {
	return f.count.Load()
}

// EstimatedFillRatio returns the fraction of bits set.
func (f *Prefilter) EstimatedFillRatio() float64 {
	var set uint64
	for i := range f.blocks {
		set += uint64(bits.OnesCount64(f.blocks[i].Load()))
	}
	return float64(set) / float64(f.Cap())
}

// EstimatedFalsePositiveRate estimates the current false positive rate from
// the number of k-mers added.
func (f *Prefilter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.numBlocks, f.k, f.count.Load())
}
