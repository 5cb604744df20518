package kmertab

import "math"

const (
	// BlockBits is the number of bits per prefilter block (one cache line).
	BlockBits = 512
	// BlockWords is the number of uint64s per block.
	BlockWords = BlockBits / 64

	ln2        = 0.6931471805599453
	ln2Squared = 0.4804530139182014

	minProbes     = 3
	maxProbes     = 14
	defaultProbes = 7
)

// primePartitions splits a 512-bit block into k strictly distinct segment
// sizes summing to 512. Hashing once and taking the value modulo each size
// gives k independent probe positions.
//
// Even k use only primes. Odd k need one even filler, since an odd number of
// odd sizes cannot sum to 512.
var primePartitions = map[uint32][]uint32{
	3:  {167, 173, 172},
	4:  {109, 127, 137, 139},
	5:  {97, 101, 103, 109, 102},
	6:  {61, 79, 83, 89, 97, 103},
	7:  {61, 67, 71, 79, 83, 89, 62},
	8:  {37, 47, 53, 61, 67, 71, 79, 97},
	9:  {41, 43, 47, 53, 59, 67, 71, 73, 58},
	10: {31, 37, 41, 43, 47, 53, 59, 61, 67, 73},
	11: {29, 31, 37, 41, 43, 44, 47, 53, 59, 61, 67},
	12: {17, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 71},
	13: {17, 19, 23, 29, 31, 37, 41, 43, 47, 52, 53, 59, 61},
	14: {11, 13, 17, 19, 23, 29, 31, 37, 41, 47, 53, 59, 61, 71},
}

// PrefilterParams sizes a Prefilter.
type PrefilterParams struct {
	NumBlocks   uint64  // number of 512-bit blocks
	K           uint32  // probes per k-mer
	BitsPerKmer float64 // ideal bits per expected k-mer before block rounding
}

// OptimalParams sizes a prefilter for expectedKmers distinct k-mers at the
// given false positive rate. Out-of-range rates are pulled into (0, 1).
func OptimalParams(expectedKmers uint64, fpRate float64) PrefilterParams {
	expectedKmers = max(expectedKmers, 1)
	switch {
	case fpRate <= 0:
		fpRate = 0.0001
	case fpRate >= 1:
		fpRate = 0.99
	}

	bitsPerKmer := -math.Log(fpRate) / ln2Squared
	numBlocks := uint64(math.Ceil(float64(expectedKmers) * bitsPerKmer / BlockBits))

	// k = (m/n) ln 2, using m after rounding up to whole blocks.
	actual := float64(numBlocks*BlockBits) / float64(expectedKmers)
	k := uint32(math.Round(actual * ln2))
	k = min(max(k, minProbes), maxProbes)

	return PrefilterParams{NumBlocks: numBlocks, K: k, BitsPerKmer: bitsPerKmer}
}

// GetPrimePartition returns the block partition for k probes, or nil if k
// is unsupported.
func GetPrimePartition(k uint32) []uint32 {
	return primePartitions[k]
}

// ComputeOffsets returns the starting bit of each partition within a block.
func ComputeOffsets(primes []uint32) []uint32 {
	offsets := make([]uint32, len(primes))
	var sum uint32
	for i, p := range primes {
		offsets[i] = sum
		sum += p
	}
	return offsets
}

// EstimateFalsePositiveRate returns (1 - e^(-kn/m))^k for a filter of
// numBlocks blocks holding n k-mers.
func EstimateFalsePositiveRate(numBlocks uint64, k uint32, n uint64) float64 {
	m := float64(numBlocks * BlockBits)
	if m == 0 || n == 0 {
		return 0
	}
	kf := float64(k)
	return math.Pow(1-math.Exp(-kf*float64(n)/m), kf)
}
