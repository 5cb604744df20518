package kmertab

const (
	// KeyBits is the number of k-mer bits a stored key can hold above the
	// counter fields.
	KeyBits = 50

	// CountBits is the width of the counter fields at the low end of a key.
	// Key identity is decided by the bits above them.
	CountBits = 14

	// MaxCount is the saturation value of the occurrence counter.
	MaxCount = 0xff

	// MaxHighCount is the saturation value of the high-quality counter.
	MaxHighCount = 0x3f

	// MaxK is the longest supported k-mer.
	MaxK = 63

	// MaxPrefixBits bounds the shard prefix, and so the table to 1<<24 shards.
	MaxPrefixBits = 24

	highShift = 8
)

// Counts holds the two saturating counters stored with a k-mer.
type Counts struct {
	Low  uint8 // occurrences, saturating at MaxCount
	High uint8 // high-quality occurrences, saturating at MaxHighCount
}

// Packed returns the counters in their 14-bit key layout, High<<8 | Low.
func (c Counts) Packed() int {
	return int(c.High)<<highShift | int(c.Low)
}

// DecodeCounts extracts the counters from a stored key.
func DecodeCounts(key uint64) Counts {
	return Counts{
		Low:  uint8(key & MaxCount),
		High: uint8(key >> highShift & MaxHighCount),
	}
}

// ClampPrefixBits raises prefixBits until the k-mer bits left in the key fit
// in KeyBits.
func ClampPrefixBits(k, prefixBits int) int {
	if 2*k-prefixBits > KeyBits {
		return 2*k - KeyBits
	}
	return prefixBits
}

// encodingWidth is the number of bits the shard prefix is taken from.
func encodingWidth(k int) int {
	if k <= 32 {
		return 2 * k
	}
	return k
}

// Encode splits a k-mer encoding into its shard index and the bare key
// stored in that shard. x0 and x1 are the two k-bit halves produced by the
// k-mer hash; bits above k are ignored.
//
// For k <= 32 the halves are concatenated into one 2k-bit value whose top
// prefixBits select the shard. Longer k-mers take the shard from the top of
// x0 alone and keep the rest of x0 above all of x1 in the key.
//
// The bare key has zeroed counters except bit 0, which is the first
// occurrence. prefixBits must already be clamped with ClampPrefixBits.
func Encode(k, prefixBits int, x0, x1 uint64) (shard, key uint64) {
	kmask := uint64(1)<<k - 1
	x0 &= kmask
	x1 &= kmask
	if k <= 32 {
		t := 2*k - prefixBits
		z := x0<<k | x1
		return z >> t, (z&(uint64(1)<<t-1))<<CountBits | 1
	}
	t := k - prefixBits
	return x0 >> t, ((x0&(uint64(1)<<t-1))<<k|x1)<<CountBits | 1
}
