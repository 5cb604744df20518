// Package kmertab provides a concurrent, memory-bounded counting table for
// k-mers, the short fixed-length substrings of sequencing reads.
//
// For every distinct k-mer the table keeps two saturating counters: how
// often it occurred (up to 255) and how often it occurred with high base
// quality (up to 63). Worker goroutines stream reads and insert k-mers
// concurrently; later passes look counts up per k-mer, typically to decide
// whether a k-mer is trusted or an error.
//
// # Key Layout
//
// The package does not extract or canonicalise k-mers. Callers hash each
// k-mer into two k-bit words (x0, x1) and pass those in; the table treats
// them as an opaque bit pattern.
//
// The encoding is split into a shard index and a stored key. The top
// PrefixBits bits of the encoding choose one of 1<<PrefixBits shards and are
// not stored. The remaining bits sit above a 14-bit counter field in a
// single uint64, which is the only thing a shard stores per entry:
//
//	bits  0..7   occurrence count
//	bits  8..13  high-quality count
//	bits 14..63  k-mer bits below the shard prefix
//
// Shard sets hash and compare only bits 14 and up, so counters are updated
// in place without disturbing an entry's position. At most [KeyBits] k-mer
// bits fit, which is why [New] raises PrefixBits for long k-mers.
//
// # Concurrency
//
// [Table.Insert] locks only the k-mer's shard. With force unset it never
// waits: if the shard is busy it returns [ErrWouldBlock] and changes
// nothing, which suits a best-effort first pass such as coverage
// estimation. With force set it spins until the shard is free.
//
// [Table.Lookup], [Table.Len] and [Table.Histogram] take no locks. Every
// slot is one atomic word and shard growth publishes a complete new bucket
// array at once, so readers see each entry either before or after a
// concurrent update, never half written.
//
// # Persistence
//
// [Table.Dump] and [Restore] use a flat little-endian layout: a header of k
// and the prefix bits, then per shard its bucket count, entry count and raw
// keys. Restore rebuilds exactly the shard layout that was dumped and
// rejects streams with repeated or zero keys with [ErrCorruptState]. Paths
// ending in ".zst" or ".lz4" are compressed; "-" means stdout or stdin.
//
// # Queries
//
// A [QueryCache] sits in front of Lookup for one worker and remembers
// answers, including misses, until cleared. Overlapping k-mers of a read are
// looked up many times during correction; clear the cache per read to keep
// it small.
//
// # Prefiltering
//
// A [Prefilter] is a blocked Bloom filter. Wired into a [Counter], it holds
// back the first sighting of every k-mer, so the table only stores k-mers
// seen at least twice and their occurrence count is one less than the
// number of sightings.
package kmertab
