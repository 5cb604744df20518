package kmertab

// Kmer is the two-word encoding of a k-mer as produced by the k-mer hash.
type Kmer struct {
	X0, X1 uint64
}

// Lookuper resolves the counters of a k-mer. *Table implements it.
type Lookuper interface {
	Lookup(x0, x1 uint64) (Counts, bool)
}

type cacheEntry struct {
	counts Counts
	absent bool
}

// QueryCache memoizes lookups of k-mers that are queried repeatedly within a
// short window, such as the overlapping k-mers of one read. It holds no
// reference into the table and can be cleared at any time.
//
// A QueryCache is not safe for concurrent use; give each worker its own.
// A nil *QueryCache passes every query straight to the Lookuper.
type QueryCache struct {
	entries map[Kmer]cacheEntry
	hits    uint64
	misses  uint64
}

// NewQueryCache creates an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[Kmer]cacheEntry)}
}

// Get returns the counters of (x0, x1), asking src only the first time the
// k-mer is seen since the last Clear. Absent k-mers are remembered too.
func (c *QueryCache) Get(src Lookuper, x0, x1 uint64) (Counts, bool) {
	if c == nil {
		return src.Lookup(x0, x1)
	}

	key := Kmer{X0: x0, X1: x1}
	if e, ok := c.entries[key]; ok {
		c.hits++
		return e.counts, !e.absent
	}

	c.misses++
	counts, ok := src.Lookup(x0, x1)
	c.entries[key] = cacheEntry{counts: counts, absent: !ok}
	return counts, ok
}

// Clear forgets every cached k-mer.
func (c *QueryCache) Clear() {
	if c == nil {
		return
	}
	clear(c.entries)
}

// Len returns the number of cached k-mers.
func (c *QueryCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Hits returns the number of Get calls answered from the cache.
func (c *QueryCache) Hits() uint64 {
	if c == nil {
		return 0
	}
	return c.hits
}

// Misses returns the number of Get calls that went to the Lookuper.
func (c *QueryCache) Misses() uint64 {
	if c == nil {
		return 0
	}
	return c.misses
}
