package kmertab

import (
	"fmt"
	"runtime"

	"github.com/jcalabro/kmertab/internal/bucket"
	"golang.org/x/sync/errgroup"
)

// shard is one independently locked partition of a Table.
type shard struct {
	lock spinLock
	set  bucket.Set[keyHasher]
}

// Table counts k-mers in 1<<PrefixBits() shards. Each entry is a single
// 64-bit key carrying the k-mer bits together with a saturating occurrence
// count and a saturating high-quality count.
//
// Insert is safe for concurrent use; writers to the same shard are
// serialised by the shard's lock, writers to different shards never
// interact. Lookup, Len and Histogram take no locks and may observe a
// concurrent insert either before or after it is applied.
//
// New and Close must not race with any other method.
type Table struct {
	k          int
	prefixBits int
	shards     []shard
	logger     *Logger
	metrics    MetricsCollector
}

// New creates an empty table for k-mers of length k split into
// 1<<prefixBits shards. If the k-mer bits left after the prefix would not fit
// in KeyBits, the prefix is raised until they do; PrefixBits reports the
// value in effect.
func New(k, prefixBits int, opts ...Option) (*Table, error) {
	o := applyOptions(opts)

	if k < 1 || k > MaxK {
		return nil, fmt.Errorf("%w: k=%d is outside [1, %d]", ErrInvalidParams, k, MaxK)
	}
	if prefixBits < 0 {
		return nil, fmt.Errorf("%w: negative prefix bits %d", ErrInvalidParams, prefixBits)
	}

	clamped := ClampPrefixBits(k, prefixBits)
	if clamped != prefixBits {
		o.logger.Debug("raised shard prefix to fit the key width",
			"k", k,
			"requested", prefixBits,
			"prefix_bits", clamped,
		)
	}
	if w := encodingWidth(k); clamped > w {
		return nil, fmt.Errorf("%w: %d prefix bits exceed the %d-bit encoding of k=%d", ErrInvalidParams, clamped, w, k)
	}
	if clamped > MaxPrefixBits {
		return nil, fmt.Errorf("%w: k=%d needs %d prefix bits, limit is %d", ErrInvalidParams, k, clamped, MaxPrefixBits)
	}

	t := &Table{
		k:          k,
		prefixBits: clamped,
		shards:     make([]shard, 1<<clamped),
		logger:     o.logger,
		metrics:    o.metrics,
	}
	if o.shardCapacity > 0 {
		for i := range t.shards {
			t.shards[i].set.Reserve(int(float64(o.shardCapacity)/bucket.MaxLoad) + 1)
		}
	}
	return t, nil
}

// Close releases every shard. It is safe to call on a nil or already closed
// table. A closed table must not be used again.
func (t *Table) Close() {
	if t == nil || t.shards == nil {
		return
	}
	for i := range t.shards {
		t.shards[i].set.Clear()
	}
	t.shards = nil
}

// K returns the k-mer length.
func (t *Table) K() int {
	return t.k
}

// PrefixBits returns the number of encoding bits that select a shard.
func (t *Table) PrefixBits() int {
	return t.prefixBits
}

// NumShards returns the number of shards.
func (t *Table) NumShards() int {
	return len(t.shards)
}

// Insert records one occurrence of the k-mer (x0, x1). A new entry starts
// with an occurrence count of 1, and a high-quality count of 1 if high is
// set. An existing entry has its occurrence count incremented, and its
// high-quality count too if high is set; both stop at their maximum.
//
// If the shard is locked by another writer, Insert returns ErrWouldBlock
// without changing anything, unless force is set, in which case it waits
// for the lock.
func (t *Table) Insert(x0, x1 uint64, high, force bool) error {
	idx, key := Encode(t.k, t.prefixBits, x0, x1)
	s := &t.shards[idx]

	if !s.lock.TryLock() {
		if !force {
			t.metrics.RecordInsert(false, true)
			return ErrWouldBlock
		}
		s.lock.Lock()
	}
	defer s.lock.Unlock()

	if high {
		key |= 1 << highShift
	}
	slot, inserted := s.set.Put(key)
	if !inserted {
		cur := s.set.Load(slot)
		next := cur
		if next&MaxCount != MaxCount {
			next++
		}
		if high && next>>highShift&MaxHighCount != MaxHighCount {
			next += 1 << highShift
		}
		if next != cur {
			s.set.Update(slot, next)
		}
	}
	t.metrics.RecordInsert(inserted, false)
	return nil
}

// Lookup returns the counters of the k-mer (x0, x1), or false if it was
// never inserted.
func (t *Table) Lookup(x0, x1 uint64) (Counts, bool) {
	idx, key := Encode(t.k, t.prefixBits, x0, x1)
	v, ok := t.shards[idx].set.Get(key)
	t.metrics.RecordLookup(ok)
	if !ok {
		return Counts{}, false
	}
	return DecodeCounts(v), true
}

// Len returns the number of distinct k-mers in the table.
func (t *Table) Len() uint64 {
	var n uint64
	for i := range t.shards {
		n += uint64(t.shards[i].set.Len())
	}
	return n
}

// Histogram is the distribution of counter values over all entries.
type Histogram struct {
	// Counts[c] is the number of entries with occurrence count c.
	Counts [MaxCount + 1]uint64
	// High[c] is the number of entries with high-quality count c.
	High [MaxHighCount + 1]uint64
	// Mode is the occurrence count shared by the most entries, the smallest
	// on ties, or -1 for an empty table.
	Mode int
}

func (h *Histogram) merge(o *Histogram) {
	for i := range h.Counts {
		h.Counts[i] += o.Counts[i]
	}
	for i := range h.High {
		h.High[i] += o.High[i]
	}
}

// Histogram tallies the counters of every entry. Shards are scanned in
// parallel; the result is meant to be taken once inserts have stopped.
func (t *Table) Histogram() Histogram {
	workers := min(runtime.GOMAXPROCS(0), len(t.shards))
	partial := make([]Histogram, workers)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			h := &partial[w]
			for i := w; i < len(t.shards); i += workers {
				for key := range t.shards[i].set.All() {
					h.Counts[key&MaxCount]++
					h.High[key>>highShift&MaxHighCount]++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out Histogram
	for i := range partial {
		out.merge(&partial[i])
	}

	out.Mode = -1
	var best uint64
	for c, n := range out.Counts {
		if n > best {
			best, out.Mode = n, c
		}
	}
	return out
}
