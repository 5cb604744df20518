// Package bucket implements an open-addressing hash set of non-zero uint64
// elements whose identity is decided by a pluggable [Hasher].
//
// A Hasher may look at only part of an element. Elements that compare equal
// under the Hasher are the same entry, so the remaining bits of a stored
// element can be rewritten in place with [Set.Update] without moving it.
//
// Writers must be serialised by the caller. Readers ([Set.Get], [Set.Len],
// [Set.All]) need no lock: every slot is a single atomic word, and growth
// publishes a fully populated bucket array with one pointer swap, so a
// reader observes either the old or the new array and never a torn element.
package bucket

import (
	"iter"
	"sync/atomic"
	"unsafe"
)

// cacheLineSize is the size of a CPU cache line in bytes.
const cacheLineSize = 64

const (
	// minBuckets is the smallest non-empty bucket array.
	minBuckets = 4
	// MaxLoad is the occupancy ratio at which the bucket array doubles.
	MaxLoad = 0.77
)

// Hasher defines element identity for a Set. Equal(a, b) must imply
// Hash(a) == Hash(b).
type Hasher interface {
	Hash(key uint64) uint64
	Equal(a, b uint64) bool
}

// buckets is one generation of the bucket array.
type buckets struct {
	raw   []byte          // keeps the aligned allocation alive for GC
	slots []atomic.Uint64 // 0 marks an empty slot
	mask  uint64
	upper int64 // occupancy that triggers growth
}

func newBuckets(n int) *buckets {
	raw, slots := makeAlignedAtomicUint64Slice(n)
	return &buckets{
		raw:   raw,
		slots: slots,
		mask:  uint64(n - 1),
		upper: int64(float64(n)*MaxLoad + 0.5),
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

// Set is an open-addressing hash set with linear probing. The zero value is
// an empty set with no buckets allocated.
type Set[H Hasher] struct {
	hasher H
	cur    atomic.Pointer[buckets]
	size   atomic.Int64
}

// Len returns the number of elements in the set.
func (s *Set[H]) Len() int {
	return int(s.size.Load())
}

// Cap returns the number of buckets currently allocated.
func (s *Set[H]) Cap() int {
	b := s.cur.Load()
	if b == nil {
		return 0
	}
	return len(b.slots)
}

// Get returns the stored element equal to key under the Hasher.
func (s *Set[H]) Get(key uint64) (uint64, bool) {
	b := s.cur.Load()
	if b == nil {
		return 0, false
	}
	i := s.hasher.Hash(key) & b.mask
	for {
		v := b.slots[i].Load()
		if v == 0 {
			return 0, false
		}
		if s.hasher.Equal(v, key) {
			return v, true
		}
		i = (i + 1) & b.mask
	}
}

// Put stores key unless an equal element is already present. It returns the
// slot holding the element and whether key was newly inserted. The slot stays
// valid until the next call to Put, Reserve or Clear.
//
// Put panics if key is zero.
func (s *Set[H]) Put(key uint64) (slot int, inserted bool) {
	if key == 0 {
		panic("bucket: zero element")
	}
	b := s.cur.Load()
	if b == nil {
		b = s.rehash(minBuckets)
	} else if s.size.Load() >= b.upper {
		b = s.rehash(len(b.slots) << 1)
	}
	i := s.hasher.Hash(key) & b.mask
	for {
		v := b.slots[i].Load()
		if v == 0 {
			b.slots[i].Store(key)
			s.size.Add(1)
			return int(i), true
		}
		if s.hasher.Equal(v, key) {
			return int(i), false
		}
		i = (i + 1) & b.mask
	}
}

// Load returns the element in slot.
func (s *Set[H]) Load(slot int) uint64 {
	return s.cur.Load().slots[slot].Load()
}

// Update replaces the element in slot with v. v must be equal to the
// element it replaces under the Hasher.
func (s *Set[H]) Update(slot int, v uint64) {
	s.cur.Load().slots[slot].Store(v)
}

// Reserve resizes the bucket array to hold n buckets, rounded up to a power
// of two. It is a hint: nothing happens if the current elements would not
// fit under the load limit.
func (s *Set[H]) Reserve(n int) {
	if n <= 0 {
		return
	}
	n = nextPowerOf2(max(n, minBuckets))
	if s.size.Load() >= int64(float64(n)*MaxLoad+0.5) || s.Cap() == n {
		return
	}
	s.rehash(n)
}

// Clear removes every element and keeps the bucket array size.
func (s *Set[H]) Clear() {
	b := s.cur.Load()
	if b == nil {
		return
	}
	s.cur.Store(newBuckets(len(b.slots)))
	s.size.Store(0)
}

// All iterates over the elements in bucket order.
func (s *Set[H]) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		b := s.cur.Load()
		if b == nil {
			return
		}
		for i := range b.slots {
			if v := b.slots[i].Load(); v != 0 {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// rehash moves every element into a new array of n buckets and publishes it.
func (s *Set[H]) rehash(n int) *buckets {
	nb := newBuckets(n)
	if old := s.cur.Load(); old != nil {
		for i := range old.slots {
			v := old.slots[i].Load()
			if v == 0 {
				continue
			}
			j := s.hasher.Hash(v) & nb.mask
			for nb.slots[j].Load() != 0 {
				j = (j + 1) & nb.mask
			}
			nb.slots[j].Store(v)
		}
	}
	s.cur.Store(nb)
	return nb
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
