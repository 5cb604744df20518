package kmertab

import (
	"errors"
	"sync/atomic"
)

// Counter feeds k-mer occurrences into a Table, optionally behind a
// Prefilter, with a fixed insert mode. It is safe for concurrent use by
// any number of workers.
type Counter struct {
	table   *Table
	filter  *Prefilter
	force   bool
	skipped atomic.Uint64
	held    atomic.Uint64
}

// NewCounter creates a Counter writing to t. If pf is not nil, a k-mer is
// only counted once pf has seen it before. With force unset, inserts into a
// busy shard are dropped and tallied by Skipped.
func NewCounter(t *Table, pf *Prefilter, force bool) *Counter {
	return &Counter{table: t, filter: pf, force: force}
}

// Add records one occurrence of (x0, x1). It returns nil when the
// occurrence was counted, held back by the prefilter, or skipped under
// contention; any other error comes from the table.
func (c *Counter) Add(x0, x1 uint64, high bool) error {
	if c.filter != nil && !c.filter.TestAndAdd(x0, x1) {
		c.held.Add(1)
		return nil
	}
	err := c.table.Insert(x0, x1, high, c.force)
	if errors.Is(err, ErrWouldBlock) {
		c.skipped.Add(1)
		return nil
	}
	return err
}

// Skipped returns the number of occurrences dropped because their shard was
// busy.
func (c *Counter) Skipped() uint64 {
	return c.skipped.Load()
}

// HeldBack returns the number of occurrences the prefilter absorbed as
// first sightings.
func (c *Counter) HeldBack() uint64 {
	return c.held.Load()
}
