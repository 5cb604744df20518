package kmertab

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational events from a Table.
// Implementations must be safe for concurrent use; RecordInsert and
// RecordLookup sit on the hot path.
type MetricsCollector interface {
	// RecordInsert is called after each Insert. inserted reports a new
	// entry; blocked reports a non-forced insert dropped with ErrWouldBlock.
	RecordInsert(inserted, blocked bool)

	// RecordLookup is called after each Lookup.
	RecordLookup(found bool)

	// RecordDump is called after each Dump.
	RecordDump(duration time.Duration, err error)

	// RecordRestore is called after each Restore.
	RecordRestore(duration time.Duration, err error)
}

// NoopMetricsCollector discards all events.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(bool, bool)            {}
func (NoopMetricsCollector) RecordLookup(bool)                  {}
func (NoopMetricsCollector) RecordDump(time.Duration, error)    {}
func (NoopMetricsCollector) RecordRestore(time.Duration, error) {}

// BasicMetricsCollector counts events in memory.
type BasicMetricsCollector struct {
	Inserts      atomic.Int64 // applied inserts, new or updating
	NewEntries   atomic.Int64
	Blocked      atomic.Int64
	Lookups      atomic.Int64
	LookupMisses atomic.Int64
	Dumps        atomic.Int64
	DumpErrors   atomic.Int64
	Restores     atomic.Int64
	RestoreErrs  atomic.Int64
}

func (m *BasicMetricsCollector) RecordInsert(inserted, blocked bool) {
	if blocked {
		m.Blocked.Add(1)
		return
	}
	m.Inserts.Add(1)
	if inserted {
		m.NewEntries.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordLookup(found bool) {
	m.Lookups.Add(1)
	if !found {
		m.LookupMisses.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordDump(_ time.Duration, err error) {
	m.Dumps.Add(1)
	if err != nil {
		m.DumpErrors.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordRestore(_ time.Duration, err error) {
	m.Restores.Add(1)
	if err != nil {
		m.RestoreErrs.Add(1)
	}
}
