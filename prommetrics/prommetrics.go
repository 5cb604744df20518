// Package prommetrics exports count table metrics to Prometheus.
package prommetrics

import (
	"time"

	"github.com/jcalabro/kmertab"
	"github.com/prometheus/client_golang/prometheus"
)

var _ kmertab.MetricsCollector = (*Collector)(nil)

// Collector implements kmertab.MetricsCollector with Prometheus counters and
// histograms.
type Collector struct {
	inserts     *prometheus.CounterVec
	lookups     *prometheus.CounterVec
	persistTime *prometheus.HistogramVec

	// Resolved once; the insert and lookup paths are hot.
	insertNew     prometheus.Counter
	insertUpdate  prometheus.Counter
	insertBlocked prometheus.Counter
	lookupHit     prometheus.Counter
	lookupMiss    prometheus.Counter
}

// New creates a Collector and registers its metrics with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kmertab_inserts_total",
			Help: "Insert calls by result",
		}, []string{"result"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kmertab_lookups_total",
			Help: "Lookup calls by result",
		}, []string{"result"}),
		persistTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kmertab_persist_duration_seconds",
			Help:    "Latency of dump and restore",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"op", "status"}),
	}

	for _, m := range []prometheus.Collector{c.inserts, c.lookups, c.persistTime} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	c.insertNew = c.inserts.WithLabelValues("new")
	c.insertUpdate = c.inserts.WithLabelValues("update")
	c.insertBlocked = c.inserts.WithLabelValues("blocked")
	c.lookupHit = c.lookups.WithLabelValues("hit")
	c.lookupMiss = c.lookups.WithLabelValues("miss")
	return c, nil
}

func (c *Collector) RecordInsert(inserted, blocked bool) {
	switch {
	case blocked:
		c.insertBlocked.Inc()
	case inserted:
		c.insertNew.Inc()
	default:
		c.insertUpdate.Inc()
	}
}

func (c *Collector) RecordLookup(found bool) {
	if found {
		c.lookupHit.Inc()
	} else {
		c.lookupMiss.Inc()
	}
}

func (c *Collector) RecordDump(d time.Duration, err error) {
	c.persistTime.WithLabelValues("dump", status(err)).Observe(d.Seconds())
}

func (c *Collector) RecordRestore(d time.Duration, err error) {
	c.persistTime.WithLabelValues("restore", status(err)).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
