package kmertab

type options struct {
	logger        *Logger
	metrics       MetricsCollector
	shardCapacity int
}

// Option configures New, ReadFrom and Restore.
type Option func(*options)

// WithLogger sets the logger for table lifecycle events. A nil logger
// disables logging, which is also the default.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the collector that receives insert, lookup, dump and
// restore events.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithShardCapacity pre-sizes every shard for about n entries. Shards still
// grow on demand; this only avoids early rehashing when the final size is
// known.
func WithShardCapacity(n int) Option {
	return func(o *options) {
		o.shardCapacity = n
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
