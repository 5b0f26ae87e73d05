package bufcache

import (
	"github.com/hupe1980/bufcache/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	secondLevel      SecondLevel
	useSecondLevel   bool
	hashBuckets      int
	rc               *resource.Controller
	offHeap          bool
	maxBatch         int
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		useSecondLevel:   true,
	}
}

// Option configures a Cache.
type Option func(*options)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithSecondLevel attaches a second-level cache. New checks it once with
// Forget(NoBlock); an implementation answering errors.ErrUnsupported is
// never called again.
//
// The cache closes the second level on Close.
func WithSecondLevel(l2 SecondLevel) Option {
	return func(o *options) {
		o.secondLevel = l2
	}
}

// WithSecondLevelEnabled turns use of the second level on or off without
// detaching it. Enabled by default.
func WithSecondLevelEnabled(enabled bool) Option {
	return func(o *options) {
		o.useSecondLevel = enabled
	}
}

// WithHashBuckets sets the number of hash chains. Zero or less means one
// chain per slot.
func WithHashBuckets(n int) Option {
	return func(o *options) {
		o.hashBuckets = n
	}
}

// WithResourceController accounts pool memory against rc and paces
// write-back and read-ahead through its I/O limiter.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithOffHeap backs the slot buffers with an anonymous memory mapping
// instead of the Go heap.
func WithOffHeap(enabled bool) Option {
	return func(o *options) {
		o.offHeap = enabled
	}
}

// WithMaxBatch caps the number of blocks in one vectored transfer. The
// device's own limit still applies when it is smaller.
func WithMaxBatch(n int) Option {
	return func(o *options) {
		o.maxBatch = n
	}
}
