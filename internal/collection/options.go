package collection

import (
	"time"

	"github.com/knirvcorp/embeddb/internal/logging"
	"github.com/knirvcorp/embeddb/internal/monitoring"
	"github.com/knirvcorp/embeddb/internal/plugin"
)

// Options bundles a Collection's policy dimensions: cache TTL/size,
// compression thresholds, concurrency bounds, and its ambient
// collaborators. Built via the functional-options pattern, following
// the nodestorage options.go shape (option struct + With* functions,
// each validated/defaulted in applyDefaults).
type Options struct {
	CacheEnabled    bool
	CacheMaxCost    int64
	CacheTTL        time.Duration
	CompressEnabled bool
	CompressThresholdBytes int
	CompressFields  []string
	ConcurrencyWidth int
	ThrottleTarget  time.Duration

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	Plugins *plugin.Registry
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		CacheEnabled:           true,
		CacheMaxCost:           10000,
		CacheTTL:               30 * time.Second,
		CompressEnabled:        true,
		CompressThresholdBytes: 256,
		ConcurrencyWidth:       4,
		ThrottleTarget:         10 * time.Millisecond,
	}
}

func applyDefaults(opts Options) Options {
	d := defaultOptions()
	if opts.CacheMaxCost <= 0 {
		opts.CacheMaxCost = d.CacheMaxCost
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = d.CacheTTL
	}
	if opts.CompressThresholdBytes <= 0 {
		opts.CompressThresholdBytes = d.CompressThresholdBytes
	}
	if opts.ConcurrencyWidth <= 0 {
		opts.ConcurrencyWidth = d.ConcurrencyWidth
	}
	if opts.ThrottleTarget <= 0 {
		opts.ThrottleTarget = d.ThrottleTarget
	}
	return opts
}

func WithCache(maxCost int64, ttl time.Duration) Option {
	return func(o *Options) {
		o.CacheEnabled = true
		o.CacheMaxCost = maxCost
		o.CacheTTL = ttl
	}
}

func WithoutCache() Option {
	return func(o *Options) { o.CacheEnabled = false }
}

func WithCompression(thresholdBytes int, fields []string) Option {
	return func(o *Options) {
		o.CompressEnabled = true
		o.CompressThresholdBytes = thresholdBytes
		o.CompressFields = fields
	}
}

func WithoutCompression() Option {
	return func(o *Options) { o.CompressEnabled = false }
}

func WithConcurrency(width int) Option {
	return func(o *Options) { o.ConcurrencyWidth = width }
}

func WithThrottleTarget(target time.Duration) Option {
	return func(o *Options) { o.ThrottleTarget = target }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func WithPlugins(r *plugin.Registry) Option {
	return func(o *Options) { o.Plugins = r }
}
