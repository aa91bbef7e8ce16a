package meshdata

import (
	"log/slog"

	"github.com/hupe1980/meshdata/boundary"
	"github.com/hupe1980/meshdata/internal/packcache"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
	transport        boundary.Transport
	stage            string
	packCache        packcache.Config
	block            *mesh.Block
}

// Option configures a BlockData.
//
// Derived containers (DeriveByName, DeriveByFlags, Copy, SparseSlice) start
// from the options of their source; options passed to them override.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &meshdata.BasicMetricsCollector{}
//	bd := meshdata.New(meshdata.WithMetricsCollector(metrics))
//	// ... use bd ...
//	stats := metrics.GetStats()
//	fmt.Printf("Packs: %d, hits: %d\n", stats.PackCount, stats.PackHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := meshdata.NewJSONLogger(slog.LevelInfo)
//	bd := meshdata.New(meshdata.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController accounts variable storage against rc. Allocation
// fails with resource.ErrMemoryLimitExceeded once its memory limit is hit.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithTransport sets the transport used for boundary exchange. Without one
// every exchange operation fails with ErrInvalidOperation.
func WithTransport(t boundary.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithStage names the container (for example "base" or "rk_stage_1").
// The name is informational and shows up in logs.
func WithStage(name string) Option {
	return func(o *options) {
		o.stage = name
	}
}

// WithPackCacheLimit bounds each pack cache to n entries, evicting the least
// recently used pack. n <= 0 means unbounded.
func WithPackCacheLimit(n int) Option {
	return func(o *options) {
		o.packCache.MaxSize = n
	}
}

// WithBlock binds the container to its owning block at construction.
// Equivalent to calling SetBlockPointer afterwards.
func WithBlock(b *mesh.Block) Option {
	return func(o *options) {
		o.block = b
	}
}

func defaultOptions() options {
	return options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		packCache:        packcache.DefaultConfig(),
	}
}

func applyOptions(base options, optFns []Option) options {
	o := base
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
