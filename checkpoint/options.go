package checkpoint

import (
	"github.com/hupe1980/meshdata"
	"github.com/hupe1980/meshdata/codec"
	"github.com/hupe1980/meshdata/internal/compress"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/resource"
)

// Options configures Save and Load.
type Options struct {
	// Codec encodes the manifest. Default: codec.Default.
	Codec codec.Codec

	// Compression applied to variable blobs. Default: ZSTD.
	Compression compress.Type

	// Resources throttles checkpoint IO and bounds the number of concurrent
	// transfers through its background worker slots. Nil means unthrottled.
	Resources *resource.Controller

	// Concurrency is the maximum number of variables in flight. Default: 4.
	Concurrency int

	// Flags selects the variables Save writes: any variable carrying one of
	// them. Default: Independent and Restart.
	Flags []metadata.Flag

	// Logger receives one record per Save or Load. Default: no logging.
	Logger *meshdata.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Codec:       codec.Default,
		Compression: compress.ZSTD,
		Concurrency: 4,
		Flags:       []metadata.Flag{metadata.Independent, metadata.Restart},
		Logger:      meshdata.NoopLogger(),
	}
}

// Option configures Save and Load.
type Option func(*Options)

// WithCodec sets the manifest codec.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) {
		if c != nil {
			o.Codec = c
		}
	}
}

// WithCompression sets the variable blob compression.
func WithCompression(t compress.Type) Option {
	return func(o *Options) { o.Compression = t }
}

// WithResourceController throttles IO through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) { o.Resources = rc }
}

// WithConcurrency bounds the variables in flight.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithFlags replaces the selection flags of Save.
func WithFlags(flags ...metadata.Flag) Option {
	return func(o *Options) { o.Flags = flags }
}

// WithLogger sets the logger.
func WithLogger(l *meshdata.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func applyOptions(optFns []Option) Options {
	o := DefaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
