package runindex

import (
	"log/slog"

	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/resource"
	"github.com/beamkit/runindex/validate"
)

type options struct {
	fanOut        []validate.FanOutRule
	maxOpenShards int
	resourceCfg   resource.Config
	logger        *Logger
}

// Option configures how a run is opened.
type Option func(*options)

// WithFanOutRule declares that sources matching the glob pattern are
// recorded fanned out over n shards per acquisition slice. Trains of
// such a source count as safely present only when all n shards agree;
// sources without a matching rule follow sequence-shard union
// semantics. Rules are matched in the order given, first match wins.
func WithFanOutRule(pattern string, n int) Option {
	return func(o *options) {
		o.fanOut = append(o.fanOut, validate.FanOutRule{Pattern: pattern, N: n})
	}
}

// WithMaxOpenShards bounds the number of shard handles a run or one of
// its streams keeps open at a time. Defaults to 16.
func WithMaxOpenShards(n int) Option {
	return func(o *options) {
		o.maxOpenShards = n
	}
}

// WithResourceConfig bounds memory, read concurrency and IO bandwidth
// for scanning and streaming. The zero value disables all limits
// except read concurrency, which defaults to 4.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceCfg = cfg
	}
}

// WithLogger configures structured logging. Pass nil to disable.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
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

func applyOptions(optFns []Option) options {
	o := options{
		logger: NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

type streamOptions struct {
	tokens     []model.Token
	explicit   bool
	byID       *[2]model.TrainID
	byIndex    *[2]int
	sources    []model.SourceID
	patterns   []string
	requireAll bool
}

// StreamOption narrows or reorders what a stream delivers.
type StreamOption func(*streamOptions)

// StreamTokens streams exactly the given resolved tokens, in the
// given order. The order may be non-monotonic.
func StreamTokens(tokens []model.Token) StreamOption {
	return func(o *streamOptions) {
		o.tokens = tokens
		o.explicit = true
	}
}

// StreamByID restricts the stream to trains in the half-open absolute
// ID range [lo, hi). Bounds outside the run clip at its edges.
func StreamByID(lo, hi model.TrainID) StreamOption {
	return func(o *streamOptions) {
		o.explicit = true
		o.tokens = nil
		o.byID = &[2]model.TrainID{lo, hi}
	}
}

// StreamByIndex restricts the stream to trains in the half-open
// relative index range [lo, hi), with slice clamping semantics.
func StreamByIndex(lo, hi int) StreamOption {
	return func(o *streamOptions) {
		o.explicit = true
		o.tokens = nil
		o.byIndex = &[2]int{lo, hi}
	}
}

// StreamSources restricts retrieval to the given sources.
func StreamSources(ids ...model.SourceID) StreamOption {
	return func(o *streamOptions) {
		o.sources = append(o.sources, ids...)
	}
}

// StreamSourcePattern restricts retrieval to sources matching the
// given glob patterns. Patterns match path-wise: a '*' does not cross
// a '/' separator.
func StreamSourcePattern(patterns ...string) StreamOption {
	return func(o *streamOptions) {
		o.patterns = append(o.patterns, patterns...)
	}
}

// StreamRequireAll skips records for which any selected source has no
// data, instead of delivering partial records.
func StreamRequireAll() StreamOption {
	return func(o *streamOptions) {
		o.requireAll = true
	}
}
