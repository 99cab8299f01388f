package sax

import "github.com/rs/zerolog"

const defaultChunkSize = 4096

type config struct {
	logger     zerolog.Logger
	encoding   string
	chunkSize  int
	maxDepth   int
	maxAttrs   int
	namespaces bool
}

func defaultConfig() config {
	return config{
		chunkSize:  defaultChunkSize,
		namespaces: true,
		logger:     zerolog.Nop(),
	}
}

// Option configures a Parser.
type Option interface{ apply(*config) }

type optionFunc func(*config)

func (f optionFunc) apply(cfg *config) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithEncoding overrides charset detection for byte-stream inputs.
func WithEncoding(label string) Option {
	return optionFunc(func(cfg *config) { cfg.encoding = label })
}

// WithNamespaces toggles namespace processing. Enabled by default; when
// disabled, events carry qualified names only and URI/local parts are empty.
func WithNamespaces(enabled bool) Option {
	return optionFunc(func(cfg *config) { cfg.namespaces = enabled })
}

// WithChunkSize sets the input read chunk size.
func WithChunkSize(n int) Option {
	return optionFunc(func(cfg *config) {
		if n > 0 {
			cfg.chunkSize = n
		}
	})
}

// WithMaxDepth limits element nesting depth. Zero means the engine default.
func WithMaxDepth(n int) Option {
	return optionFunc(func(cfg *config) { cfg.maxDepth = n })
}

// WithMaxAttrs limits per-element attribute count. Zero means the engine
// default.
func WithMaxAttrs(n int) Option {
	return optionFunc(func(cfg *config) { cfg.maxAttrs = n })
}

// WithLogger attaches a logger for debug-level parse tracing.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(cfg *config) { cfg.logger = logger })
}
