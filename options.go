package spikego

import (
	"github.com/hupe1980/spikego/analyzer"
	"github.com/hupe1980/spikego/pipeline"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	registry         *analyzer.Registry
	jobOptions       pipeline.Options
}

// Option configures an Analyzer.
type Option func(*options)

// WithLogger sets the logger used by the analyzer and its extension runs.
//
// If nil is passed, a default text logger is used.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsCollector sets the metrics collector for extension computes,
// comparisons, saves and loads.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector != nil {
			o.metricsCollector = collector
		}
	}
}

// WithRegistry overrides the extension registry the analyzer resolves
// names in. Defaults to analyzer.DefaultRegistry.
func WithRegistry(registry *analyzer.Registry) Option {
	return func(o *options) {
		if registry != nil {
			o.registry = registry
		}
	}
}

// WithJobOptions sets the default job options used when a compute call
// does not pass its own.
func WithJobOptions(jobOptions pipeline.Options) Option {
	return func(o *options) {
		o.jobOptions = jobOptions
	}
}

func defaultOptions() options {
	return options{
		logger:           NewLogger(nil),
		metricsCollector: NoopMetricsCollector{},
		jobOptions:       pipeline.DefaultOptions,
	}
}
