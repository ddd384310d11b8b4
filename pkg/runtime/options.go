package runtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-dev/patchwire/pkg/action"
	"github.com/vango-dev/patchwire/pkg/binding"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/metrics"
	"github.com/vango-dev/patchwire/pkg/record"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

type options struct {
	client          *http.Client
	logger          *slog.Logger
	metrics         *metrics.Metrics
	clock           loop.Clock
	recorder        *record.Recorder
	registry        *binding.Registry
	idleTimeout     time.Duration
	maxCascadeDepth int
	localPrefix     string
	retry           action.RetryPolicy
	onEvent         func(stream.Event, error)
}

// Option configures a Page.
type Option func(*options)

// WithClient sets the HTTP client used for loading, streams and actions.
func WithClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock sets the clock of the page loop.
func WithClock(c loop.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRecorder records the frames of every stream the page follows.
func WithRecorder(r *record.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithRegistry replaces the default plugin registry.
func WithRegistry(r *binding.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithIdleTimeout sets the idle timeout of streams.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithMaxCascadeDepth bounds reactive cascades.
func WithMaxCascadeDepth(n int) Option {
	return func(o *options) {
		o.maxCascadeDepth = n
	}
}

// WithLocalPrefix sets the prefix that marks local signals.
func WithLocalPrefix(p string) Option {
	return func(o *options) {
		o.localPrefix = p
	}
}

// WithRetry sets the retry policy of actions that do not set their own.
func WithRetry(p action.RetryPolicy) Option {
	return func(o *options) {
		o.retry = p
	}
}

// WithEventHook calls fn on the loop after every event the page applies.
func WithEventHook(fn func(ev stream.Event, err error)) Option {
	return func(o *options) {
		o.onEvent = fn
	}
}

func defaultOptions() options {
	return options{
		client:          http.DefaultClient,
		logger:          slog.Default(),
		clock:           loop.RealClock(),
		idleTimeout:     60 * time.Second,
		maxCascadeDepth: signal.DefaultMaxCascadeDepth,
		localPrefix:     signal.DefaultLocalPrefix,
		retry:           action.DefaultRetry,
	}
}
