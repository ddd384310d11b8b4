// Package metrics holds the Prometheus instrumentation shared by the
// runtime components.
//
// A nil *Metrics is valid and records nothing, so components can accept
// one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "patchwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for action duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "patchwire",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds every collector.
type Metrics struct {
	signalWrites      prometheus.Counter
	signalPatches     prometheus.Counter
	cascadeRejections prometheus.Counter
	subscriptions     prometheus.Gauge

	expressionErrors *prometheus.CounterVec

	bindingsActive *prometheus.GaugeVec
	bindingErrors  *prometheus.CounterVec

	morphPatches  *prometheus.CounterVec
	targetMissing prometheus.Counter

	streamFrames      *prometheus.CounterVec
	streamFrameErrors prometheus.Counter
	streamsOpen       prometheus.Gauge
	streamErrors      *prometheus.CounterVec

	actionsTotal    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	actionsInFlight prometheus.Gauge
	actionRetries   prometheus.Counter
}

// New registers the collectors and returns them.
//
// Metrics collected:
//   - patchwire_signal_writes_total: signal writes that changed a value
//   - patchwire_signal_patches_total: applied signal patches
//   - patchwire_cascade_rejections_total: writes rejected for exceeding the cascade depth
//   - patchwire_subscriptions: live store subscriptions
//   - patchwire_expression_errors_total: expression failures by kind
//   - patchwire_bindings_active: attached bindings by plugin
//   - patchwire_binding_errors_total: bindings that failed to attach by plugin
//   - patchwire_morph_patches_total: element patches applied by mode
//   - patchwire_patch_target_missing_total: element patches whose target was not found
//   - patchwire_stream_frames_total: decoded frames by event
//   - patchwire_stream_frame_errors_total: malformed frames
//   - patchwire_streams_open: streams currently open
//   - patchwire_stream_errors_total: streams that ended in the errored state by reason
//   - patchwire_actions_total: settled actions by method and outcome
//   - patchwire_action_duration_seconds: action duration by method
//   - patchwire_actions_in_flight: actions awaiting a response
//   - patchwire_action_retries_total: scheduled action retries
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		signalWrites:      counter("signal_writes_total", "Total number of signal writes that changed a value"),
		signalPatches:     counter("signal_patches_total", "Total number of applied signal patches"),
		cascadeRejections: counter("cascade_rejections_total", "Total number of writes rejected for exceeding the cascade depth"),
		subscriptions:     gauge("subscriptions", "Number of live signal subscriptions"),

		expressionErrors: counterVec("expression_errors_total", "Total expression failures by kind", "kind"),

		bindingsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bindings_active",
			Help:        "Number of attached bindings by plugin",
			ConstLabels: config.ConstLabels,
		}, []string{"plugin"}),
		bindingErrors: counterVec("binding_errors_total", "Total bindings that failed to attach by plugin", "plugin"),

		morphPatches:  counterVec("morph_patches_total", "Total element patches applied by mode", "mode"),
		targetMissing: counter("patch_target_missing_total", "Total element patches whose target was not found"),

		streamFrames:      counterVec("stream_frames_total", "Total decoded stream frames by event", "event"),
		streamFrameErrors: counter("stream_frame_errors_total", "Total malformed stream frames"),
		streamsOpen:       gauge("streams_open", "Number of open patch streams"),
		streamErrors:      counterVec("stream_errors_total", "Total streams that ended in the errored state", "reason"),

		actionsTotal: counterVec("actions_total", "Total settled actions by method and outcome", "method", "outcome"),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "action_duration_seconds",
			Help:        "Action duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),
		actionsInFlight: gauge("actions_in_flight", "Number of actions awaiting a response"),
		actionRetries:   counter("action_retries_total", "Total scheduled action retries"),
	}
}

// SignalWrite records a value-changing write.
func (m *Metrics) SignalWrite() {
	if m == nil {
		return
	}
	m.signalWrites.Inc()
}

// SignalPatch records an applied signal patch.
func (m *Metrics) SignalPatch() {
	if m == nil {
		return
	}
	m.signalPatches.Inc()
}

// CascadeRejected records a write rejected by the cascade depth limit.
func (m *Metrics) CascadeRejected() {
	if m == nil {
		return
	}
	m.cascadeRejections.Inc()
}

// SubscriptionAdded increments the live subscription gauge.
func (m *Metrics) SubscriptionAdded() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

// SubscriptionRemoved decrements the live subscription gauge.
func (m *Metrics) SubscriptionRemoved() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

// ExpressionError records an expression failure.
func (m *Metrics) ExpressionError(kind string) {
	if m == nil {
		return
	}
	m.expressionErrors.WithLabelValues(kind).Inc()
}

// BindingAttached increments the active binding gauge for plugin.
func (m *Metrics) BindingAttached(plugin string) {
	if m == nil {
		return
	}
	m.bindingsActive.WithLabelValues(plugin).Inc()
}

// BindingDetached decrements the active binding gauge for plugin.
func (m *Metrics) BindingDetached(plugin string) {
	if m == nil {
		return
	}
	m.bindingsActive.WithLabelValues(plugin).Dec()
}

// BindingError records a binding that failed to attach.
func (m *Metrics) BindingError(plugin string) {
	if m == nil {
		return
	}
	m.bindingErrors.WithLabelValues(plugin).Inc()
}

// MorphPatch records an applied element patch.
func (m *Metrics) MorphPatch(mode string) {
	if m == nil {
		return
	}
	m.morphPatches.WithLabelValues(mode).Inc()
}

// TargetMissing records an element patch without a target.
func (m *Metrics) TargetMissing() {
	if m == nil {
		return
	}
	m.targetMissing.Inc()
}

// StreamFrame records a decoded frame.
func (m *Metrics) StreamFrame(event string) {
	if m == nil {
		return
	}
	m.streamFrames.WithLabelValues(event).Inc()
}

// StreamFrameError records a malformed frame.
func (m *Metrics) StreamFrameError() {
	if m == nil {
		return
	}
	m.streamFrameErrors.Inc()
}

// StreamOpened increments the open stream gauge.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streamsOpen.Inc()
}

// StreamClosed decrements the open stream gauge.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamsOpen.Dec()
}

// StreamError records a stream that ended in the errored state.
func (m *Metrics) StreamError(reason string) {
	if m == nil {
		return
	}
	m.streamErrors.WithLabelValues(reason).Inc()
}

// ActionStarted increments the in-flight gauge.
func (m *Metrics) ActionStarted() {
	if m == nil {
		return
	}
	m.actionsInFlight.Inc()
}

// ActionSettled records a finished action.
func (m *Metrics) ActionSettled(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.actionsInFlight.Dec()
	m.actionsTotal.WithLabelValues(method, outcome).Inc()
	m.actionDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ActionRetry records a scheduled retry.
func (m *Metrics) ActionRetry() {
	if m == nil {
		return
	}
	m.actionRetries.Inc()
}
