package action

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/metrics"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

// Request headers.
const (
	HeaderRequest   = "Patchwire-Request"
	HeaderRequestID = "Patchwire-Request-Id"

	// Response headers that shape HTML and JSON responses.
	HeaderSelector      = "Patchwire-Selector"
	HeaderMode          = "Patchwire-Mode"
	HeaderOnlyIfMissing = "Patchwire-Only-If-Missing"
)

// QueryParam carries the signal snapshot of GET requests.
const QueryParam = "patchwire"

const tracerName = "github.com/vango-dev/patchwire/pkg/action"

// maxBody bounds non-stream response bodies.
const maxBody = 8 << 20

// Indicator is told when an element's actions start and settle.
type Indicator interface {
	Begin(el *html.Node)
	End(el *html.Node)
}

// Dispatcher issues actions. All methods must be called on the loop.
type Dispatcher struct {
	loop  *loop.Loop
	doc   *dom.Document
	store *signal.Store
	sink  stream.Sink

	client      *http.Client
	base        *url.URL
	indicator   Indicator
	idleTimeout time.Duration
	tap         func(stream.Frame)
	retry       RetryPolicy

	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	byElement map[*html.Node][]*Request
	inflight  map[*Request]struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithBaseURL resolves relative action URLs against u.
func WithBaseURL(u *url.URL) Option {
	return func(d *Dispatcher) {
		d.base = u
	}
}

// WithIndicator sets the indicator told about in-flight requests.
func WithIndicator(in Indicator) Option {
	return func(d *Dispatcher) {
		d.indicator = in
	}
}

// WithIdleTimeout sets the idle timeout of response streams.
func WithIdleTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		d.idleTimeout = t
	}
}

// WithTap forwards the raw frames of every response stream to fn.
func WithTap(fn func(stream.Frame)) Option {
	return func(d *Dispatcher) {
		d.tap = fn
	}
}

// WithRetry sets the retry policy of actions that do not set their own.
func WithRetry(p RetryPolicy) Option {
	return func(d *Dispatcher) {
		d.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracerProvider sets the tracer provider. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// WithPropagator sets the propagator that injects trace context into
// request headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(d *Dispatcher) {
		d.propagator = p
	}
}

// New creates a Dispatcher. Events from responses go to sink.
func New(l *loop.Loop, doc *dom.Document, store *signal.Store, sink stream.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		loop:        l,
		doc:         doc,
		store:       store,
		sink:        sink,
		client:      http.DefaultClient,
		idleTimeout: stream.DefaultIdleTimeout,
		retry:       DefaultRetry,
		logger:      slog.Default(),
		byElement:   make(map[*html.Node][]*Request),
		inflight:    make(map[*Request]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if d.propagator == nil {
		d.propagator = otel.GetTextMapPropagator()
	}
	return d
}

// Methods lists the supported request methods.
var Methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// Dispatch starts an action for el. el may be nil for actions that no
// element owns.
func (d *Dispatcher) Dispatch(el *html.Node, method, rawURL string, opts Options) (*Request, error) {
	method = strings.ToUpper(method)
	known := false
	for _, m := range Methods {
		if m == method {
			known = true
			break
		}
	}
	if !known {
		return nil, errors.New("E101").WithDetailf("unsupported method %q", method)
	}

	u, err := d.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.ContentType == "" {
		opts.ContentType = ContentJSON
	}
	if opts.RequestCancellation == "" {
		opts.RequestCancellation = CancelAuto
	}

	if el != nil && opts.RequestCancellation == CancelAuto {
		for _, prev := range d.byElement[el] {
			prev.Cancel()
		}
	}

	body, contentType, err := d.payload(el, method, u, opts)
	if err != nil {
		return nil, err
	}

	r := newRequest(d, el, method, u, opts, body, contentType)
	d.inflight[r] = struct{}{}
	if el != nil {
		d.byElement[el] = append(d.byElement[el], r)
	}
	if d.indicator != nil {
		d.indicator.Begin(el)
	}
	d.metrics.ActionStarted()
	d.logger.Debug("action dispatched", "id", r.ID, "method", method, "url", u.String())

	r.attempt()
	return r, nil
}

func (d *Dispatcher) resolve(rawURL string) (*url.URL, error) {
	var u *url.URL
	var err error
	if d.base != nil {
		u, err = d.base.Parse(rawURL)
	} else {
		u, err = url.Parse(rawURL)
	}
	if err != nil {
		return nil, errors.New("E101").WithDetailf("action url %q", rawURL).Wrap(err)
	}
	return u, nil
}

// Cancel aborts every in-flight request owned by el.
func (d *Dispatcher) Cancel(el *html.Node) {
	for _, r := range append([]*Request(nil), d.byElement[el]...) {
		r.Cancel()
	}
}

// CancelAll aborts every in-flight request.
func (d *Dispatcher) CancelAll() {
	for r := range d.inflight {
		r.Cancel()
	}
}

// InFlight returns the number of unsettled requests.
func (d *Dispatcher) InFlight() int {
	return len(d.inflight)
}

func (d *Dispatcher) forget(r *Request) {
	delete(d.inflight, r)
	if r.Element == nil {
		return
	}
	list := d.byElement[r.Element]
	for i, x := range list {
		if x == r {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.byElement, r.Element)
	} else {
		d.byElement[r.Element] = list
	}
}

// post runs fn on the loop; it reports false if the loop is closed.
func (d *Dispatcher) post(fn func()) bool {
	return d.loop.Post(fn)
}

// scopedSink scopes id matching of element patches to a selector.
type scopedSink struct {
	next  stream.Sink
	scope string
}

func (s scopedSink) HandleEvent(ev stream.Event) error {
	if p, ok := ev.(stream.ElementPatch); ok && p.Selector == "" && p.Scope == "" {
		p.Scope = s.scope
		ev = p
	}
	return s.next.HandleEvent(ev)
}
