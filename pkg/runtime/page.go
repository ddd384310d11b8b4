package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/action"
	"github.com/vango-dev/patchwire/pkg/binding"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
	"github.com/vango-dev/patchwire/pkg/lifecycle"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/morph"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

// Page is one live document.
type Page struct {
	URL *url.URL

	Loop       *loop.Loop
	Doc        *dom.Document
	Store      *signal.Store
	Eval       *expr.Evaluator
	Registry   *binding.Registry
	Indicators *binding.Indicators
	Morph      *morph.Engine
	Lifecycle  *lifecycle.Manager
	Actions    *action.Dispatcher

	opts    options
	streams map[*stream.Consumer]struct{}
}

// Load fetches rawURL and builds a page from the response.
func Load(ctx context.Context, rawURL string, opts ...Option) (*Page, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.New("E103").WithDetailf("page url %q", rawURL).Wrap(err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.New("E060").Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New("E062").WithDetailf("GET %s: %s", rawURL, resp.Status)
	}
	doc, err := dom.Parse(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, errors.New("E061").Wrap(err)
	}
	return New(doc, resp.Request.URL, opts...), nil
}

// New builds a page around doc. Relative action URLs resolve against base,
// which may be nil.
func New(doc *dom.Document, base *url.URL, opts ...Option) *Page {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	p := &Page{
		URL:     base,
		Doc:     doc,
		opts:    o,
		streams: make(map[*stream.Consumer]struct{}),
	}
	p.Loop = loop.New(loop.WithClock(o.clock), loop.WithLogger(logger))
	p.Store = signal.New(
		signal.WithLogger(logger),
		signal.WithMetrics(o.metrics),
		signal.WithMaxCascadeDepth(o.maxCascadeDepth),
		signal.WithLocalPrefix(o.localPrefix),
	)
	p.Eval = expr.NewEvaluator(expr.WithLogger(logger), expr.WithMetrics(o.metrics))
	p.Registry = o.registry
	if p.Registry == nil {
		p.Registry = binding.Default()
	}
	p.Indicators = binding.NewIndicators(p.Store)

	dispatchOpts := []action.Option{
		action.WithClient(o.client),
		action.WithIndicator(p.Indicators),
		action.WithIdleTimeout(o.idleTimeout),
		action.WithRetry(o.retry),
		action.WithLogger(logger),
		action.WithMetrics(o.metrics),
	}
	if base != nil {
		dispatchOpts = append(dispatchOpts, action.WithBaseURL(base))
	}
	if o.recorder != nil {
		dispatchOpts = append(dispatchOpts, action.WithTap(o.recorder.Tap("actions")))
	}
	p.Actions = action.New(p.Loop, doc, p.Store, p, dispatchOpts...)
	p.Actions.Install(p.Eval)

	host := &binding.Host{
		Doc:        doc,
		Store:      p.Store,
		Eval:       p.Eval,
		Loop:       p.Loop,
		Indicators: p.Indicators,
		Logger:     logger,
		Metrics:    o.metrics,
	}
	p.Lifecycle = lifecycle.New(host, p.Registry,
		lifecycle.WithCanceller(p.Actions),
		lifecycle.WithLogger(logger))
	p.Morph = morph.New(doc,
		morph.WithObserver(p.Lifecycle),
		morph.WithLogger(logger),
		morph.WithMetrics(o.metrics))
	return p
}

// Start binds the document. Call it before Run, or on the loop. Binding
// errors are returned joined; the bindings that failed are skipped.
func (p *Page) Start() error {
	return p.Lifecycle.Scan(p.Doc.Root())
}

// Run drives the loop until ctx is done or the page is closed.
func (p *Page) Run(ctx context.Context) error {
	return p.Loop.Run(ctx)
}

// Do runs fn on the loop and waits for it. The loop must be running.
func (p *Page) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !p.Loop.Post(func() {
		defer close(done)
		fn()
	}) {
		return loop.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent applies one stream event. It runs on the loop.
func (p *Page) HandleEvent(ev stream.Event) error {
	err := p.apply(ev)
	if p.opts.onEvent != nil {
		p.opts.onEvent(ev, err)
	}
	return err
}

func (p *Page) apply(ev stream.Event) error {
	switch ev := ev.(type) {
	case stream.ElementPatch:
		err := p.Morph.Apply(ev.Patch)
		p.Lifecycle.Sweep()
		return err
	case stream.SignalPatch:
		return p.Store.ApplyPatch(ev.Patch)
	case stream.ExecuteScript:
		return p.execute(ev)
	case stream.KeepAlive:
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}

// execute runs a script as a transient <script> element.
func (p *Page) execute(ev stream.ExecuteScript) error {
	var attrs []html.Attribute
	for k, v := range ev.Attributes {
		attrs = append(attrs, html.Attribute{Key: k, Val: v})
	}
	el := dom.NewElement("script", attrs...)
	el.AppendChild(&html.Node{Type: html.TextNode, Data: ev.Script})
	parent := p.Doc.Body()
	if parent == nil {
		parent = p.Doc.Root()
	}
	parent.AppendChild(el)
	if ev.AutoRemove {
		defer func() {
			dom.Detach(el)
			p.Doc.Forget(el)
		}()
	}

	x, err := p.Eval.Compile(ev.Script)
	if err != nil {
		return err
	}
	_, err = p.Eval.Evaluate(x, expr.Context{Store: p.Store, Doc: p.Doc, Element: el})
	return err
}

// Follow opens a page-owned stream: a GET to rawURL whose frames are applied
// to the page. It must be called on the loop (or before Run).
func (p *Page) Follow(ctx context.Context, rawURL string) (*stream.Consumer, error) {
	u, err := p.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.New("E103").Wrap(err)
	}
	req.Header.Set("Accept", stream.ContentType)
	req.Header.Set(action.HeaderRequest, "true")

	c := p.newConsumer()
	c.Open(ctx, p.opts.client, req)
	return c, nil
}

func (p *Page) newConsumer() *stream.Consumer {
	id := ulid.Make().String()
	var c *stream.Consumer
	opts := []stream.Option{
		stream.WithID(id),
		stream.WithLogger(p.opts.logger),
		stream.WithMetrics(p.opts.metrics),
		stream.WithIdleTimeout(p.opts.idleTimeout),
		stream.WithOnDone(func(stream.State, error) {
			delete(p.streams, c)
		}),
	}
	if p.opts.recorder != nil {
		opts = append(opts, stream.WithTap(p.opts.recorder.Tap(id)))
	}
	c = stream.NewConsumer(p.Loop, p, opts...)
	p.streams[c] = struct{}{}
	return c
}

// Consume applies the frames of body to the page, as if it were a stream
// the page had opened. Used for replay. Must be called on the loop.
func (p *Page) Consume(body io.ReadCloser) *stream.Consumer {
	c := p.newConsumer()
	c.Consume(body)
	return c
}

// NewConsumer returns a page-owned consumer that is not yet reading.
// Must be called on the loop.
func (p *Page) NewConsumer() *stream.Consumer {
	return p.newConsumer()
}

func (p *Page) resolve(rawURL string) (*url.URL, error) {
	var u *url.URL
	var err error
	if p.URL != nil {
		u, err = p.URL.Parse(rawURL)
	} else {
		u, err = url.Parse(rawURL)
	}
	if err != nil {
		return nil, errors.New("E103").WithDetailf("url %q", rawURL).Wrap(err)
	}
	return u, nil
}

// Streams returns the number of page-owned streams still running.
func (p *Page) Streams() int {
	return len(p.streams)
}

// Trigger dispatches an event of type typ on every element matching
// selector and returns how many were found. Must be called on the loop.
func (p *Page) Trigger(selector, typ string) (int, error) {
	els, err := p.Doc.QuerySelectorAll(selector)
	if err != nil {
		return 0, err
	}
	for _, el := range els {
		p.Doc.DispatchEvent(el, dom.NewEvent(typ))
	}
	return len(els), nil
}

// Input sets the value of the first element matching selector and fires
// input and change. Must be called on the loop.
func (p *Page) Input(selector, value string) error {
	el, err := p.Doc.QuerySelector(selector)
	if err != nil {
		return err
	}
	if el == nil {
		return errors.New("E020").WithDetailf("selector %q", selector)
	}
	p.Doc.Input(el, value)
	return nil
}

// HTML renders the current document.
func (p *Page) HTML() string {
	return p.Doc.String()
}

// Close tears the page down: bindings, actions and streams are released and
// the loop stops. It must not be called on the loop. Safe to call more than
// once.
func (p *Page) Close() {
	done := make(chan struct{})
	if !p.Loop.Post(func() {
		defer close(done)
		p.Actions.CancelAll()
		for c := range p.streams {
			c.Close()
		}
		p.Lifecycle.Close()
	}) {
		return
	}
	// Runs the teardown here when no Run is draining the queue.
	p.Loop.Drain()
	<-done
	p.Loop.Close()
}
