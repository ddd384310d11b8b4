package action

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/morph"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

// Request is one dispatched action, across its retries.
type Request struct {
	ID      string
	Method  string
	URL     *url.URL
	Element *html.Node
	Options Options

	d           *Dispatcher
	body        []byte
	contentType string

	ctx      context.Context
	span     trace.Span
	started  time.Time
	attempts int
	cancel   context.CancelFunc
	consumer *stream.Consumer
	retry    *loop.Timer

	settled bool
	err     error
	done    chan struct{}
}

func newRequest(d *Dispatcher, el *html.Node, method string, u *url.URL, opts Options, body []byte, contentType string) *Request {
	r := &Request{
		ID:          ulid.Make().String(),
		Method:      method,
		URL:         u,
		Element:     el,
		Options:     opts,
		d:           d,
		body:        body,
		contentType: contentType,
		started:     time.Now(),
		done:        make(chan struct{}),
	}
	r.ctx, r.span = d.tracer.Start(context.Background(), "patchwire.action "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", u.String()),
			attribute.String("patchwire.request_id", r.ID),
		),
	)
	return r
}

// Done is closed when the request settles.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err returns the settle error. context.Canceled means the request was
// cancelled.
func (r *Request) Err() error {
	return r.err
}

// Attempts returns how many times the request was sent.
func (r *Request) Attempts() int {
	return r.attempts
}

// Settled reports whether the request has finished.
func (r *Request) Settled() bool {
	return r.settled
}

func (r *Request) sink() stream.Sink {
	if r.Options.Selector != "" {
		return scopedSink{next: r.d.sink, scope: r.Options.Selector}
	}
	return r.d.sink
}

// attempt sends the request once. Runs on the loop.
func (r *Request) attempt() {
	r.attempts++
	attempt := r.attempts
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancel = cancel

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		r.settle(errors.New("E101").Wrap(err))
		return
	}
	h := req.Header
	h.Set("Accept", "text/event-stream, text/html, application/json")
	h.Set(HeaderRequest, "true")
	h.Set(HeaderRequestID, r.ID)
	if r.contentType != "" {
		h.Set("Content-Type", r.contentType)
	}
	for k, v := range r.Options.Headers {
		h.Set(k, v)
	}
	r.d.propagator.Inject(ctx, propagation.HeaderCarrier(h))

	client := r.d.client
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			r.d.post(func() { r.failed(attempt, errors.New("E060").Wrap(err), true) })
			return
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			retryable := resp.StatusCode >= 500
			r.d.post(func() {
				r.failed(attempt, errors.New("E062").WithDetailf("%s %s: %s", r.Method, r.URL, resp.Status), retryable)
			})
			return
		}

		mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if mediaType == stream.ContentType {
			if !r.d.post(func() { r.follow(attempt, resp.Body) }) {
				resp.Body.Close()
			}
			return
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		resp.Body.Close()
		if err != nil {
			r.d.post(func() { r.failed(attempt, errors.New("E061").Wrap(err), true) })
			return
		}
		r.d.post(func() { r.respond(attempt, mediaType, resp.Header, data) })
	}()
}

func (r *Request) current(attempt int) bool {
	return !r.settled && attempt == r.attempts
}

// follow hands a stream response to a consumer.
func (r *Request) follow(attempt int, body io.ReadCloser) {
	if !r.current(attempt) {
		body.Close()
		return
	}
	var c *stream.Consumer
	c = stream.NewConsumer(r.d.loop, r.sink(),
		stream.WithID(r.ID),
		stream.WithLogger(r.d.logger),
		stream.WithMetrics(r.d.metrics),
		stream.WithIdleTimeout(r.d.idleTimeout),
		stream.WithTap(r.d.tap),
		stream.WithOnDone(func(_ stream.State, err error) {
			if r.consumer != c {
				return
			}
			r.consumer = nil
			if err != nil {
				r.failed(attempt, err, true)
				return
			}
			r.settle(nil)
		}),
	)
	r.consumer = c
	c.Consume(body)
}

// respond turns a non-stream response into at most one event.
func (r *Request) respond(attempt int, mediaType string, h http.Header, data []byte) {
	if !r.current(attempt) {
		return
	}
	var ev stream.Event
	if len(bytes.TrimSpace(data)) > 0 {
		switch mediaType {
		case "text/html":
			p := morph.Patch{Selector: r.Options.Selector, Mode: morph.ModeOuter, Elements: string(data)}
			if s := h.Get(HeaderSelector); s != "" {
				p.Selector = s
			}
			if m := h.Get(HeaderMode); m != "" {
				mode, err := morph.ParseMode(m)
				if err != nil {
					r.settle(err)
					return
				}
				p.Mode = mode
			}
			ev = stream.ElementPatch{Patch: p}
		case "application/json":
			onlyIfMissing, _ := strconv.ParseBool(h.Get(HeaderOnlyIfMissing))
			ev = stream.SignalPatch{Patch: signal.Patch{Signals: data, OnlyIfMissing: onlyIfMissing}}
		case "text/javascript", "application/javascript":
			ev = stream.ExecuteScript{Script: string(data), AutoRemove: true}
		}
	}
	if ev != nil {
		r.d.metrics.StreamFrame(stream.Name(ev))
		if err := r.sink().HandleEvent(ev); err != nil {
			r.d.metrics.StreamFrameError()
			r.d.logger.Warn("action response failed", "id", r.ID, "error", err)
		}
	}
	r.settle(nil)
}

// failed retries or settles after a transport failure.
func (r *Request) failed(attempt int, err error, retryable bool) {
	if !r.current(attempt) {
		return
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	p := r.Options.Retry
	if retryable && r.attempts-1 < p.MaxCount {
		wait := p.Delay(r.attempts)
		r.d.metrics.ActionRetry()
		r.d.logger.Warn("action failed, retrying",
			"id", r.ID, "error", err, "attempt", r.attempts, "wait", wait)
		r.span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", r.attempts)))
		r.retry = r.d.loop.AfterFunc(wait, func() {
			r.retry = nil
			if !r.settled {
				r.attempt()
			}
		})
		return
	}
	r.settle(err)
}

// Cancel aborts the request. Must be called on the loop.
func (r *Request) Cancel() {
	r.settle(context.Canceled)
}

// settle ends the request exactly once.
func (r *Request) settle(err error) {
	if r.settled {
		return
	}
	r.settled = true
	r.err = err

	r.retry.Stop()
	r.retry = nil
	if c := r.consumer; c != nil {
		r.consumer = nil
		c.Close()
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	d := r.d
	if d.indicator != nil {
		d.indicator.End(r.Element)
	}
	d.forget(r)

	outcome := "ok"
	switch {
	case err == context.Canceled:
		outcome = "cancelled"
		d.logger.Debug("action cancelled", "id", r.ID)
	case err != nil:
		outcome = "error"
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("action failed", "id", r.ID, "method", r.Method, "url", r.URL.String(), "error", err)
	default:
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.SetAttributes(attribute.Int("patchwire.attempts", r.attempts))
	r.span.End()
	d.metrics.ActionSettled(r.Method, outcome, time.Since(r.started))
	close(r.done)
}
