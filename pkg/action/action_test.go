package action

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/binding"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/morph"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

type recorded struct {
	Method  string
	Query   url.Values
	Header  http.Header
	Body    string
	Attempt int
}

type server struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newServer(t *testing.T, h func(w http.ResponseWriter, r *http.Request, attempt int)) *server {
	t.Helper()
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		rec := recorded{Method: r.Method, Query: r.URL.Query(), Header: r.Header.Clone(), Body: string(body)}
		s.requests = append(s.requests, rec)
		n := len(s.requests)
		s.mu.Unlock()
		h(w, r, n)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *server) all() []recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recorded(nil), s.requests...)
}

type events struct {
	list []stream.Event
}

func (e *events) HandleEvent(ev stream.Event) error {
	e.list = append(e.list, ev)
	return nil
}

type harness struct {
	t     *testing.T
	loop  *loop.Loop
	doc   *dom.Document
	store *signal.Store
	ind   *binding.Indicators
	sink  *events
	d     *Dispatcher
}

func newHarness(t *testing.T, markup string, opts ...Option) *harness {
	t.Helper()
	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatal(err)
	}
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	store := signal.New()
	ind := binding.NewIndicators(store)
	sink := &events{}
	opts = append([]Option{WithIndicator(ind)}, opts...)
	return &harness{
		t: t, loop: l, doc: doc, store: store, ind: ind, sink: sink,
		d: New(l, doc, store, sink, opts...),
	}
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func()) {
	h.t.Helper()
	done := make(chan struct{})
	if !h.loop.Post(func() {
		defer close(done)
		fn()
	}) {
		h.t.Fatal("loop closed")
	}
	<-done
}

func (h *harness) dispatch(el *html.Node, method, u string, opts Options) *Request {
	h.t.Helper()
	var r *Request
	var err error
	h.do(func() { r, err = h.d.Dispatch(el, method, u, opts) })
	if err != nil {
		h.t.Fatal(err)
	}
	return r
}

func (h *harness) wait(r *Request) {
	h.t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		h.t.Fatal("request did not settle")
	}
}

func (h *harness) pendingTimers() int {
	var n int
	h.do(func() { n = h.loop.PendingTimers() })
	return n
}

func noContent(w http.ResponseWriter, r *http.Request, _ int) {
	w.WriteHeader(http.StatusNoContent)
}

func TestGetCarriesFilteredSnapshot(t *testing.T) {
	srv := newServer(t, noContent)
	h := newHarness(t, `<button id="b"></button>`)
	h.do(func() {
		_ = h.store.Set("count", 1)
		_ = h.store.Set("_draft", "local")
		_ = h.store.Set("secret.token", "x")
	})

	opts := DefaultOptions()
	opts.FilterSignals, _ = signal.CompileFilter("", "^secret")
	opts.Headers = map[string]string{"X-Extra": "1"}
	r := h.dispatch(h.doc.GetElementByID("b"), "get", srv.URL+"/items?page=2", opts)
	h.wait(r)

	if r.Err() != nil {
		t.Fatalf("err = %v", r.Err())
	}
	reqs := srv.all()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests", len(reqs))
	}
	got := reqs[0]
	var payload map[string]any
	if err := json.Unmarshal([]byte(got.Query.Get(QueryParam)), &payload); err != nil {
		t.Fatalf("query payload: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"count": 1.0}, payload); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
	if got.Query.Get("page") != "2" {
		t.Errorf("existing query lost: %v", got.Query)
	}
	if got.Body != "" {
		t.Errorf("GET body = %q", got.Body)
	}
	if got.Header.Get(HeaderRequest) != "true" || got.Header.Get(HeaderRequestID) != r.ID {
		t.Errorf("headers = %v", got.Header)
	}
	if got.Header.Get("X-Extra") != "1" {
		t.Error("custom header missing")
	}
}

func TestPostSendsJSONBody(t *testing.T) {
	srv := newServer(t, noContent)
	h := newHarness(t, `<button id="b"></button>`)
	h.do(func() {
		_ = h.store.Set("todo.title", "milk")
		_ = h.store.Set("todo._editing", true)
	})

	r := h.dispatch(nil, "POST", srv.URL, DefaultOptions())
	h.wait(r)

	got := srv.all()[0]
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", got.Header.Get("Content-Type"))
	}
	if got.Body != `{"todo":{"title":"milk"}}` {
		t.Errorf("body = %s", got.Body)
	}
	if got.Query.Has(QueryParam) {
		t.Error("POST carried the query payload")
	}
}

func TestFormEncoding(t *testing.T) {
	srv := newServer(t, noContent)
	h := newHarness(t, `<form><input name="q" value="shoes"><input type="checkbox" name="new" checked><button id="go"></button></form><a id="link"></a>`)
	h.do(func() { _ = h.store.Set("page", 3) })

	opts := DefaultOptions()
	opts.ContentType = ContentForm
	r := h.dispatch(h.doc.GetElementByID("go"), "POST", srv.URL, opts)
	h.wait(r)
	r = h.dispatch(h.doc.GetElementByID("link"), "GET", srv.URL, opts)
	h.wait(r)

	reqs := srv.all()
	if got := reqs[0].Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", got)
	}
	if got := reqs[0].Body; got != "new=on&q=shoes" {
		t.Errorf("form body = %q", got)
	}
	if got := reqs[1].Query.Get("page"); got != "3" {
		t.Errorf("flattened signals = %v", reqs[1].Query)
	}
}

func TestResponseContentTypes(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		switch r.URL.Path {
		case "/html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, `<p id="a">hi</p>`)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderOnlyIfMissing, "true")
			_, _ = io.WriteString(w, `{"n":1}`)
		case "/js":
			w.Header().Set("Content-Type", "text/javascript")
			_, _ = io.WriteString(w, `$n = 2`)
		case "/sse":
			out := stream.NewResponseWriter(w)
			_ = out.Send(stream.ElementPatch{Patch: morph.Patch{Elements: `<p id="b"></p>`}})
			_ = out.Send(stream.SignalPatch{Patch: signal.Patch{Signals: json.RawMessage(`{"m":1}`)}})
		}
	})
	h := newHarness(t, `<div></div>`)

	opts := DefaultOptions()
	opts.Selector = "#main"
	for _, path := range []string{"/html", "/json", "/js", "/sse"} {
		h.wait(h.dispatch(nil, "GET", srv.URL+path, opts))
	}

	var got []stream.Event
	h.do(func() { got = append(got, h.sink.list...) })
	want := []stream.Event{
		stream.ElementPatch{Patch: morph.Patch{Selector: "#main", Mode: morph.ModeOuter, Elements: `<p id="a">hi</p>`}},
		stream.SignalPatch{Patch: signal.Patch{Signals: json.RawMessage(`{"n":1}`), OnlyIfMissing: true}},
		stream.ExecuteScript{Script: "$n = 2", AutoRemove: true},
		stream.ElementPatch{Patch: morph.Patch{Scope: "#main", Mode: morph.ModeOuter, Elements: `<p id="b"></p>`}},
		stream.SignalPatch{Patch: signal.Patch{Signals: json.RawMessage(`{"m":1}`)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestIndicatorClearedAfterRetriesExhausted(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	h := newHarness(t, `<button id="b"></button>`)
	el := h.doc.GetElementByID("b")
	h.do(func() {
		if _, err := h.ind.AddSignal(el, "loading"); err != nil {
			t.Error(err)
		}
	})

	opts := DefaultOptions()
	opts.Retry = RetryPolicy{Interval: time.Millisecond, Scaler: 2, MaxWait: 5 * time.Millisecond, MaxCount: 2}
	var busy bool
	var r *Request
	h.do(func() {
		var err error
		r, err = h.d.Dispatch(el, "POST", srv.URL, opts)
		if err != nil {
			t.Error(err)
		}
		busy, _ = h.store.Peek("loading").(bool)
	})
	if !busy {
		t.Error("indicator not set while in flight")
	}
	h.wait(r)

	if r.Attempts() != 3 {
		t.Errorf("attempts = %d, want 3", r.Attempts())
	}
	if !errors.IsKind(r.Err(), errors.KindStreamTransport) {
		t.Errorf("err = %v, want StreamTransportError", r.Err())
	}
	if v := h.store.Peek("loading"); v != false {
		t.Errorf("loading = %v after settle", v)
	}
	if n := h.pendingTimers(); n != 0 {
		t.Errorf("pending timers = %d", n)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		http.Error(w, "bad", http.StatusBadRequest)
	})
	h := newHarness(t, `<div></div>`)
	r := h.dispatch(nil, "POST", srv.URL, DefaultOptions())
	h.wait(r)
	if r.Attempts() != 1 || len(srv.all()) != 1 {
		t.Errorf("attempts = %d, requests = %d", r.Attempts(), len(srv.all()))
	}
}

func TestStreamErrorMidFlight(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		out := stream.NewResponseWriter(w)
		_ = out.Send(stream.SignalPatch{Patch: signal.Patch{Signals: json.RawMessage(`{"live":1}`)}})
		<-r.Context().Done()
	})
	h := newHarness(t, `<div id="feed"></div>`, WithIdleTimeout(20*time.Millisecond))
	el := h.doc.GetElementByID("feed")
	h.do(func() { _, _ = h.ind.AddSignal(el, "live_busy") })

	opts := DefaultOptions()
	opts.Retry.MaxCount = 0
	r := h.dispatch(el, "GET", srv.URL, opts)
	h.wait(r)

	var e *errors.Error
	if !errorsAs(r.Err(), &e) || e.Code != "E063" {
		t.Fatalf("err = %v, want E063", r.Err())
	}
	if v := h.store.Peek("live_busy"); v != false {
		t.Errorf("indicator = %v", v)
	}
	if n := h.pendingTimers(); n != 0 {
		t.Errorf("pending timers = %d", n)
	}
	var n int
	h.do(func() { n = len(h.sink.list) })
	if n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestRequestCancellation(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		stream.NewResponseWriter(w)
		<-r.Context().Done()
	})
	h := newHarness(t, `<button id="b"></button>`)
	el := h.doc.GetElementByID("b")

	first := h.dispatch(el, "GET", srv.URL, DefaultOptions())
	second := h.dispatch(el, "GET", srv.URL, DefaultOptions())
	h.wait(first)
	if first.Err() != context.Canceled {
		t.Errorf("first err = %v, want context.Canceled", first.Err())
	}

	opts := DefaultOptions()
	opts.RequestCancellation = CancelDisabled
	third := h.dispatch(el, "GET", srv.URL, opts)
	var inflight int
	var busy bool
	h.do(func() {
		inflight = h.d.InFlight()
		busy = h.ind.Busy(el)
	})
	if second.Settled() || inflight != 2 || !busy {
		t.Errorf("in flight = %d, busy = %v", inflight, busy)
	}

	h.do(func() { h.d.Cancel(el) })
	h.wait(second)
	h.wait(third)
	h.do(func() { busy = h.ind.Busy(el) })
	if busy {
		t.Error("element still busy after Cancel")
	}
}

func TestInstalledActions(t *testing.T) {
	srv := newServer(t, noContent)
	h := newHarness(t, `<button id="b"></button>`)
	ev := expr.NewEvaluator()
	h.d.Install(ev)

	x := expr.MustCompile(`@put('` + srv.URL + `/save', {contentType: 'form', headers: {'X-A': 'b'}})`)
	var id any
	var err error
	h.do(func() {
		_ = h.store.Set("name", "ann")
		id, err = ev.Evaluate(x, expr.Context{Store: h.store, Doc: h.doc, Element: h.doc.GetElementByID("b")})
	})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := id.(string); len(s) != 26 {
		t.Errorf("request id = %v", id)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(srv.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	got := srv.all()[0]
	if got.Method != http.MethodPut || got.Body != "name=ann" || got.Header.Get("X-A") != "b" {
		t.Errorf("request = %+v", got)
	}

	h.do(func() {
		_, err = ev.Evaluate(expr.MustCompile(`@post('/x', {verb: 1})`), expr.Context{Store: h.store, Doc: h.doc})
	})
	if !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("err = %v, want ConfigError", err)
	}
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions(map[string]any{
		"contentType":         "form",
		"selector":            "#x",
		"requestCancellation": "disabled",
		"retryInterval":       250,
		"retryScaler":         1.5,
		"retryMaxWait":        1000.0,
		"retryMaxCount":       3,
		"filterSignals":       map[string]any{"include": "^a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.ContentType != ContentForm || o.Selector != "#x" || o.RequestCancellation != CancelDisabled {
		t.Errorf("options = %+v", o)
	}
	want := RetryPolicy{Interval: 250 * time.Millisecond, Scaler: 1.5, MaxWait: time.Second, MaxCount: 3}
	if o.Retry != want {
		t.Errorf("retry = %+v, want %+v", o.Retry, want)
	}
	if !o.FilterSignals.Match("abc") || o.FilterSignals.Match("b") {
		t.Error("filter not applied")
	}

	for _, bad := range []map[string]any{
		{"contentType": "xml"},
		{"requestCancellation": "sometimes"},
		{"headers": "nope"},
		{"filterSignals": map[string]any{"include": "("}},
		{"unknown": true},
	} {
		if _, err := ParseOptions(bad); !errors.IsKind(err, errors.KindConfig) {
			t.Errorf("ParseOptions(%v) err = %v, want ConfigError", bad, err)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	p := RetryPolicy{Interval: 100 * time.Millisecond, Scaler: 2, MaxWait: time.Second}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
