package stream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/morph"
)

// collector records events; it runs on the loop goroutine.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) HandleEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		out = append(out, Name(ev))
	}
	return out
}

func runLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func waitDone(t *testing.T, c *Consumer) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer still %s", c.State())
	}
}

func streamServer(body func(w *Writer)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body(NewResponseWriter(w))
	}))
}

func TestConsumerHTTP(t *testing.T) {
	srv := streamServer(func(w *Writer) {
		_ = w.Send(SignalPatch{})
		_ = w.WriteFrame(Frame{Event: EventPatchSignals, Data: []string{`signals {"count":1}`}})
		_ = w.KeepAlive()
		_ = w.WriteFrame(Frame{Event: "bogus", Data: []string{"x y"}})
		_ = w.Send(ElementPatch{morph.Patch{Elements: `<p id="a"></p>`}})
	})
	defer srv.Close()

	l := runLoop(t)
	sink := &collector{}
	var tapped []Frame
	var tapMu sync.Mutex
	c := NewConsumer(l, sink, WithTap(func(f Frame) {
		tapMu.Lock()
		tapped = append(tapped, f)
		tapMu.Unlock()
	}))
	if c.State() != StateConnecting {
		t.Fatalf("state = %s", c.State())
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	c.Open(context.Background(), nil, req)
	waitDone(t, c)

	if c.State() != StateClosed || c.Err() != nil {
		t.Fatalf("state = %s, err = %v", c.State(), c.Err())
	}
	// The empty signal patch fails to decode and is skipped.
	want := []string{EventPatchSignals, EventPatchElements}
	if diff := cmp.Diff(want, sink.names()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	tapMu.Lock()
	defer tapMu.Unlock()
	if len(tapped) != 5 {
		t.Errorf("tapped %d frames, want 5", len(tapped))
	}
}

func TestConsumerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := runLoop(t)
	var doneState State
	var doneErr error
	c := NewConsumer(l, &collector{}, WithOnDone(func(s State, err error) {
		doneState, doneErr = s, err
	}))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	c.Open(context.Background(), srv.Client(), req)
	waitDone(t, c)

	if c.State() != StateErrored {
		t.Fatalf("state = %s", c.State())
	}
	if !errors.IsKind(c.Err(), errors.KindStreamTransport) {
		t.Errorf("err = %v, want StreamTransportError", c.Err())
	}
	if doneState != StateErrored || doneErr != c.Err() {
		t.Errorf("onDone(%s, %v)", doneState, doneErr)
	}
}

func TestConsumerConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	l := runLoop(t)
	c := NewConsumer(l, &collector{})
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	c.Open(context.Background(), nil, req)
	waitDone(t, c)

	if !errors.IsKind(c.Err(), errors.KindStreamTransport) {
		t.Errorf("err = %v", c.Err())
	}
}

func TestConsumerIdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	l := runLoop(t)
	sink := &collector{}
	c := NewConsumer(l, sink, WithIdleTimeout(50*time.Millisecond))
	c.Consume(pr)

	go func() {
		w := NewWriter(pw)
		_ = w.KeepAlive()
	}()
	waitDone(t, c)

	if c.State() != StateErrored {
		t.Fatalf("state = %s", c.State())
	}
	var e *errors.Error
	if !errorsAs(c.Err(), &e) || e.Code != "E063" {
		t.Errorf("err = %v, want E063", c.Err())
	}
	if len(sink.names()) != 0 {
		t.Errorf("keep-alive reached the sink: %v", sink.names())
	}
	if n := l.PendingTimers(); n != 0 {
		t.Errorf("pending timers = %d", n)
	}
}

func TestConsumerClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	l := runLoop(t)
	c := NewConsumer(l, &collector{}, WithIdleTimeout(time.Hour))
	c.Consume(pr)

	go func() {
		_ = NewWriter(pw).WriteFrame(Frame{Event: EventPatchSignals, Data: []string{`signals {"a":1}`}})
	}()
	deadline := time.Now().Add(5 * time.Second)
	for c.State() != StateOpen && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	l.Post(c.Close)
	waitDone(t, c)

	if c.State() != StateClosed {
		t.Fatalf("state = %s", c.State())
	}
	// The closed pipe makes writes fail.
	if _, err := pw.Write([]byte("x")); err == nil {
		t.Error("body still open after Close")
	}
	done := make(chan int)
	l.Post(func() { done <- l.PendingTimers() })
	if n := <-done; n != 0 {
		t.Errorf("pending timers = %d", n)
	}
}

func TestConsumerWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		out := NewWebSocketWriter(conn, time.Second)
		_ = out.Send(SignalPatch{})
		_ = out.WriteFrame(Frame{Event: EventPatchSignals, Data: []string{`signals {"n":1}`}})
		_ = out.Send(ExecuteScript{Script: "$n = 2", AutoRemove: true})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	l := runLoop(t)
	sink := &collector{}
	c := NewConsumer(l, sink)
	c.OpenWebSocket(context.Background(), nil, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	waitDone(t, c)

	if c.State() != StateClosed {
		t.Fatalf("state = %s, err = %v", c.State(), c.Err())
	}
	want := []string{EventPatchSignals, EventExecuteScript}
	if diff := cmp.Diff(want, sink.names()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestConsumerSinkErrorContinues(t *testing.T) {
	srv := streamServer(func(w *Writer) {
		_ = w.Send(ElementPatch{morph.Patch{Elements: `<p id="x"></p>`}})
		_ = w.Send(ElementPatch{morph.Patch{Elements: `<p id="y"></p>`}})
	})
	defer srv.Close()

	l := runLoop(t)
	calls := 0
	c := NewConsumer(l, SinkFunc(func(ev Event) error {
		calls++
		return errors.New("E020")
	}))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	c.Open(context.Background(), nil, req)
	waitDone(t, c)

	if calls != 2 || c.Frames() != 2 {
		t.Errorf("calls = %d, frames = %d", calls, c.Frames())
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s", c.State())
	}
}

func TestConsumerSkipsBadRetryFrame(t *testing.T) {
	l := runLoop(t)
	sink := &collector{}
	c := NewConsumer(l, sink)
	body := "retry: soon\n\n" +
		"event: patchwire-patch-signals\ndata: signals {\"a\":1}\n\n"
	c.Consume(io.NopCloser(strings.NewReader(body)))
	waitDone(t, c)

	if c.State() != StateClosed || c.Err() != nil {
		t.Fatalf("state = %s, err = %v", c.State(), c.Err())
	}
	if diff := cmp.Diff([]string{EventPatchSignals}, sink.names()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}
