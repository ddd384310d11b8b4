package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/patchwire/internal/demo"
	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/action"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/morph"
	"github.com/vango-dev/patchwire/pkg/stream"
)

func startPage(t *testing.T, handler http.Handler) *Page {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	page, err := Load(ctx, srv.URL+"/", WithIdleTimeout(5*time.Second))
	if err != nil {
		cancel()
		t.Fatalf("Load: %v", err)
	}
	if err := page.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	go page.Run(ctx)
	t.Cleanup(func() {
		page.Close()
		cancel()
	})
	return page
}

// on runs fn on the page loop.
func on(t *testing.T, p *Page, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Do(ctx, fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

// eventually polls cond on the loop.
func eventually(t *testing.T, p *Page, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		on(t, p, func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func text(p *Page, id string) string {
	el := p.Doc.GetElementByID(id)
	if el == nil {
		return ""
	}
	return dom.TextContent(el)
}

func click(t *testing.T, p *Page, selector string) {
	t.Helper()
	on(t, p, func() {
		if n, err := p.Trigger(selector, "click"); err != nil || n != 1 {
			t.Errorf("Trigger(%q) = %d, %v", selector, n, err)
		}
	})
}

func TestIncrementRoundTrip(t *testing.T) {
	srv := demo.New()
	p := startPage(t, srv.Handler())

	on(t, p, func() {
		if got := text(p, "count"); got != "0" {
			t.Errorf("initial count = %q", got)
		}
	})

	click(t, p, "#inc")
	eventually(t, p, "count 1", func() bool { return text(p, "count") == "1" })
	click(t, p, "#inc")
	eventually(t, p, "count 2 and two log entries", func() bool {
		return text(p, "count") == "2" && p.Doc.GetElementByID("entry-2") != nil
	})
	eventually(t, p, "actions settled", func() bool { return p.Actions.InFlight() == 0 })

	on(t, p, func() {
		if busy := p.Store.Get("_busy"); busy != false {
			t.Errorf("_busy = %v after settle", busy)
		}
	})
	if srv.Count() != 2 {
		t.Errorf("server count = %d, want 2", srv.Count())
	}
}

func TestLocalSignalsStayLocal(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	d := demo.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/increment", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		mu.Lock()
		bodies = append(bodies, m)
		mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		d.Handler().ServeHTTP(w, r)
	})
	mux.Handle("/", d.Handler())
	p := startPage(t, mux)

	click(t, p, "#inc")
	eventually(t, p, "count 1", func() bool { return text(p, "count") == "1" })

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("got %d requests", len(bodies))
	}
	if _, ok := bodies[0]["_busy"]; ok {
		t.Errorf("local signal sent: %v", bodies[0])
	}
	if _, ok := bodies[0]["count"]; !ok {
		t.Errorf("count missing: %v", bodies[0])
	}
}

func TestGreetUsesBoundInput(t *testing.T) {
	p := startPage(t, demo.New().Handler())

	on(t, p, func() {
		if err := p.Input("#name", "Ann"); err != nil {
			t.Error(err)
		}
	})
	click(t, p, "#greet")
	eventually(t, p, "greeting", func() bool { return text(p, "greeting") == "Hello, Ann" })
}

func TestResetAppliesJSON(t *testing.T) {
	p := startPage(t, demo.New().Handler())

	click(t, p, "#inc")
	eventually(t, p, "count 1", func() bool { return text(p, "count") == "1" })
	click(t, p, "#reset")
	eventually(t, p, "count 0", func() bool { return text(p, "count") == "0" })
}

func TestFollowClock(t *testing.T) {
	p := startPage(t, demo.New(demo.WithTick(5*time.Millisecond)).Handler())

	var c *stream.Consumer
	on(t, p, func() {
		var err error
		c, err = p.Follow(context.Background(), "/clock?n=3")
		if err != nil {
			t.Error(err)
		}
	})
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
	if c.State() != stream.StateClosed || c.Frames() != 3 {
		t.Errorf("state = %v frames = %d", c.State(), c.Frames())
	}
	on(t, p, func() {
		if text(p, "clock") == "" {
			t.Error("clock text not set")
		}
		if p.Streams() != 0 {
			t.Errorf("Streams() = %d after close", p.Streams())
		}
	})
}

func TestExecuteScript(t *testing.T) {
	p := startPage(t, demo.New().Handler())

	on(t, p, func() {
		err := p.HandleEvent(stream.ExecuteScript{Script: "$count = 7", AutoRemove: true})
		if err != nil {
			t.Fatal(err)
		}
		if text(p, "count") != "7" {
			t.Errorf("count = %q, want 7", text(p, "count"))
		}
		if els, _ := p.Doc.QuerySelectorAll("script"); len(els) != 0 {
			t.Errorf("%d script elements left", len(els))
		}

		err = p.HandleEvent(stream.ExecuteScript{
			Script:     "$count = $count + 1",
			Attributes: map[string]string{"id": "kept"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if p.Doc.GetElementByID("kept") == nil {
			t.Error("script without autoRemove was removed")
		}
		if text(p, "count") != "8" {
			t.Errorf("count = %q, want 8", text(p, "count"))
		}
	})
}

func TestScriptResponse(t *testing.T) {
	p := startPage(t, demo.New().Handler())

	on(t, p, func() {
		if _, err := p.Actions.Dispatch(nil, "GET", "/script", action.DefaultOptions()); err != nil {
			t.Error(err)
		}
	})
	eventually(t, p, "count 100", func() bool { return text(p, "count") == "100" })
}

func TestRemovePatchTearsDownBindings(t *testing.T) {
	p := startPage(t, demo.New().Handler())

	on(t, p, func() {
		before := p.Lifecycle.Len()
		err := p.HandleEvent(stream.ElementPatch{Patch: morph.Patch{Selector: "#inc", Mode: morph.ModeRemove}})
		if err != nil {
			t.Fatal(err)
		}
		if p.Doc.GetElementByID("inc") != nil {
			t.Fatal("element not removed")
		}
		if after := p.Lifecycle.Len(); after >= before {
			t.Errorf("bindings %d -> %d, want fewer", before, after)
		}
	})
}

func TestLoadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL)
	if !errors.IsKind(err, errors.KindStreamTransport) {
		t.Fatalf("err = %v, want StreamTransportError", err)
	}
	if !strings.Contains(err.Error(), "E062") {
		t.Errorf("err = %v, want E062", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	doc, err := dom.ParseString(`<div data-signals="{a: 1}"><span id="s" data-text="$a"></span></div>`)
	if err != nil {
		t.Fatal(err)
	}
	p := New(doc, nil)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if text(p, "s") != "1" {
		t.Fatalf("text = %q", text(p, "s"))
	}
	p.Close()
	p.Close()
	if p.Lifecycle.Len() != 0 {
		t.Errorf("%d bindings after Close", p.Lifecycle.Len())
	}
}
