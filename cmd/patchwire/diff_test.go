package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/vango-dev/patchwire/internal/config"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/runtime"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

func TestWriteLineDiff(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	writeLineDiff(&out, "a\nb\nc\n", "a\nB\nc\n")
	want := "  - b\n  + B\n"
	if out.String() != want {
		t.Errorf("diff = %q, want %q", out.String(), want)
	}
}

func TestWatcherReportsSignalsAndMarkup(t *testing.T) {
	color.NoColor = true
	doc, err := dom.ParseString("<div data-signals=\"{n: 1}\">\n<span id=\"n\" data-text=\"$n\">1</span>\n</div>")
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	w := newWatcher(&out)
	p := runtime.New(doc, nil, runtime.WithEventHook(w.event))
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	w.attach(p)

	ev := stream.SignalPatch{Patch: signal.Patch{Signals: json.RawMessage(`{"n":2}`)}}
	if err := p.HandleEvent(ev); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"patchwire-patch-signals", `signals {"n":2}`, `+ <span id="n" data-text="$n">2</span>`} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("log output = %q", buf.String())
	}
}
