package stream

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/morph"
)

func readAll(t *testing.T, s string) []Frame {
	t.Helper()
	r := NewReader(strings.NewReader(s))
	var out []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, f)
	}
}

func TestReader(t *testing.T) {
	input := "event: patchwire-patch-elements\r\n" +
		"data: elements <p>\r\n" +
		"data: elements hi</p>\r\n" +
		"\r\n" +
		": ping\n" +
		"\n" +
		"\n" +
		"event: patchwire-patch-signals\n" +
		"id: 7\n" +
		"retry: 1500\n" +
		"data:signals {\"a\":1}\n" +
		"\n" +
		"event: patchwire-patch-signals\n" +
		"data: signals {\"partial\":true}\n"

	got := readAll(t, input)
	want := []Frame{
		{Event: EventPatchElements, Data: []string{"elements <p>", "elements hi</p>"}},
		{Comments: []string{"ping"}},
		{Event: EventPatchSignals, ID: "7", Retry: 1500 * time.Millisecond, Data: []string{`signals {"a":1}`}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}
	if !got[1].KeepAlive() || got[0].KeepAlive() {
		t.Error("KeepAlive misclassified")
	}
}

func TestReaderBadRetry(t *testing.T) {
	r := NewReader(strings.NewReader("retry: soon\ndata: x\n\nevent: next\n\n"))
	f, err := r.Next()
	if !errors.IsKind(err, errors.KindMalformedFrame) {
		t.Fatalf("err = %v, want MalformedFrame", err)
	}
	if len(f.Data) != 1 || f.Data[0] != "x" {
		t.Errorf("bad frame not read to its end: %+v", f)
	}
	f, err = r.Next()
	if err != nil || f.Event != "next" {
		t.Fatalf("next frame = %+v, %v", f, err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		want    Event
		wantErr bool
	}{
		{
			name:  "keep-alive",
			frame: Frame{Comments: []string{""}},
			want:  KeepAlive{},
		},
		{
			name: "elements multi-line",
			frame: Frame{Event: EventPatchElements, Data: []string{
				"selector #list", "mode append", "elements <li>a", "elements b</li>",
			}},
			want: ElementPatch{morph.Patch{Selector: "#list", Mode: morph.ModeAppend, Elements: "<li>a\nb</li>"}},
		},
		{
			name:  "elements default mode",
			frame: Frame{Event: EventPatchElements, Data: []string{`elements <div id="a"></div>`}},
			want:  ElementPatch{morph.Patch{Mode: morph.ModeOuter, Elements: `<div id="a"></div>`}},
		},
		{
			name:  "remove by selector",
			frame: Frame{Event: EventPatchElements, Data: []string{"selector #x", "mode remove"}},
			want:  ElementPatch{morph.Patch{Selector: "#x", Mode: morph.ModeRemove}},
		},
		{
			name:  "script defaults",
			frame: Frame{Event: EventExecuteScript, Data: []string{"script $a = 1"}},
			want:  ExecuteScript{Script: "$a = 1", AutoRemove: true},
		},
		{
			name: "script attributes",
			frame: Frame{Event: EventExecuteScript, Data: []string{
				"autoRemove false", "attributes type module", "script $a = 1",
			}},
			want: ExecuteScript{Script: "$a = 1", Attributes: map[string]string{"type": "module"}},
		},
		{
			name:    "unknown event",
			frame:   Frame{Event: "patchwire-teleport", Data: []string{"x y"}},
			wantErr: true,
		},
		{
			name:    "data without event",
			frame:   Frame{Data: []string{"signals {}"}},
			wantErr: true,
		},
		{
			name:    "unknown key",
			frame:   Frame{Event: EventPatchElements, Data: []string{"element <p></p>"}},
			wantErr: true,
		},
		{
			name:    "bad mode",
			frame:   Frame{Event: EventPatchElements, Data: []string{"mode sideways", "elements <p></p>"}},
			wantErr: true,
		},
		{
			name:    "signals not an object",
			frame:   Frame{Event: EventPatchSignals, Data: []string{"signals [1,2]"}},
			wantErr: true,
		},
		{
			name:    "signals missing",
			frame:   Frame{Event: EventPatchSignals, Data: []string{"onlyIfMissing true"}},
			wantErr: true,
		},
		{
			name:    "bad bool",
			frame:   Frame{Event: EventPatchSignals, Data: []string{"onlyIfMissing maybe", "signals {}"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.frame)
			if tt.wantErr {
				if !errors.IsKind(err, errors.KindMalformedFrame) {
					t.Fatalf("err = %v, want MalformedFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("event (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeSignals(t *testing.T) {
	ev, err := Decode(Frame{Event: EventPatchSignals, Data: []string{
		"onlyIfMissing true", `signals {"a":`, `signals   {"b": 2}}`,
	}})
	if err != nil {
		t.Fatal(err)
	}
	p := ev.(SignalPatch)
	if !p.OnlyIfMissing {
		t.Error("OnlyIfMissing = false")
	}
	if got := string(p.Signals); got != "{\"a\":\n  {\"b\": 2}}" {
		t.Errorf("signals = %q", got)
	}
}

func TestWriterFramesParseBack(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf)
	events := []Event{
		ElementPatch{morph.Patch{Selector: "#a", Mode: morph.ModeInner, Elements: "<b>1</b>\n<b>2</b>"}},
		KeepAlive{},
		ExecuteScript{Script: "@peek()", AutoRemove: true},
	}
	for _, ev := range events {
		if err := w.Send(ev); err != nil {
			t.Fatal(err)
		}
	}

	frames := readAll(t, buf.String())
	if len(frames) != len(events) {
		t.Fatalf("got %d frames, want %d:\n%s", len(frames), len(events), buf.String())
	}
	for i, f := range frames {
		got, err := Decode(f)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(events[i], got); diff != "" {
			t.Errorf("event %d (-want +got):\n%s", i, diff)
		}
	}
}
