package binding

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseAttribute(t *testing.T) {
	tests := []struct {
		name string
		want Attribute
		ok   bool
		err  bool
	}{
		{name: "class", ok: false},
		{name: "data-", ok: false},
		{name: "data-text", want: Attribute{Name: "data-text", Plugin: "text"}, ok: true},
		{name: "data-on:click", want: Attribute{Name: "data-on:click", Plugin: "on", Key: "click"}, ok: true},
		{
			name: "data-on:input__debounce.300ms.leading__prevent",
			want: Attribute{
				Name:   "data-on:input__debounce.300ms.leading__prevent",
				Plugin: "on",
				Key:    "input",
				Modifiers: Modifiers{
					{Name: "debounce", Tags: []string{"300ms", "leading"}},
					{Name: "prevent", Tags: []string{}},
				},
			},
			ok: true,
		},
		{name: "data-on-interval__duration.2s", want: Attribute{
			Name:      "data-on-interval__duration.2s",
			Plugin:    "on-interval",
			Modifiers: Modifiers{{Name: "duration", Tags: []string{"2s"}}},
		}, ok: true},
		{name: "data-on:click__", ok: true, err: true},
		{name: "data-on:click__debounce..leading", ok: true, err: true},
		{name: "data-on:", ok: true, err: true},
		{name: "data-:x", ok: true, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseAttribute(tt.name)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if !tt.ok || tt.err {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseAttribute mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestModifierDuration(t *testing.T) {
	tests := []struct {
		tags []string
		want time.Duration
		err  bool
	}{
		{[]string{"300ms"}, 300 * time.Millisecond, false},
		{[]string{"300"}, 300 * time.Millisecond, false},
		{[]string{"leading", "1s"}, time.Second, false},
		{[]string{"1", "5s"}, 1500 * time.Millisecond, false},
		{[]string{"leading"}, 0, true},
		{nil, 0, true},
	}
	for _, tt := range tests {
		got, err := Modifier{Name: "debounce", Tags: tt.tags}.Duration(-1)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("Duration(%v) = %v, %v", tt.tags, got, err)
		}
	}
}

func TestConvertCase(t *testing.T) {
	tests := []struct {
		key  string
		c    Case
		want string
	}{
		{"user-name", CaseCamel, "userName"},
		{"user-name", CaseSnake, "user_name"},
		{"user-name", CasePascal, "UserName"},
		{"user_name", CaseKebab, "user-name"},
		{"form.first-name", CaseCamel, "form.firstName"},
		{"_draft-text", CaseCamel, "_draftText"},
		{"count", CaseCamel, "count"},
	}
	for _, tt := range tests {
		if got := ConvertCase(tt.key, tt.c); got != tt.want {
			t.Errorf("ConvertCase(%q, %s) = %q, want %q", tt.key, tt.c, got, tt.want)
		}
	}

	if _, err := (Modifiers{{Name: "case", Tags: []string{"shouty"}}}).KeyCase(CaseCamel); err == nil {
		t.Error("unknown case should fail")
	}
}
