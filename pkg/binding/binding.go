package binding

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/metrics"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// Host is everything a binding may touch. One Host serves one page.
type Host struct {
	Doc        *dom.Document
	Store      *signal.Store
	Eval       *expr.Evaluator
	Loop       *loop.Loop
	Indicators *Indicators
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

func (h *Host) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Teardown releases what a binding attached.
type Teardown func()

// Binding is one attribute attached to one element.
type Binding struct {
	Host      *Host
	Element   *html.Node
	Attr      string
	Plugin    string
	Key       string
	Value     string
	Modifiers Modifiers

	// Expr is the compiled value; nil for plugins that take no expression
	// or when the value is empty.
	Expr *expr.Expression

	teardown Teardown
	disabled bool
}

// Context returns the evaluation context for ev (which may be nil).
func (b *Binding) Context(ev *dom.Event) expr.Context {
	return expr.Context{
		Store:   b.Host.Store,
		Doc:     b.Host.Doc,
		Element: b.Element,
		Event:   ev,
	}
}

// Evaluate runs the binding's expression.
func (b *Binding) Evaluate(ev *dom.Event) (any, error) {
	if b.Expr == nil {
		return nil, nil
	}
	v, err := b.Host.Eval.Evaluate(b.Expr, b.Context(ev))
	if err != nil {
		if e, ok := err.(*errors.Error); ok && e.Location == nil {
			e.WithLocation(dom.Describe(b.Element), b.Attr, 0)
		}
	}
	return v, err
}

// Effect runs fn now and again whenever a signal it read changes. The
// first error is returned and nothing stays registered; later errors
// disable the binding.
func (b *Binding) Effect(fn func() error) (Teardown, error) {
	first := true
	sub, err := b.Host.Store.Effect(func() error {
		err := fn()
		if err != nil && !first {
			b.Fail(err)
			return nil
		}
		return err
	})
	first = false
	if err != nil {
		sub.Dispose()
		return nil, err
	}
	return sub.Dispose, nil
}

// Fail reports an evaluation error. Expression errors disable the binding;
// rejected cascade writes are only logged.
func (b *Binding) Fail(err error) {
	b.Host.logger().Error("binding failed",
		"element", dom.Describe(b.Element),
		"attribute", b.Attr,
		"error", err)
	if errors.IsKind(err, errors.KindReactiveCycle) {
		return
	}
	b.Disable()
}

// Disable runs the teardown once and marks the binding inactive.
func (b *Binding) Disable() {
	if b.disabled {
		return
	}
	b.disabled = true
	if b.teardown != nil {
		b.teardown()
	}
	b.Host.Metrics.BindingDetached(b.Plugin)
}

// Disabled reports whether the binding has been torn down.
func (b *Binding) Disabled() bool {
	return b.disabled
}

// SignalPath returns the signal named by the key, converted with the
// __case modifier (default camel), or else the value verbatim.
func (b *Binding) SignalPath() (string, error) {
	if b.Key == "" {
		if b.Value == "" {
			return "", errors.New("E101").WithDetailf("%s needs a signal name", b.Attr)
		}
		return b.Value, nil
	}
	c, err := b.Modifiers.KeyCase(CaseCamel)
	if err != nil {
		return "", err
	}
	return ConvertCase(b.Key, c), nil
}
