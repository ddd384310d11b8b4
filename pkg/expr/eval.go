package expr

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	exprlang "github.com/expr-lang/expr"
	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/metrics"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// Context is what an evaluation can see.
type Context struct {
	Store   *signal.Store
	Doc     *dom.Document
	Element *html.Node
	Event   *dom.Event
}

// Action is a function callable as @name(args...).
type Action func(ctx Context, args []any) (any, error)

// Evaluator runs compiled expressions against a store.
type Evaluator struct {
	actions map[string]Action
	cache   cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// NewEvaluator creates an Evaluator with the store actions peek, setAll
// and toggleAll installed.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		actions: make(map[string]Action),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Register("peek", actionPeek)
	e.Register("setAll", actionSetAll)
	e.Register("toggleAll", actionToggleAll)
	return e
}

// Register installs an action, replacing any previous one with that name.
func (e *Evaluator) Register(name string, fn Action) {
	e.actions[name] = fn
}

// HasAction reports whether name is registered.
func (e *Evaluator) HasAction(name string) bool {
	_, ok := e.actions[name]
	return ok
}

// Compile compiles source, reusing earlier compilations of the same text.
func (e *Evaluator) Compile(source string) (*Expression, error) {
	x, err := e.cache.compile(source)
	if err != nil {
		e.metrics.ExpressionError("syntax")
	}
	return x, err
}

// Evaluate runs x and returns the value of its last statement.
// Assignments write the store immediately.
func (e *Evaluator) Evaluate(x *Expression, ctx Context) (result any, err error) {
	if x.Empty() {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("expression panic",
				"source", x.source,
				"panic", r,
				"stack", string(debug.Stack()))
			e.metrics.ExpressionError("panic")
			result = nil
			err = errors.New("E003").WithDetail(fmt.Sprint(r)).WithSource(x.source)
		}
	}()

	var actionErr error
	env := e.env(ctx, &actionErr)
	for _, st := range x.stmts {
		result, err = e.run(st, env, ctx)
		if err != nil && actionErr != nil {
			err = actionErr
		}
		if err != nil {
			if errors.KindOf(err) == "" {
				err = errors.New("E002").WithSource(x.source).Wrap(err)
			}
			if errors.IsKind(err, errors.KindExpression) {
				e.metrics.ExpressionError("runtime")
			}
			return nil, err
		}
	}
	return result, nil
}

func (e *Evaluator) run(st statement, env map[string]any, ctx Context) (any, error) {
	var v any
	if st.program != nil {
		var err error
		v, err = exprlang.Run(st.program, env)
		if err != nil {
			return nil, err
		}
	}
	if st.target == "" {
		return v, nil
	}
	if ctx.Store == nil {
		return nil, errors.New("E081").WithDetailf("no store for $%s", st.target)
	}

	old := ctx.Store.Peek(st.target)
	var next any
	switch st.op {
	case "=":
		next = v
	case "++":
		next = ToNumber(old) + 1
	case "--":
		next = ToNumber(old) - 1
	case "+=":
		_, os := old.(string)
		_, vs := v.(string)
		if os || vs {
			next = ToString(old) + ToString(v)
		} else {
			next = ToNumber(old) + ToNumber(v)
		}
	case "-=":
		next = ToNumber(old) - ToNumber(v)
	case "*=":
		next = ToNumber(old) * ToNumber(v)
	case "/=":
		next = ToNumber(old) / ToNumber(v)
	}
	if err := ctx.Store.Set(st.target, next); err != nil {
		return nil, err
	}
	return next, nil
}

// env builds the evaluation environment. Errors returned by actions are
// stored in actionErr so they keep their kind through the expr VM.
func (e *Evaluator) env(ctx Context, actionErr *error) map[string]any {
	env := map[string]any{
		sigFunc: func(path string) any {
			if ctx.Store == nil {
				return nil
			}
			return ctx.Store.Get(path)
		},
		actFunc: func(name string, args ...any) (any, error) {
			fn, ok := e.actions[name]
			if !ok {
				*actionErr = errors.New("E004").WithDetailf("@%s", name)
				return nil, *actionErr
			}
			v, err := fn(ctx, args)
			if err != nil {
				*actionErr = err
			}
			return v, err
		},
		"el":      newElement(ctx.Doc, ctx.Element),
		"evt":     newEvent(ctx.Doc, ctx.Event),
		"signals": map[string]any{},
	}
	if ctx.Store != nil {
		env["signals"] = ctx.Store.Snapshot()
	}
	return env
}

// Element is the view of the bound element inside expressions.
type Element struct {
	ID  string
	Tag string

	doc  *dom.Document
	node *html.Node
}

func newElement(doc *dom.Document, n *html.Node) *Element {
	if n == nil {
		return &Element{}
	}
	return &Element{ID: dom.ID(n), Tag: dom.Tag(n), doc: doc, node: n}
}

// Node returns the underlying node.
func (el *Element) Node() *html.Node {
	if el == nil {
		return nil
	}
	return el.node
}

// Attr returns an attribute value or "".
func (el *Element) Attr(name string) string {
	if el == nil || el.node == nil {
		return ""
	}
	v, _ := dom.Attr(el.node, name)
	return v
}

// Value returns the live value of a form control.
func (el *Element) Value() string {
	if el == nil || el.node == nil || el.doc == nil {
		return ""
	}
	return el.doc.Value(el.node)
}

// Checked reports the live checked state.
func (el *Element) Checked() bool {
	if el == nil || el.node == nil || el.doc == nil {
		return false
	}
	return el.doc.Checked(el.node)
}

// Text returns the text content.
func (el *Element) Text() string {
	if el == nil || el.node == nil {
		return ""
	}
	return dom.TextContent(el.node)
}

// HasClass reports whether the element carries class c.
func (el *Element) HasClass(c string) bool {
	if el == nil || el.node == nil {
		return false
	}
	return dom.HasClass(el.node, c)
}

// Event is the view of the triggering event inside expressions.
type Event struct {
	Type    string
	Key     string
	Value   string
	Checked bool
	Detail  any
}

func newEvent(doc *dom.Document, ev *dom.Event) *Event {
	if ev == nil {
		return &Event{}
	}
	out := &Event{Type: ev.Type, Key: ev.Key, Detail: ev.Detail}
	if doc != nil && ev.Target != nil {
		out.Value = doc.Value(ev.Target)
		out.Checked = doc.Checked(ev.Target)
	}
	return out
}
