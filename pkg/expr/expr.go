package expr

import (
	"fmt"
	"sync"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Expression is a compiled, reusable expression.
type Expression struct {
	source string
	stmts  []statement
}

type statement struct {
	source  string
	target  string // signal path for assignments
	op      string
	program *vm.Program
}

// Source returns the text the expression was compiled from.
func (e *Expression) Source() string {
	return e.source
}

// Empty reports whether the expression has no statements.
func (e *Expression) Empty() bool {
	return e == nil || len(e.stmts) == 0
}

// Assigns reports whether any statement writes a signal.
func (e *Expression) Assigns() bool {
	for _, s := range e.stmts {
		if s.target != "" {
			return true
		}
	}
	return false
}

// prototype declares the environment for the type checker; values are
// replaced per evaluation.
var prototype = map[string]any{
	sigFunc:   func(string) any { return nil },
	actFunc:   func(string, ...any) (any, error) { return nil, nil },
	"el":      (*Element)(nil),
	"evt":     (*Event)(nil),
	"signals": map[string]any{},
}

// Compile parses source once.
func Compile(source string) (*Expression, error) {
	parts, err := splitStatements(source)
	if err != nil {
		return nil, err
	}
	e := &Expression{source: source}
	for _, part := range parts {
		st := statement{source: part}
		body := part
		if path, op, rhs, ok := parseAssignment(part); ok {
			st.target, st.op, body = path, op, rhs
		}
		if body != "" {
			rewritten, err := rewrite(body)
			if err != nil {
				return nil, err
			}
			st.program, err = exprlang.Compile(rewritten,
				exprlang.Env(prototype),
				exprlang.AllowUndefinedVariables(),
			)
			if err != nil {
				return nil, errors.New("E001").WithSource(source).Wrap(err)
			}
		} else if st.op != "++" && st.op != "--" {
			return nil, errors.New("E001").
				WithDetailf("assignment to $%s has no value", st.target).
				WithSource(source)
		}
		e.stmts = append(e.stmts, st)
	}
	return e, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(source string) *Expression {
	e, err := Compile(source)
	if err != nil {
		panic(fmt.Sprintf("expr: %v", err))
	}
	return e
}

// cache memoizes compiled expressions by source.
type cache struct {
	m sync.Map
}

func (c *cache) compile(source string) (*Expression, error) {
	if v, ok := c.m.Load(source); ok {
		return v.(*Expression), nil
	}
	e, err := Compile(source)
	if err != nil {
		return nil, err
	}
	c.m.Store(source, e)
	return e, nil
}
