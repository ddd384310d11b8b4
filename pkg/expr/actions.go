package expr

import (
	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// actionPeek reads a signal without tracking it: @peek('path').
func actionPeek(ctx Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("E002").WithDetail("@peek expects a signal path")
	}
	path, _ := args[0].(string)
	if ctx.Store == nil || path == "" {
		return nil, nil
	}
	return ctx.Store.Peek(path), nil
}

// actionSetAll sets every public leaf signal kept by an optional filter:
// @setAll(value, {include: '...', exclude: '...'}).
func actionSetAll(ctx Context, args []any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("E002").WithDetail("@setAll expects a value")
	}
	paths, err := filteredPaths(ctx, args[1:])
	if err != nil {
		return nil, err
	}
	return nil, ctx.Store.Batch(func() error {
		for _, p := range paths {
			if err := ctx.Store.Set(p, args[0]); err != nil {
				return err
			}
		}
		return nil
	})
}

// actionToggleAll negates every public leaf signal kept by an optional
// filter: @toggleAll({include: '...'}).
func actionToggleAll(ctx Context, args []any) (any, error) {
	paths, err := filteredPaths(ctx, args)
	if err != nil {
		return nil, err
	}
	return nil, ctx.Store.Batch(func() error {
		for _, p := range paths {
			if err := ctx.Store.Set(p, !Truthy(ctx.Store.Peek(p))); err != nil {
				return err
			}
		}
		return nil
	})
}

func filteredPaths(ctx Context, args []any) ([]string, error) {
	if ctx.Store == nil {
		return nil, nil
	}
	f, err := FilterArg(args)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range ctx.Store.Paths() {
		if ctx.Store.IsLocal(p) || !f.Match(p) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FilterArg reads an optional {include, exclude} object argument.
func FilterArg(args []any) (signal.Filter, error) {
	if len(args) == 0 {
		return signal.Filter{}, nil
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return signal.Filter{}, nil
	}
	include, _ := m["include"].(string)
	exclude, _ := m["exclude"].(string)
	return signal.CompileFilter(include, exclude)
}
