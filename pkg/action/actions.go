package action

import (
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/expr"
)

// Install registers @get, @post, @put, @patch and @delete on ev. Each takes
// a URL and an optional options object and returns the request id.
func (d *Dispatcher) Install(ev *expr.Evaluator) {
	for _, method := range Methods {
		ev.Register(strings.ToLower(method), d.action(method))
	}
}

func (d *Dispatcher) action(method string) expr.Action {
	name := "@" + strings.ToLower(method)
	return func(ctx expr.Context, args []any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, errors.New("E101").WithDetailf("%s expects a url and an optional options object", name)
		}
		rawURL, ok := args[0].(string)
		if !ok || rawURL == "" {
			return nil, errors.New("E101").WithDetailf("%s url must be a non-empty string", name)
		}
		opts := DefaultOptions()
		opts.Retry = d.retry
		if len(args) == 2 && args[1] != nil {
			m, ok := args[1].(map[string]any)
			if !ok {
				return nil, errors.New("E101").WithDetailf("%s options must be an object", name)
			}
			var err error
			if opts, err = parseOptions(opts, m); err != nil {
				return nil, err
			}
		}
		r, err := d.Dispatch(ctx.Element, method, rawURL, opts)
		if err != nil {
			return nil, err
		}
		return r.ID, nil
	}
}

