package action

import (
	"net/http"
	"net/url"
	"sort"

	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
)

// payload encodes the request data. GET requests get it in the query of u.
func (d *Dispatcher) payload(el *html.Node, method string, u *url.URL, opts Options) ([]byte, string, error) {
	if opts.ContentType == ContentForm {
		vals := d.formValues(el, opts)
		if method == http.MethodGet {
			q := u.Query()
			for k, vs := range vals {
				for _, v := range vs {
					q.Add(k, v)
				}
			}
			u.RawQuery = q.Encode()
			return nil, "", nil
		}
		return []byte(vals.Encode()), "application/x-www-form-urlencoded", nil
	}

	data, err := d.store.Serialize(opts.FilterSignals)
	if err != nil {
		return nil, "", errors.New("E101").WithDetail("signals are not serializable").Wrap(err)
	}
	if method == http.MethodGet {
		q := u.Query()
		q.Set(QueryParam, string(data))
		u.RawQuery = q.Encode()
		return nil, "", nil
	}
	return data, "application/json", nil
}

// formValues reads the closest form of el, or flattens the public signals
// kept by the filter when there is none.
func (d *Dispatcher) formValues(el *html.Node, opts Options) url.Values {
	if el != nil {
		if form := dom.Closest(el, "form"); form != nil {
			return d.doc.FormValues(form)
		}
	}
	vals := url.Values{}
	flatten("", d.store.Snapshot(), opts, vals)
	return vals
}

func flatten(prefix string, v any, opts Options, vals url.Values) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			flatten(path, x[k], opts, vals)
		}
	case []any:
		for _, item := range x {
			if prefix != "" && opts.FilterSignals.Match(prefix) {
				vals.Add(prefix, expr.ToString(item))
			}
		}
	case nil:
		if prefix != "" && opts.FilterSignals.Match(prefix) {
			vals.Add(prefix, "")
		}
	default:
		if prefix != "" && opts.FilterSignals.Match(prefix) {
			vals.Add(prefix, expr.ToString(x))
		}
	}
}
