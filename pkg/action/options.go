package action

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/expr"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// ContentType selects the request encoding.
type ContentType string

const (
	ContentJSON ContentType = "json"
	ContentForm ContentType = "form"
)

// Cancellation selects what happens to earlier requests from the same
// element.
type Cancellation string

const (
	// CancelAuto aborts the element's previous in-flight request.
	CancelAuto Cancellation = "auto"
	// CancelDisabled lets requests run side by side.
	CancelDisabled Cancellation = "disabled"
)

// RetryPolicy controls retries after transport failures. The wait before
// retry n (1-based) is Interval * Scaler^(n-1), capped at MaxWait.
type RetryPolicy struct {
	Interval time.Duration
	Scaler   float64
	MaxWait  time.Duration
	MaxCount int
}

// DefaultRetry is used when an action does not set its own policy.
var DefaultRetry = RetryPolicy{
	Interval: time.Second,
	Scaler:   2,
	MaxWait:  30 * time.Second,
	MaxCount: 10,
}

// Delay returns the wait before retry n.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	scaler := p.Scaler
	if scaler < 1 {
		scaler = 1
	}
	f := float64(p.Interval) * math.Pow(scaler, float64(n-1))
	if p.MaxWait > 0 && f > float64(p.MaxWait) {
		return p.MaxWait
	}
	if f > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

// Options are the per-action settings.
type Options struct {
	Headers     map[string]string
	ContentType ContentType

	// Selector targets HTML responses and scopes id matching of element
	// patches in streamed responses.
	Selector string

	FilterSignals       signal.Filter
	RequestCancellation Cancellation
	Retry               RetryPolicy
}

// DefaultOptions returns the options used when an action passes none.
func DefaultOptions() Options {
	return Options{
		ContentType:         ContentJSON,
		RequestCancellation: CancelAuto,
		Retry:               DefaultRetry,
	}
}

// ParseOptions reads the options object of an action call.
func ParseOptions(m map[string]any) (Options, error) {
	return parseOptions(DefaultOptions(), m)
}

func parseOptions(o Options, m map[string]any) (Options, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		switch k {
		case "headers":
			h, ok := v.(map[string]any)
			if !ok {
				return o, invalid(k, "an object")
			}
			o.Headers = make(map[string]string, len(h))
			for name, val := range h {
				o.Headers[name] = expr.ToString(val)
			}
		case "contentType":
			switch ContentType(strings.ToLower(expr.ToString(v))) {
			case ContentJSON:
				o.ContentType = ContentJSON
			case ContentForm:
				o.ContentType = ContentForm
			default:
				return o, invalid(k, `"json" or "form"`)
			}
		case "selector":
			o.Selector = expr.ToString(v)
		case "filterSignals":
			f, err := expr.FilterArg([]any{v})
			if err != nil {
				return o, err
			}
			o.FilterSignals = f
		case "requestCancellation":
			switch Cancellation(expr.ToString(v)) {
			case CancelAuto:
				o.RequestCancellation = CancelAuto
			case CancelDisabled:
				o.RequestCancellation = CancelDisabled
			default:
				return o, invalid(k, `"auto" or "disabled"`)
			}
		case "retryInterval":
			o.Retry.Interval = millis(v)
		case "retryScaler":
			o.Retry.Scaler = expr.ToNumber(v)
		case "retryMaxWait":
			o.Retry.MaxWait = millis(v)
		case "retryMaxCount":
			o.Retry.MaxCount = int(expr.ToNumber(v))
		default:
			return o, errors.New("E101").WithDetailf("unknown action option %q", k)
		}
	}
	return o, nil
}

func millis(v any) time.Duration {
	return time.Duration(expr.ToNumber(v) * float64(time.Millisecond))
}

func invalid(key, want string) error {
	return errors.New("E101").WithDetailf("action option %s must be %s", key, want)
}
