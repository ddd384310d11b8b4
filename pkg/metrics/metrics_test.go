package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SignalWrite()
	m.SignalPatch()
	m.CascadeRejected()
	m.ExpressionError("runtime")
	m.BindingAttached("text")
	m.MorphPatch("outer")
	m.StreamFrame("patchwire-patch-signals")
	m.ActionStarted()
	m.ActionSettled("GET", "ok", time.Second)
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))

	m.SignalWrite()
	m.SignalWrite()
	m.BindingAttached("text")
	m.BindingAttached("text")
	m.BindingDetached("text")
	m.MorphPatch("inner")
	m.ActionStarted()
	m.ActionSettled("POST", "error", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.signalWrites); got != 2 {
		t.Errorf("signal writes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bindingsActive.WithLabelValues("text")); got != 1 {
		t.Errorf("active text bindings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.morphPatches.WithLabelValues("inner")); got != 1 {
		t.Errorf("inner patches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.actionsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.actionsTotal.WithLabelValues("POST", "error")); got != 1 {
		t.Errorf("POST errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.actionDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}
