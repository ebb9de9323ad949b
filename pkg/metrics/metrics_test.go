package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveOpIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg, func() float64 { return 0 }, func() float64 { return 0 }, func() float64 { return 0 })

	c.ObserveOp("get", nil)
	c.ObserveOp("get", nil)
	c.ObserveOp("set", errTest)

	if got := counterValue(t, c.OpsTotal.WithLabelValues("get")); got != 2 {
		t.Fatalf("expected 2 get ops, got %v", got)
	}
	if got := counterValue(t, c.OpErrorsTotal.WithLabelValues("set")); got != 1 {
		t.Fatalf("expected 1 set error, got %v", got)
	}
}

func TestObserveCompactionOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg, func() float64 { return 0 }, func() float64 { return 0 }, func() float64 { return 0 })

	c.ObserveCompaction(false, 0, nil)
	c.ObserveCompaction(true, 0.5, nil)
	c.ObserveCompaction(true, 0, errTest)

	if got := counterValue(t, c.CompactionsTotal.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
	if got := counterValue(t, c.CompactionsTotal.WithLabelValues("ran")); got != 1 {
		t.Fatalf("expected 1 ran, got %v", got)
	}
	if got := counterValue(t, c.CompactionsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed, got %v", got)
	}
}

func TestGaugeFuncsReflectCallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	keys := 7.0
	c := NewCollectors(reg, func() float64 { return keys }, func() float64 { return 4096 }, func() float64 { return 3 })

	m := &dto.Metric{}
	if err := c.KeyCount.Write(m); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if m.GetGauge().GetValue() != 7 {
		t.Fatalf("expected key count 7, got %v", m.GetGauge().GetValue())
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return m.GetCounter().GetValue()
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
