package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("registering twice should fail")
	}

	m.ChunksWritten.WithLabelValues("snapshots").Inc()
	m.Recordings.WithLabelValues(RESULT_DISCARDED).Inc()

	if got := testutil.ToFloat64(m.ChunksWritten.WithLabelValues("snapshots")); got != 1 {
		t.Errorf("Expected 1 chunk, got %v", got)
	}
	if n := testutil.CollectAndCount(m.Recordings); n != 1 {
		t.Errorf("Expected 1 series, got %d", n)
	}
}
