package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersNoopBeforeRegister(t *testing.T) {
	// Must not panic or record anything before Register.
	IncStart("x")
	IncRestart("x")
	IncStop("x")
	IncMemoryExceeded("x")
	SetMemoryRSS("x", 1024)
	RecordStateTransition("x", "running", "crashed")
	SetCurrentState("x", "running", true)
	IncCheckResult("x", "OK")
	ObserveDiagnosticsRun(0.1)
}

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Second call is a no-op.
	if err := Register(reg); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	IncStart("w1")
	IncStart("w1")
	IncMemoryExceeded("w1")
	IncCheckResult("api", "MISSING")

	if got := testutil.ToFloat64(processStarts.WithLabelValues("w1")); got != 2 {
		t.Fatalf("starts: got %v want 2", got)
	}
	if got := testutil.ToFloat64(memoryExceeded.WithLabelValues("w1")); got != 1 {
		t.Fatalf("memory exceeded: got %v want 1", got)
	}
	if got := testutil.ToFloat64(checkResults.WithLabelValues("api", "MISSING")); got != 1 {
		t.Fatalf("check results: got %v want 1", got)
	}
}
