package observer_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"autograde/internal/grading/observer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := observer.NewPrometheus(reg)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	ctx := context.Background()
	rec.ObserveRun(ctx, "flat", "ok", 120*time.Millisecond)
	rec.ObserveExecution(ctx, "python", "Accepted", 12)
	rec.ObserveExecution(ctx, "python", "", 0)
	rec.ObserveLanguageFallback(ctx, "python")
	rec.JobStarted(ctx)

	expected := `
# HELP autograde_executions_total Execution service calls by reported status.
# TYPE autograde_executions_total counter
autograde_executions_total{status="Accepted"} 1
autograde_executions_total{status="transport_error"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "autograde_executions_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	n, err := testutil.GatherAndCount(reg, "autograde_language_fallbacks_total")
	if err != nil || n != 1 {
		t.Fatalf("expected one fallback series, got %d (%v)", n, err)
	}

	if _, err := observer.NewPrometheus(reg); err == nil {
		t.Fatalf("double registration should fail")
	}
}
