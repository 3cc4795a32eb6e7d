package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/model"
)

func TestPromSink_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	ev := coremetrics.RunEvent{
		RunID:      "run-1",
		TenantID:   "acme",
		Trigger:    model.TriggerBatch,
		Status:     model.RunCompleted,
		Assigned:   10,
		Unassigned: 2,
		Confidence: 0.9,
		Elapsed:    250 * time.Millisecond,
		Time:       time.Now(),
	}
	if err := sink.RecordRun(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP fieldops_runs_total Total number of optimization runs
# TYPE fieldops_runs_total counter
fieldops_runs_total{status="completed",tenant="acme",trigger="batch"} 1
`
	if err := testutil.CollectAndCompare(sink.runs, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if c := testutil.CollectAndCount(sink.duration); c == 0 {
		t.Errorf("duration not recorded")
	}

	expectedGauges := `
# HELP fieldops_plan_confidence Confidence score of the latest completed plan
# TYPE fieldops_plan_confidence gauge
fieldops_plan_confidence{tenant="acme"} 0.9
`
	if err := testutil.CollectAndCompare(sink.confidence, strings.NewReader(expectedGauges)); err != nil {
		t.Errorf("unexpected confidence metric: %v", err)
	}
}

// Failed runs are counted but must not move the plan gauges.
func TestPromSink_FailedRunLeavesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)

	ok := coremetrics.RunEvent{TenantID: "acme", Trigger: model.TriggerBatch, Status: model.RunCompleted, Confidence: 0.8}
	if err := sink.RecordRun(ok); err != nil {
		t.Fatalf("record completed: %v", err)
	}
	failed := coremetrics.RunEvent{TenantID: "acme", Trigger: model.TriggerDisruption, Status: model.RunFailed}
	if err := sink.RecordRun(failed); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	expected := `
# HELP fieldops_plan_confidence Confidence score of the latest completed plan
# TYPE fieldops_plan_confidence gauge
fieldops_plan_confidence{tenant="acme"} 0.8
`
	if err := testutil.CollectAndCompare(sink.confidence, strings.NewReader(expected)); err != nil {
		t.Errorf("confidence moved by failed run: %v", err)
	}
}

func TestPromSink_RecordAdaptationAndNotices(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)

	if err := sink.RecordAdaptation(coremetrics.AdaptationEvent{
		TenantID: "acme",
		Type:     model.DisruptionTrafficDelay,
		State:    model.DisruptionApplied,
	}); err != nil {
		t.Fatalf("record adaptation: %v", err)
	}
	if err := sink.RecordNotice(coremetrics.NoticeEvent{TenantID: "acme", Delivered: true}); err != nil {
		t.Fatalf("record notice: %v", err)
	}
	if err := sink.RecordNotice(coremetrics.NoticeEvent{TenantID: "acme", Delivered: false}); err != nil {
		t.Fatalf("record notice: %v", err)
	}
	if err := sink.RecordLocationUpdate(coremetrics.LocationEvent{TenantID: "acme", TechnicianID: "tech-1"}); err != nil {
		t.Fatalf("record location: %v", err)
	}

	expected := `
# HELP fieldops_adaptations_total Total number of processed disruption events
# TYPE fieldops_adaptations_total counter
fieldops_adaptations_total{state="applied",tenant="acme",type="traffic_delay"} 1
`
	if err := testutil.CollectAndCompare(sink.adaptations, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected adaptation metric: %v", err)
	}
	if c := testutil.CollectAndCount(sink.notices); c != 2 {
		t.Errorf("expected 2 notice series, got %d", c)
	}
	if c := testutil.CollectAndCount(sink.locations); c != 1 {
		t.Errorf("expected 1 location series, got %d", c)
	}
}

// Creating a second sink on the same registry reuses the collectors
// instead of failing with AlreadyRegisteredError.
func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create first sink: %v", err)
	}
	second, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create second sink: %v", err)
	}

	ev := coremetrics.RunEvent{TenantID: "acme", Trigger: model.TriggerBatch, Status: model.RunCompleted}
	if err := first.RecordRun(ev); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := second.RecordRun(ev); err != nil {
		t.Fatalf("second record: %v", err)
	}

	sink := second.(*PromSink)
	expected := `
# HELP fieldops_runs_total Total number of optimization runs
# TYPE fieldops_runs_total counter
fieldops_runs_total{status="completed",tenant="acme",trigger="batch"} 2
`
	if err := testutil.CollectAndCompare(sink.runs, strings.NewReader(expected)); err != nil {
		t.Errorf("collectors not shared: %v", err)
	}
}
