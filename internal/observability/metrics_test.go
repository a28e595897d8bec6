package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics_NoRegistrationPanic(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.Registry == nil {
		t.Fatal("Registry is nil")
	}
}

func TestNewMetrics_CustomRegistry(t *testing.T) {
	m := NewMetrics()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	defaultFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("DefaultGatherer.Gather failed: %v", err)
	}

	customNames := make(map[string]bool)
	for _, f := range families {
		customNames[f.GetName()] = true
	}
	for _, f := range defaultFamilies {
		if customNames[f.GetName()] {
			t.Errorf("metric %q found in default registry — should only be in custom registry", f.GetName())
		}
	}
}

func TestNewMetrics_AllNamesHavePrefix(t *testing.T) {
	m := NewMetrics()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families gathered")
	}
	for _, f := range families {
		name := f.GetName()
		if len(name) < len("sentinel_") || name[:9] != "sentinel_" {
			t.Errorf("metric %q does not start with sentinel_ prefix", name)
		}
	}
}

func TestNewMetrics_CounterIncrement(t *testing.T) {
	m := NewMetrics()

	m.PatchConflictsTotal.Inc()
	pb := &dto.Metric{}
	if err := m.PatchConflictsTotal.Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("PatchConflictsTotal = %v, want 1", got)
	}

	m.AdmissionResponsesTotal.WithLabelValues("allowed", "enforce").Inc()
	m.AdmissionResponsesTotal.WithLabelValues("allowed", "enforce").Inc()
	m.AdmissionResponsesTotal.WithLabelValues("denied", "enforce").Inc()

	pb = &dto.Metric{}
	if err := m.AdmissionResponsesTotal.WithLabelValues("allowed", "enforce").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 2 {
		t.Errorf("AdmissionResponsesTotal(allowed,enforce) = %v, want 2", got)
	}
}

func TestNewMetrics_HistogramObserve(t *testing.T) {
	m := NewMetrics()

	m.AdmissionRequestDuration.WithLabelValues("enforce").Observe(0.01)
	m.AdmissionRequestDuration.WithLabelValues("enforce").Observe(0.02)

	pb := &dto.Metric{}
	if err := m.AdmissionRequestDuration.WithLabelValues("enforce").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("AdmissionRequestDuration sample count = %v, want 2", got)
	}

	m.PolicyEvaluationDuration.WithLabelValues("resource_limits").Observe(0.001)
	pb = &dto.Metric{}
	if err := m.PolicyEvaluationDuration.WithLabelValues("resource_limits").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("PolicyEvaluationDuration(resource_limits) sample count = %v, want 1", got)
	}
}

func TestNewMetrics_GaugeSet(t *testing.T) {
	m := NewMetrics()

	m.PoliciesEnabled.WithLabelValues("resource_limits", "enforce").Set(1)
	pb := &dto.Metric{}
	if err := m.PoliciesEnabled.WithLabelValues("resource_limits", "enforce").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetGauge().GetValue(); got != 1 {
		t.Errorf("PoliciesEnabled(resource_limits,enforce) = %v, want 1", got)
	}
}

func TestNewMetrics_VecLabels(t *testing.T) {
	m := NewMetrics()

	m.AdmissionRequestsTotal.WithLabelValues("CREATE", "Pod").Inc()
	m.AdmissionRequestsTotal.WithLabelValues("UPDATE", "Deployment").Inc()

	pb := &dto.Metric{}
	if err := m.AdmissionRequestsTotal.WithLabelValues("CREATE", "Pod").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("AdmissionRequestsTotal(CREATE,Pod) = %v, want 1", got)
	}

	m.PolicyEvaluationsTotal.WithLabelValues("labels", "violation").Inc()
	pb = &dto.Metric{}
	if err := m.PolicyEvaluationsTotal.WithLabelValues("labels", "violation").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("PolicyEvaluationsTotal(labels,violation) = %v, want 1", got)
	}

	m.PolicyInternalErrors.WithLabelValues("topology_spread").Inc()
	pb = &dto.Metric{}
	if err := m.PolicyInternalErrors.WithLabelValues("topology_spread").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("PolicyInternalErrors(topology_spread) = %v, want 1", got)
	}

	m.WarningsSuppressed.WithLabelValues("resource_limits").Inc()
	pb = &dto.Metric{}
	if err := m.WarningsSuppressed.WithLabelValues("resource_limits").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("WarningsSuppressed(resource_limits) = %v, want 1", got)
	}
}

func TestNewMetrics_NoDuplicateRegistrationPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("creating Metrics twice panicked: %v", r)
		}
	}()

	_ = NewMetrics()
	_ = NewMetrics()
}

func TestNewMetrics_AllFieldsNonNil(t *testing.T) {
	m := NewMetrics()

	if m.AdmissionRequestsTotal == nil {
		t.Error("AdmissionRequestsTotal is nil")
	}
	if m.AdmissionResponsesTotal == nil {
		t.Error("AdmissionResponsesTotal is nil")
	}
	if m.AdmissionRequestDuration == nil {
		t.Error("AdmissionRequestDuration is nil")
	}
	if m.PolicyEvaluationsTotal == nil {
		t.Error("PolicyEvaluationsTotal is nil")
	}
	if m.PolicyEvaluationDuration == nil {
		t.Error("PolicyEvaluationDuration is nil")
	}
	if m.PolicyInternalErrors == nil {
		t.Error("PolicyInternalErrors is nil")
	}
	if m.PatchConflictsTotal == nil {
		t.Error("PatchConflictsTotal is nil")
	}
	if m.WarningsSuppressed == nil {
		t.Error("WarningsSuppressed is nil")
	}
	if m.PoliciesEnabled == nil {
		t.Error("PoliciesEnabled is nil")
	}
}
