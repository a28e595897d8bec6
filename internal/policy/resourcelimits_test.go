package policy

import (
	"testing"

	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

func podView(containers ...map[string]interface{}) resourceview.View {
	var items []interface{}
	for _, c := range containers {
		items = append(items, c)
	}
	obj := map[string]interface{}{
		"kind": "Pod",
		"metadata": map[string]interface{}{
			"name": "p1",
		},
		"spec": map[string]interface{}{
			"containers": items,
		},
	}
	return resourceview.Build(obj)
}

func container(name, image string, requests, limits map[string]interface{}) map[string]interface{} {
	c := map[string]interface{}{"name": name, "image": image}
	res := map[string]interface{}{}
	if requests != nil {
		res["requests"] = requests
	}
	if limits != nil {
		res["limits"] = limits
	}
	if len(res) > 0 {
		c["resources"] = res
	}
	return c
}

func TestResourceLimitsInjectDefaults(t *testing.T) {
	view := podView(container("web", "nginx:1.25", nil, nil))
	maxCPU := int64(0)
	_ = maxCPU
	cfg := ResourceLimitsConfig{
		Enabled:        true,
		Mode:           ModeEnforce,
		InjectDefaults: true,
		RequireLimits:  true,
		DefaultRequests: map[string]string{
			"cpu": "100m", "memory": "128Mi",
		},
		DefaultLimits: map[string]string{
			"cpu": "100m", "memory": "128Mi",
		},
	}

	result := EvaluateResourceLimits(view, cfg)
	if len(result.Violations) != 1 || result.Violations[0].Policy != NameResourceLimits {
		t.Fatalf("expected 1 missing_limit violation, got %+v", result.Violations)
	}
	if !result.Violations[0].FixableByMutation {
		t.Error("expected missing_limit to be fixable since inject_defaults is set")
	}

	paths := map[string]bool{}
	for _, op := range result.Patches {
		paths[op.Path] = true
	}
	for _, want := range []string{
		"/spec/containers/0/resources",
		"/spec/containers/0/resources/requests",
		"/spec/containers/0/resources/requests/cpu",
		"/spec/containers/0/resources/requests/memory",
		"/spec/containers/0/resources/limits",
		"/spec/containers/0/resources/limits/cpu",
		"/spec/containers/0/resources/limits/memory",
	} {
		if !paths[want] {
			t.Errorf("expected patch at %s, got patches: %+v", want, result.Patches)
		}
	}
}

func TestResourceLimitsNoInjectionWhenSectionsExist(t *testing.T) {
	view := podView(container("web", "nginx",
		map[string]interface{}{"cpu": "100m", "memory": "128Mi"},
		map[string]interface{}{"cpu": "200m", "memory": "256Mi"}))
	cfg := ResourceLimitsConfig{
		Enabled: true, Mode: ModeEnforce, InjectDefaults: true, RequireLimits: true,
		DefaultRequests: map[string]string{"cpu": "100m", "memory": "128Mi"},
		DefaultLimits:   map[string]string{"cpu": "100m", "memory": "128Mi"},
	}
	result := EvaluateResourceLimits(view, cfg)
	if len(result.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", result.Violations)
	}
	if len(result.Patches) != 0 {
		t.Fatalf("expected no patches when all fields present, got %+v", result.Patches)
	}
}

func TestResourceLimitsExceedsCap(t *testing.T) {
	view := podView(container("web", "nginx", nil,
		map[string]interface{}{"cpu": "2", "memory": "4Gi"}))
	maxCPU := int64(1000)
	maxMem := uint64(1 << 30)
	cfg := ResourceLimitsConfig{
		Enabled: true, Mode: ModeEnforce,
		MaxCPUMillicores: &maxCPU,
		MaxMemoryBytes:   &maxMem,
	}
	result := EvaluateResourceLimits(view, cfg)
	if len(result.Violations) != 2 {
		t.Fatalf("expected 2 exceeds_cap violations, got %+v", result.Violations)
	}
	for _, v := range result.Violations {
		if v.FixableByMutation {
			t.Error("exceeds_cap violations must never be fixable")
		}
	}
}

func TestResourceLimitsPartialDefaultSideIsNoOp(t *testing.T) {
	// Only memory defaults configured; cpu side has no configured default.
	view := podView(container("web", "nginx", nil, nil))
	cfg := ResourceLimitsConfig{
		Enabled: true, Mode: ModeEnforce, InjectDefaults: true,
		DefaultRequests: map[string]string{"memory": "128Mi"},
		DefaultLimits:   map[string]string{"memory": "256Mi"},
	}
	result := EvaluateResourceLimits(view, cfg)
	for _, op := range result.Patches {
		if op.Path == "/spec/containers/0/resources/requests/cpu" || op.Path == "/spec/containers/0/resources/limits/cpu" {
			t.Errorf("did not expect a cpu patch when no cpu default is configured, got %+v", op)
		}
	}
}
