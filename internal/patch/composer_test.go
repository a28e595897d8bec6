package patch

import (
	"testing"

	"github.com/aslitaser/k8s-sentinel/internal/policy"
)

func addOp(path string, value interface{}) policy.Op {
	return policy.Op{Operation: "add", Path: path, Value: value}
}

func TestComposeOrdersByDepthThenPath(t *testing.T) {
	original := map[string]interface{}{}
	fragments := []Fragment{
		{Policy: policy.NameResourceLimits, Ops: []policy.Op{
			addOp("/spec/containers/0/resources/requests/cpu", "100m"),
			addOp("/spec/containers/0/resources", map[string]interface{}{}),
			addOp("/spec/containers/0/resources/requests", map[string]interface{}{}),
		}},
	}
	result := Compose(original, fragments)
	if len(result.Ops) != 3 {
		t.Fatalf("expected 3 ops, got %+v", result.Ops)
	}
	want := []string{
		"/spec/containers/0/resources",
		"/spec/containers/0/resources/requests",
		"/spec/containers/0/resources/requests/cpu",
	}
	for i, w := range want {
		if result.Ops[i].Path != w {
			t.Errorf("op[%d].Path = %q, want %q", i, result.Ops[i].Path, w)
		}
	}
}

func TestComposeElidesNoOp(t *testing.T) {
	original := map[string]interface{}{
		"spec": map[string]interface{}{
			"replicas": float64(3),
		},
	}
	fragments := []Fragment{
		{Policy: policy.NameResourceLimits, Ops: []policy.Op{
			addOp("/spec/replicas", float64(3)),
		}},
	}
	result := Compose(original, fragments)
	if len(result.Ops) != 0 {
		t.Fatalf("expected the identical add to be elided, got %+v", result.Ops)
	}
}

func TestComposeKeepsChangedValue(t *testing.T) {
	original := map[string]interface{}{
		"spec": map[string]interface{}{
			"replicas": float64(3),
		},
	}
	fragments := []Fragment{
		{Policy: policy.NameResourceLimits, Ops: []policy.Op{
			addOp("/spec/replicas", float64(5)),
		}},
	}
	result := Compose(original, fragments)
	if len(result.Ops) != 1 {
		t.Fatalf("expected the changed add to survive, got %+v", result.Ops)
	}
}

func TestComposeConflictEarlierPolicyWins(t *testing.T) {
	original := map[string]interface{}{}
	fragments := []Fragment{
		{Policy: policy.NameResourceLimits, Ops: []policy.Op{
			addOp("/spec/containers/0/resources/limits/cpu", "100m"),
		}},
		{Policy: policy.NameImageRegistry, Ops: []policy.Op{
			addOp("/spec/containers/0/resources/limits/cpu", "200m"),
		}},
	}
	result := Compose(original, fragments)
	if len(result.Ops) != 1 {
		t.Fatalf("expected exactly one surviving op, got %+v", result.Ops)
	}
	if result.Ops[0].Value != "100m" {
		t.Errorf("expected the earlier policy's value to win, got %v", result.Ops[0].Value)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 recorded conflict, got %+v", result.Conflicts)
	}
	if result.Conflicts[0].WinningPolicy != policy.NameResourceLimits || result.Conflicts[0].DroppedPolicy != policy.NameImageRegistry {
		t.Errorf("unexpected conflict record: %+v", result.Conflicts[0])
	}
}

func TestComposeAppendOpsNeverConflict(t *testing.T) {
	original := map[string]interface{}{}
	fragments := []Fragment{
		{Policy: policy.NameTopologySpread, Ops: []policy.Op{
			addOp("/spec/template/spec/topologySpreadConstraints", []interface{}{}),
			addOp("/spec/template/spec/topologySpreadConstraints/-", map[string]interface{}{"topologyKey": "zone"}),
			addOp("/spec/template/spec/topologySpreadConstraints/-", map[string]interface{}{"topologyKey": "hostname"}),
		}},
	}
	result := Compose(original, fragments)
	if len(result.Conflicts) != 0 {
		t.Fatalf("expected no conflicts among distinct appends, got %+v", result.Conflicts)
	}
	appendCount := 0
	for _, op := range result.Ops {
		if op.Path == "/spec/template/spec/topologySpreadConstraints/-" {
			appendCount++
		}
	}
	if appendCount != 2 {
		t.Fatalf("expected both append ops to survive, got %d", appendCount)
	}
}

func TestComposeStableOrderAcrossEqualDepth(t *testing.T) {
	original := map[string]interface{}{}
	fragments := []Fragment{
		{Policy: policy.NameResourceLimits, Ops: []policy.Op{
			addOp("/spec/containers/0/resources/limits/memory", "256Mi"),
			addOp("/spec/containers/0/resources/limits/cpu", "100m"),
		}},
	}
	result := Compose(original, fragments)
	if len(result.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %+v", result.Ops)
	}
	// Same depth, differing paths: lexicographic ("cpu" < "memory").
	if result.Ops[0].Path != "/spec/containers/0/resources/limits/cpu" {
		t.Errorf("expected cpu before memory lexicographically, got %+v", result.Ops)
	}
}
