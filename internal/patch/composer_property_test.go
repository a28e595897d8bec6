package patch

import (
	"encoding/json"
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/aslitaser/k8s-sentinel/internal/policy"
)

// TestComposeProducesApplicablePatch verifies testable property P3 (spec
// §8): the composed patch, applied back onto the original document with a
// standard RFC 6902 library, always succeeds. Grounded on SPEC_FULL.md §B's
// evanphx/json-patch/v5 wiring — test-only, never used by the composer
// itself (which has its own conflict-resolution semantics evanphx doesn't
// know about).
func TestComposeProducesApplicablePatch(t *testing.T) {
	original := map[string]interface{}{
		"spec": map[string]interface{}{
			"containers": []interface{}{
				map[string]interface{}{
					"name":  "app",
					"image": "nginx:1.25",
				},
			},
		},
	}

	fragments := []Fragment{
		{Policy: policy.NameResourceLimits, Ops: []policy.Op{
			{Operation: "add", Path: "/spec/containers/0/resources", Value: map[string]interface{}{}},
			{Operation: "add", Path: "/spec/containers/0/resources/requests", Value: map[string]interface{}{}},
			{Operation: "add", Path: "/spec/containers/0/resources/requests/cpu", Value: "100m"},
			{Operation: "add", Path: "/spec/containers/0/resources/limits", Value: map[string]interface{}{}},
			{Operation: "add", Path: "/spec/containers/0/resources/limits/memory", Value: "256Mi"},
		}},
		{Policy: policy.NameTopologySpread, Ops: []policy.Op{
			{Operation: "add", Path: "/spec/topologySpreadConstraints", Value: []interface{}{}},
			{Operation: "add", Path: "/spec/topologySpreadConstraints/-", Value: map[string]interface{}{
				"maxSkew": 1, "topologyKey": "zone", "whenUnsatisfiable": "DoNotSchedule",
			}},
		}},
	}

	result := Compose(original, fragments)
	if len(result.Ops) == 0 {
		t.Fatal("expected a non-empty composed patch")
	}

	docBytes, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal original: %v", err)
	}
	patchBytes, err := json.Marshal(result.Ops)
	if err != nil {
		t.Fatalf("marshal composed ops: %v", err)
	}

	decoded, err := jsonpatch.DecodePatch(patchBytes)
	if err != nil {
		t.Fatalf("decode composed patch: %v", err)
	}
	applied, err := decoded.Apply(docBytes)
	if err != nil {
		t.Fatalf("apply composed patch: %v", err)
	}

	var result2 map[string]interface{}
	if err := json.Unmarshal(applied, &result2); err != nil {
		t.Fatalf("unmarshal applied document: %v", err)
	}

	spec, ok := result2["spec"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected spec object in applied document, got %+v", result2)
	}
	if _, ok := spec["topologySpreadConstraints"]; !ok {
		t.Error("expected topologySpreadConstraints to be present after applying patch")
	}
	containers, ok := spec["containers"].([]interface{})
	if !ok || len(containers) != 1 {
		t.Fatalf("expected one container to survive, got %+v", spec["containers"])
	}
	container := containers[0].(map[string]interface{})
	resources, ok := container["resources"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected resources object injected, got %+v", container)
	}
	if requests, ok := resources["requests"].(map[string]interface{}); !ok || requests["cpu"] != "100m" {
		t.Errorf("expected injected cpu request, got %+v", resources)
	}
}
