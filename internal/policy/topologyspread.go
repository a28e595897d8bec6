package policy

import (
	"fmt"

	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// EvaluateTopologySpread implements the topology_spread policy (spec
// §4.3.4): every required topology key must appear in an existing
// topologySpreadConstraints entry, or (when inject_if_missing is set) get
// one injected.
func EvaluateTopologySpread(view resourceview.View, cfg TopologySpreadConfig) Result {
	var result Result
	if !view.HasPodSpec {
		return result
	}

	present := make(map[string]bool, len(view.TopologyConstraints))
	for _, tc := range view.TopologyConstraints {
		if key, ok := tc["topologyKey"].(string); ok {
			present[key] = true
		}
	}

	arrayPointer := resourceview.JoinPointer(view.PodSpecPointer, "topologySpreadConstraints")
	arrayCreated := false

	for _, key := range cfg.RequiredTopologyKeys {
		if present[key] {
			continue
		}
		result.Violations = append(result.Violations, Violation{
			Policy:            NameTopologySpread,
			Message:           fmt.Sprintf("%s '%s' has no topologySpreadConstraints entry for required key '%s'", view.Kind, view.DisplayName(), key),
			FixableByMutation: cfg.InjectIfMissing,
			FixPathPrefix:     arrayPointer,
		})

		if !cfg.InjectIfMissing {
			continue
		}
		if !view.HasTopologyConstraintsArray && !arrayCreated {
			result.Patches = append(result.Patches, addOp(arrayPointer, []interface{}{}))
			arrayCreated = true
		}
		result.Patches = append(result.Patches, addOp(arrayPointer+"/-", buildConstraint(cfg, key, view)))
	}
	return result
}

func buildConstraint(cfg TopologySpreadConfig, topologyKey string, view resourceview.View) map[string]interface{} {
	matchLabels := map[string]interface{}{}
	for k, v := range view.Labels {
		matchLabels[k] = v
	}
	return map[string]interface{}{
		"maxSkew":           cfg.MaxSkew,
		"topologyKey":       topologyKey,
		"whenUnsatisfiable": cfg.WhenUnsatisfiable,
		"labelSelector": map[string]interface{}{
			"matchLabels": matchLabels,
		},
	}
}
