package policy

import (
	"fmt"

	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// EvaluateLabels implements the labels policy (spec §4.3.3). Evaluated
// once per object, not per container, and never fixable — this engine
// does not guess at label values.
func EvaluateLabels(view resourceview.View, cfg LabelsConfig) Result {
	var result Result

	resourceName := view.DisplayName()

	for _, required := range cfg.Required {
		value, ok := view.Labels[required.Key]
		switch {
		case !ok:
			result.Violations = append(result.Violations, Violation{
				Policy: NameLabels,
				Message: fmt.Sprintf("missing required label '%s' on %s '%s'",
					required.Key, view.Kind, resourceName),
			})
		case !required.matches(value):
			result.Violations = append(result.Violations, Violation{
				Policy: NameLabels,
				Message: fmt.Sprintf("label '%s' on %s '%s' has value '%s' which does not match required pattern '%s'",
					required.Key, view.Kind, resourceName, value, required.Pattern),
			})
		}
	}
	return result
}
