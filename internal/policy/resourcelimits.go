package policy

import (
	"fmt"

	"github.com/aslitaser/k8s-sentinel/internal/quantity"
	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// resourceOrder fixes the {cpu, memory} iteration order used for
// generated patch ops, so identical inputs
// always produce byte-identical output (spec invariant I4, determinism).
var resourceOrder = []string{"cpu", "memory"}

// EvaluateResourceLimits implements the resource_limits policy (spec
// §4.3.1) against every regular and init container in the view.
func EvaluateResourceLimits(view resourceview.View, cfg ResourceLimitsConfig) Result {
	var result Result
	if !view.HasPodSpec {
		return result
	}

	for _, c := range view.Containers {
		checkCap(&result, cfg, c)
		checkRequireLimits(&result, cfg, c)
		if cfg.InjectDefaults {
			result.Patches = append(result.Patches, generateDefaultPatches(cfg, c)...)
		}
	}
	return result
}

func containerLabel(c resourceview.ContainerView) string {
	name := c.Name
	if name == "" {
		name = "<unnamed>"
	}
	if c.Category == resourceview.ContainerInit {
		return fmt.Sprintf("init container '%s'", name)
	}
	return fmt.Sprintf("container '%s'", name)
}

func checkCap(result *Result, cfg ResourceLimitsConfig, c resourceview.ContainerView) {
	if cfg.MaxCPUMillicores != nil {
		if cpu, ok := c.Resources.Limits["cpu"]; ok && quantity.CPUExceedsCap(cpu, *cfg.MaxCPUMillicores) {
			result.Violations = append(result.Violations, Violation{
				Policy:         NameResourceLimits,
				ContainerIndex: containerIndex(c.Index),
				Message: fmt.Sprintf("%s: %s cpu limit '%s' exceeds maximum allowed %dm",
					fieldPath(c.Pointer).String(), containerLabel(c), cpu, *cfg.MaxCPUMillicores),
				FixableByMutation: false,
			})
		}
	}
	if cfg.MaxMemoryBytes != nil {
		if mem, ok := c.Resources.Limits["memory"]; ok && quantity.MemoryExceedsCap(mem, *cfg.MaxMemoryBytes) {
			result.Violations = append(result.Violations, Violation{
				Policy:         NameResourceLimits,
				ContainerIndex: containerIndex(c.Index),
				Message: fmt.Sprintf("%s: %s memory limit '%s' exceeds maximum allowed %d bytes",
					fieldPath(c.Pointer).String(), containerLabel(c), mem, *cfg.MaxMemoryBytes),
				FixableByMutation: false,
			})
		}
	}
}

func checkRequireLimits(result *Result, cfg ResourceLimitsConfig, c resourceview.ContainerView) {
	if !cfg.RequireLimits {
		return
	}
	_, hasCPU := c.Resources.Limits["cpu"]
	_, hasMem := c.Resources.Limits["memory"]
	if hasCPU && hasMem {
		return
	}
	result.Violations = append(result.Violations, Violation{
		Policy:         NameResourceLimits,
		ContainerIndex: containerIndex(c.Index),
		Message: fmt.Sprintf("%s: %s is missing a required resource limit",
			fieldPath(c.Pointer).String(), containerLabel(c)),
		FixableByMutation: cfg.InjectDefaults,
		FixPathPrefix:     resourcesPointer(c),
	})
}

func resourcesPointer(c resourceview.ContainerView) string {
	return resourceview.JoinPointer(c.Pointer, "resources")
}

// generateDefaultPatches emits the add ops that inject missing
// requests/limits entries, materializing parent objects lazily and only
// when at least one field under them will actually be added (spec §4.3.1
// step 3, Design Note "Nested optional objects in patches").
func generateDefaultPatches(cfg ResourceLimitsConfig, c resourceview.ContainerView) []Op {
	var ops []Op

	requestOps, needsRequestsParent := sectionPatches(c, c.Resources.Requests, cfg.DefaultRequests, resourceview.JoinPointer(c.Pointer, "resources", "requests"))
	limitOps, needsLimitsParent := sectionPatches(c, c.Resources.Limits, cfg.DefaultLimits, resourceview.JoinPointer(c.Pointer, "resources", "limits"))

	if !c.HasResourcesSection && (needsRequestsParent || needsLimitsParent) {
		ops = append(ops, addOp(resourcesPointer(c), map[string]interface{}{}))
	}
	if needsRequestsParent {
		if !c.HasRequestsSection {
			ops = append(ops, addOp(resourceview.JoinPointer(c.Pointer, "resources", "requests"), map[string]interface{}{}))
		}
		ops = append(ops, requestOps...)
	}
	if needsLimitsParent {
		if !c.HasLimitsSection {
			ops = append(ops, addOp(resourceview.JoinPointer(c.Pointer, "resources", "limits"), map[string]interface{}{}))
		}
		ops = append(ops, limitOps...)
	}
	return ops
}

// sectionPatches returns the add ops for the missing fields of one section
// (requests or limits) and whether that section needs to exist at all.
func sectionPatches(c resourceview.ContainerView, existing map[string]string, defaults map[string]string, sectionPointer string) ([]Op, bool) {
	var ops []Op
	for _, name := range resourceOrder {
		if _, present := existing[name]; present {
			continue
		}
		def, configured := defaults[name]
		if !configured {
			continue
		}
		ops = append(ops, addOp(resourceview.JoinPointer(sectionPointer, name), def))
	}
	return ops, len(ops) > 0
}
