// Package policy holds the typed catalog of the four admission policies
// (resource_limits, image_registry, labels, topology_spread), their
// configuration, and the pure evaluator functions each one runs against a
// resourceview.View. Evaluators never touch the network, the clock, or any
// shared state — given the same (View, Config) pair they always return the
// same Result (spec §4.3, §5).
package policy

import (
	"strconv"

	"gomodules.xyz/jsonpatch/v2"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// Mode is whether a policy's violations deny the request or merely warn.
type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeWarn    Mode = "warn"
)

// Name identifies one of the four policies. The zero value is invalid.
type Name string

const (
	NameResourceLimits  Name = "resource_limits"
	NameImageRegistry   Name = "image_registry"
	NameLabels          Name = "labels"
	NameTopologySpread  Name = "topology_spread"
	NameMalformedObject Name = "malformed_object"
	NameInternal        Name = "internal"
)

// Order is the fixed policy enumeration order (spec §4.2): it determines
// the order of violations in a response message and the order in which
// per-policy patch fragments are concatenated before the composer sorts
// them.
var Order = []Name{NameResourceLimits, NameImageRegistry, NameLabels, NameTopologySpread}

// Op is a single RFC 6902 patch operation, using the gomodules.xyz/jsonpatch
// wire type shared with sigs.k8s.io/controller-runtime's mutating webhooks.
type Op = jsonpatch.Operation

// Violation is one policy finding against the admitted object.
type Violation struct {
	Policy Name
	// ContainerIndex is nil for object-level violations (labels,
	// missing topology constraints) and set for per-container ones.
	ContainerIndex    *int
	Message           string
	FixableByMutation bool
	// FixPathPrefix is the JSON Pointer prefix a mutation patch op must
	// target to resolve this violation. Empty when not fixable. Warning
	// suppression (C6) matches patch op paths against this prefix.
	FixPathPrefix string
}

// Result is what one evaluator produces for one policy.
type Result struct {
	Violations []Violation
	Patches    []Op
}

func addOp(path string, value interface{}) Op {
	return Op{Operation: "add", Path: path, Value: value}
}

func containerIndex(i int) *int {
	v := i
	return &v
}

// fieldPath converts a container's JSON Pointer into a dotted/bracket
// field.Path, giving violation messages the same addressing style
// k8s.io/apimachinery uses for API validation errors instead of ad hoc
// string formatting.
func fieldPath(pointer string) *field.Path {
	tokens := resourceview.SplitPointer(pointer)
	if len(tokens) == 0 {
		return field.NewPath("")
	}
	fp := field.NewPath(tokens[0])
	for _, t := range tokens[1:] {
		if idx, err := strconv.Atoi(t); err == nil {
			fp = fp.Index(idx)
		} else {
			fp = fp.Child(t)
		}
	}
	return fp
}
