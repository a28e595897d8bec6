// Package quantity parses Kubernetes resource quantity strings into the
// canonical units the policy engine compares against: milli-cores for CPU,
// bytes for memory. It is a thin wrapper around
// k8s.io/apimachinery/pkg/api/resource — the same quantity grammar every
// workload's resources.requests/limits use — rather than a hand-rolled
// parser.
package quantity

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseCPUMillicores parses a CPU quantity string (e.g. "500m", "1", "0.5")
// and returns its value in milli-cores.
func ParseCPUMillicores(s string) (int64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("quantity: invalid cpu value %q: %w", s, err)
	}
	return q.MilliValue(), nil
}

// ParseMemoryBytes parses a memory quantity string (e.g. "128Mi", "1G") and
// returns its value in bytes.
func ParseMemoryBytes(s string) (uint64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("quantity: invalid memory value %q: %w", s, err)
	}
	v := q.Value()
	if v < 0 {
		return 0, fmt.Errorf("quantity: negative memory value %q", s)
	}
	return uint64(v), nil
}

// CPUExceedsCap reports whether a CPU quantity string exceeds maxMillicores.
// A parse failure is treated as non-exceeding — malformed quantities are the
// concern of schema validation upstream of this engine, not of the cap check.
func CPUExceedsCap(value string, maxMillicores int64) bool {
	m, err := ParseCPUMillicores(value)
	if err != nil {
		return false
	}
	return m > maxMillicores
}

// MemoryExceedsCap reports whether a memory quantity string exceeds maxBytes.
func MemoryExceedsCap(value string, maxBytes uint64) bool {
	b, err := ParseMemoryBytes(value)
	if err != nil {
		return false
	}
	return b > maxBytes
}
