// Package patch composes the per-policy JSON Patch fragments produced by
// internal/policy's evaluators into the single deterministic RFC 6902 patch
// sent back on a mutating admission response (spec §4.4, component C4).
//
// Grounded on the teacher's internal/convert package's general approach to
// building deterministic, side-effect-free transformations, generalized
// here to patch-fragment merging; the wire Operation type itself is
// gomodules.xyz/jsonpatch/v2, the same package sigs.k8s.io/controller-runtime
// uses for mutating webhook responses.
package patch

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aslitaser/k8s-sentinel/internal/policy"
	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// Fragment is one policy's generated patch ops, tagged with the policy that
// produced them so the composer can resolve conflicts deterministically in
// policy.Order.
type Fragment struct {
	Policy policy.Name
	Ops    []policy.Op
}

// Conflict records a dropped operation: two policies both targeted the same
// exact path. The earlier policy in the fixed enumeration order wins; this
// is never surfaced on the admission response, only logged (spec §6 Design
// Note "patch conflicts").
type Conflict struct {
	Path          string
	WinningPolicy policy.Name
	DroppedPolicy policy.Name
}

// Result is the composer's output.
type Result struct {
	Ops       []policy.Op
	Conflicts []Conflict
}

type indexedOp struct {
	op         policy.Op
	policyName policy.Name
	seq        int
}

// Compose merges patch fragments, already produced in policy.Order, into
// one ordered patch:
//
//  1. no-op elision: an "add" whose target already holds a deep-equal value
//     in original is dropped.
//  2. conflict resolution: two ops targeting the same exact non-append path
//     is a conflict; the earlier policy's op wins and the later one is
//     recorded in Result.Conflicts and dropped. Append ops ("/-") never
//     conflict with each other — each one adds a distinct array element.
//  3. deterministic ordering: ascending path depth (so parent-materializing
//     ops precede the children they create), then lexicographic path, then
//     original enumeration order for ties.
func Compose(original map[string]interface{}, fragments []Fragment) Result {
	var res Result

	byPath := map[string]int{}
	var kept []indexedOp
	seq := 0

	for _, frag := range fragments {
		for _, op := range frag.Ops {
			if isNoOp(original, op) {
				continue
			}
			if strings.HasSuffix(op.Path, "/-") {
				kept = append(kept, indexedOp{op: op, policyName: frag.Policy, seq: seq})
				seq++
				continue
			}
			if existingIdx, dup := byPath[op.Path]; dup {
				res.Conflicts = append(res.Conflicts, Conflict{
					Path:          op.Path,
					WinningPolicy: kept[existingIdx].policyName,
					DroppedPolicy: frag.Policy,
				})
				continue
			}
			byPath[op.Path] = len(kept)
			kept = append(kept, indexedOp{op: op, policyName: frag.Policy, seq: seq})
			seq++
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		di, dj := resourceview.PointerDepth(kept[i].op.Path), resourceview.PointerDepth(kept[j].op.Path)
		if di != dj {
			return di < dj
		}
		if kept[i].op.Path != kept[j].op.Path {
			return kept[i].op.Path < kept[j].op.Path
		}
		return kept[i].seq < kept[j].seq
	})

	res.Ops = make([]policy.Op, 0, len(kept))
	for _, k := range kept {
		res.Ops = append(res.Ops, k.op)
	}
	return res
}

// isNoOp reports whether op would leave original unchanged.
func isNoOp(original map[string]interface{}, op policy.Op) bool {
	if op.Operation != "add" || strings.HasSuffix(op.Path, "/-") {
		return false
	}
	existing, found := resolve(original, op.Path)
	if !found {
		return false
	}
	return reflect.DeepEqual(existing, op.Value)
}

// resolve walks original along pointer's tokens, returning the value found
// there and whether the full path resolved.
func resolve(original map[string]interface{}, pointer string) (interface{}, bool) {
	tokens := resourceview.SplitPointer(pointer)
	var cur interface{} = original
	for _, tok := range tokens {
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[tok]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
