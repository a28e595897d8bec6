// Package engine implements the decision assembler (C5) and warning
// suppression (C6): it drives the resource view (C1), the policy registry
// (C2), the policy evaluators (C3), and the patch composer (C4) into a
// single AdmissionResponse for either the validate or the mutate endpoint.
//
// Grounded on the teacher's top-level orchestration style in cmd/agent's
// collection loop (build a view, run independent units, aggregate results,
// never let one unit's failure abort the others) — generalized here from a
// periodic collection loop to a single synchronous per-request call.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aslitaser/k8s-sentinel/internal/errors"
	"github.com/aslitaser/k8s-sentinel/internal/observability"
	"github.com/aslitaser/k8s-sentinel/internal/patch"
	"github.com/aslitaser/k8s-sentinel/internal/policy"
	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// Mode selects which admission endpoint is being served.
type Mode string

const (
	ModeValidate Mode = "validate"
	ModeMutate   Mode = "mutate"
)

// Request is the engine's view of an AdmissionRequest, already decoded from
// the admission.k8s.io/v1 wire envelope by internal/webhook.
type Request struct {
	UID       string
	Kind      string
	Operation string
	Object    map[string]interface{}
}

// Response is the engine's view of an AdmissionResponse. internal/webhook
// serializes Patch to base64 JSON and sets the wire envelope fields.
type Response struct {
	UID       string
	Allowed   bool
	Message   string
	Warnings  []string
	Patch     []policy.Op
	PatchType string
}

// Engine evaluates admission requests against a fixed policy configuration.
// It is safe for concurrent use: PolicyConfig is immutable after
// construction and Evaluate holds no shared mutable state of its own
// (spec §5).
type Engine struct {
	config  *policy.Config
	metrics *observability.Metrics
	errs    *errors.Collector
	logger  *slog.Logger
}

// New constructs an Engine. config must already have had Compile called.
func New(config *policy.Config, metrics *observability.Metrics, errs *errors.Collector, logger *slog.Logger) *Engine {
	return &Engine{config: config, metrics: metrics, errs: errs, logger: logger}
}

type taggedViolation struct {
	policy.Violation
	Mode policy.Mode
}

// Evaluate answers one admission request for the given endpoint mode. It
// never panics: an outer recover catches any invariant break anywhere in
// the evaluation path (resource-view construction, patch composition,
// warning suppression — anything outside the per-policy recover in
// runEvaluator) and fails the request closed with a generic message,
// mirroring the original's outer catch_unwind around the whole evaluate
// call (spec §7: "the core never returns silently on an invariant break").
func (e *Engine) Evaluate(ctx context.Context, mode Mode, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine invariant break recovered", "uid", req.UID, "panic", r)
			e.errs.Report(errors.SentinelError{
				Code:      errors.ErrInternal,
				Message:   fmt.Sprintf("engine panicked: %v", r),
				Component: "engine",
				Timestamp: time.Now().UnixMilli(),
			})
			resp = Response{UID: req.UID, Allowed: false, Message: "internal error"}
		}
	}()
	return e.evaluate(ctx, mode, req)
}

// evaluate holds Evaluate's actual logic, isolated so the outer recover in
// Evaluate can wrap it without shadowing this function's named-vs-plain
// return style.
func (e *Engine) evaluate(ctx context.Context, mode Mode, req Request) Response {
	start := time.Now()
	resp := Response{UID: req.UID}

	switch req.Operation {
	case "DELETE", "CONNECT":
		resp.Allowed = true
		e.recordOutcome(mode, resp, start)
		return resp
	}

	view := resourceview.Build(req.Object)
	if view.Malformed {
		resp.Allowed = false
		resp.Message = fmt.Sprintf("malformed_object: %s", view.MalformedReason)
		e.recordOutcome(mode, resp, start)
		return resp
	}

	var violations []taggedViolation
	var fragments []patch.Fragment

	for _, name := range policy.Order {
		if !e.config.Enabled(name) {
			continue
		}
		select {
		case <-ctx.Done():
			resp.Allowed = false
			resp.Message = "evaluation deadline exceeded"
			e.errs.Report(errors.SentinelError{
				Code: errors.ErrDeadlineExceeded, Message: "evaluation deadline exceeded",
				Component: "engine", Timestamp: time.Now().UnixMilli(),
			})
			e.recordOutcome(mode, resp, start)
			return resp
		default:
		}

		evalStart := time.Now()
		result := e.runEvaluator(name, view)
		e.metrics.PolicyEvaluationDuration.WithLabelValues(string(name)).Observe(time.Since(evalStart).Seconds())
		policyMode := e.config.PolicyMode(name)
		for _, v := range result.Violations {
			vMode := policyMode
			if v.Policy == policy.NameInternal {
				vMode = policy.ModeWarn
			}
			violations = append(violations, taggedViolation{Violation: v, Mode: vMode})
		}
		outcome := "clean"
		if len(result.Violations) > 0 {
			outcome = "violation"
		}
		e.metrics.PolicyEvaluationsTotal.WithLabelValues(string(name), outcome).Inc()

		if mode == ModeMutate {
			fragments = append(fragments, patch.Fragment{Policy: name, Ops: result.Patches})
		}
	}

	var composed patch.Result
	if mode == ModeMutate {
		composed = patch.Compose(req.Object, fragments)
		for range composed.Conflicts {
			e.metrics.PatchConflictsTotal.Inc()
		}
		for _, c := range composed.Conflicts {
			e.logger.Warn("patch conflict resolved",
				"path", c.Path, "winning_policy", c.WinningPolicy, "dropped_policy", c.DroppedPolicy)
		}
		violations = suppressFixed(violations, composed.Ops, e.metrics)
	}

	var enforceMsgs, warnings []string
	for _, v := range violations {
		if v.Mode == policy.ModeEnforce {
			enforceMsgs = append(enforceMsgs, v.Message)
		} else {
			warnings = append(warnings, v.Message)
		}
	}

	if len(enforceMsgs) > 0 {
		resp.Allowed = false
		resp.Message = strings.Join(enforceMsgs, "; ")
		e.recordOutcome(mode, resp, start)
		return resp
	}

	resp.Allowed = true
	resp.Warnings = warnings
	if mode == ModeMutate && len(composed.Ops) > 0 {
		resp.Patch = composed.Ops
		resp.PatchType = "JSONPatch"
	}
	e.recordOutcome(mode, resp, start)
	return resp
}

// runEvaluator invokes the named policy's evaluator, recovering from any
// panic so a bug in one policy cannot take down the admission path for
// every object (spec §7). A recovered panic fails open: it is reported to
// the error collector and metrics, and surfaces as a single non-enforcing
// violation rather than a denial.
func (e *Engine) runEvaluator(name policy.Name, view resourceview.View) (result policy.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.PolicyInternalErrors.WithLabelValues(string(name)).Inc()
			e.errs.Report(errors.SentinelError{
				Code:      errors.ErrPolicyInternal,
				Message:   fmt.Sprintf("policy %s panicked: %v", name, r),
				Component: string(name),
				Timestamp: time.Now().UnixMilli(),
			})
			e.logger.Error("policy evaluator panicked", "policy", name, "panic", r)
			result = policy.Result{Violations: []policy.Violation{{
				Policy:  policy.NameInternal,
				Message: fmt.Sprintf("policy %s failed open after an internal error", name),
			}}}
		}
	}()

	switch name {
	case policy.NameResourceLimits:
		return policy.EvaluateResourceLimits(view, e.config.ResourceLimits)
	case policy.NameImageRegistry:
		return policy.EvaluateImageRegistry(view, e.config.ImageRegistry)
	case policy.NameLabels:
		return policy.EvaluateLabels(view, e.config.Labels)
	case policy.NameTopologySpread:
		return policy.EvaluateTopologySpread(view, e.config.TopologySpread)
	default:
		return policy.Result{}
	}
}

// suppressFixed implements C6: a fixable violation is dropped once the
// composed patch contains an op whose path matches (equals, or is nested
// under) the violation's expected fix path.
func suppressFixed(violations []taggedViolation, ops []policy.Op, metrics *observability.Metrics) []taggedViolation {
	kept := make([]taggedViolation, 0, len(violations))
	for _, v := range violations {
		if v.FixableByMutation && matchesAny(v.FixPathPrefix, ops) {
			metrics.WarningsSuppressed.WithLabelValues(string(v.Policy)).Inc()
			continue
		}
		kept = append(kept, v)
	}
	return kept
}

func matchesAny(prefix string, ops []policy.Op) bool {
	for _, op := range ops {
		if op.Path == prefix || strings.HasPrefix(op.Path, prefix+"/") {
			return true
		}
	}
	return false
}

func (e *Engine) recordOutcome(mode Mode, resp Response, start time.Time) {
	result := "allowed"
	if !resp.Allowed {
		result = "denied"
	}
	e.metrics.AdmissionResponsesTotal.WithLabelValues(result, string(mode)).Inc()
	e.metrics.AdmissionRequestDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
}
