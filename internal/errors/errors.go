// Package errors defines the typed error taxonomy the webhook uses for its
// own failure modes, plus a small collector for surfacing recent internal
// errors on the debug endpoint. Adapted from the teacher's AgentError /
// ErrorCollector pattern (spec §7's "the webhook must never crash the
// process" carries the same shape: a typed code, a component, and a
// dedup-by-code-and-component TTL store).
package errors

import (
	"sync"
	"time"
)

// Code represents a typed error code understood by callers of this
// package (log fields, metrics labels, the /debug/errors endpoint).
type Code string

const (
	// ErrMalformedObject means the admitted object could not be decoded
	// as a JSON object; the request is denied without running any
	// policy evaluator (spec §4.1).
	ErrMalformedObject Code = "MALFORMED_OBJECT"
	// ErrDeadlineExceeded means the configured evaluation deadline
	// elapsed before every enabled policy finished (spec §7).
	ErrDeadlineExceeded Code = "DEADLINE_EXCEEDED"
	// ErrPolicyInternal means a policy evaluator panicked; the panic
	// was recovered and the request fails open for that policy only
	// (spec §7's fail-open rule).
	ErrPolicyInternal Code = "POLICY_INTERNAL_ERROR"
	// ErrPatchConflict means two policies proposed conflicting ops at
	// the same JSON Pointer; the earlier policy's op won and this is
	// logged, never surfaced on the admission response.
	ErrPatchConflict Code = "PATCH_CONFLICT"
	// ErrInternal covers anything else unexpected in the request path.
	ErrInternal Code = "INTERNAL_ERROR"
)

const defaultTTL = 5 * time.Minute

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// SentinelError is a typed webhook error with a code, an owning component
// (usually a policy.Name, or "engine"/"webhook"), and an optional wrapped
// cause.
type SentinelError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Timestamp int64  `json:"timestamp"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *SentinelError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *SentinelError) Unwrap() error {
	return e.Err
}

type entry struct {
	err        SentinelError
	lastReport time.Time
}

// Collector is a thread-safe, TTL-expiring store for recently observed
// webhook errors, keyed by Code+Component. It never blocks the request
// path — Report is a best-effort side channel for /debug/errors and logs,
// not part of the admission decision.
type Collector struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]entry
}

// NewCollector creates a Collector with the given clock.
func NewCollector(clock Clock) *Collector {
	return &Collector{
		clock:   clock,
		entries: make(map[string]entry),
	}
}

func key(code Code, component string) string {
	return string(code) + "|" + component
}

// Report stores or refreshes an error.
func (c *Collector) Report(err SentinelError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(err.Code, err.Component)] = entry{
		err:        err,
		lastReport: c.clock.Now(),
	}
}

// Active returns all errors reported within the TTL window, pruning
// anything stale along the way.
func (c *Collector) Active() []SentinelError {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	result := make([]SentinelError, 0, len(c.entries))
	for k, e := range c.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(c.entries, k)
			continue
		}
		result = append(result, e.err)
	}
	return result
}

// Clear removes all tracked errors.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}
