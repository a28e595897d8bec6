// Package webhook translates the admission.k8s.io/v1 wire protocol to and
// from the engine's internal request/response types and serves the
// /validate and /mutate HTTPS endpoints. Grounded on the teacher's
// internal/health/server.go for HTTP server construction/shutdown style and
// internal/transport/middleware.go for the decode/encode conventions.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	"k8s.io/apimachinery/pkg/types"

	"github.com/aslitaser/k8s-sentinel/internal/engine"
	"github.com/aslitaser/k8s-sentinel/internal/errors"
	"github.com/aslitaser/k8s-sentinel/internal/observability"
	"github.com/aslitaser/k8s-sentinel/internal/policy"
)

const maxRequestBytes = 8 << 20 // 8 MiB, well above the largest realistic pod manifest.

var (
	scheme = runtime.NewScheme()
	codecs = serializer.NewCodecFactory(scheme)
)

func init() {
	_ = admissionv1.AddToScheme(scheme)
}

// Evaluator is the subset of *engine.Engine the handler needs, letting
// tests substitute a stub without constructing a full policy.Config.
type Evaluator interface {
	Evaluate(ctx context.Context, mode engine.Mode, req engine.Request) engine.Response
}

// Handler serves the two admission endpoints backed by a shared engine.
type Handler struct {
	engine  Evaluator
	metrics *observability.Metrics
	errs    *errors.Collector
	logger  *slog.Logger
	timeout time.Duration
}

// New constructs a Handler. timeout bounds how long one admission request
// may take before the engine aborts remaining evaluators and denies the
// request (spec §7's deadline behavior).
func New(eng Evaluator, metrics *observability.Metrics, errs *errors.Collector, logger *slog.Logger, timeout time.Duration) *Handler {
	return &Handler{engine: eng, metrics: metrics, errs: errs, logger: logger, timeout: timeout}
}

// Mux builds the HTTP handler serving /validate and /mutate.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/validate", h.serve(engine.ModeValidate))
	mux.HandleFunc("/mutate", h.serve(engine.ModeMutate))
	return mux
}

func (h *Handler) serve(mode engine.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeRequest(r)
		if err != nil {
			h.logger.Error("failed to decode admission review", "mode", mode, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		kind := req.Kind.Kind
		h.metrics.AdmissionRequestsTotal.WithLabelValues(string(req.Operation), kind).Inc()

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		obj, err := unmarshalObject(req.Object.Raw)
		if err != nil {
			h.errs.Report(errors.SentinelError{
				Code:      errors.ErrMalformedObject,
				Message:   fmt.Sprintf("failed to unmarshal admitted object: %v", err),
				Component: "webhook",
				Timestamp: time.Now().UnixMilli(),
			})
			writeReview(w, buildResponse(string(req.UID), false, "malformed_object: "+err.Error(), nil, nil))
			return
		}

		resp := h.engine.Evaluate(ctx, mode, engine.Request{
			UID:       string(req.UID),
			Kind:      kind,
			Operation: string(req.Operation),
			Object:    obj,
		})

		writeReview(w, buildResponse(resp.UID, resp.Allowed, resp.Message, resp.Warnings, resp.Patch))
	}
}

// decodeRequest reads and validates the AdmissionReview envelope, returning
// its embedded AdmissionRequest.
func decodeRequest(r *http.Request) (*admissionv1.AdmissionRequest, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("webhook: empty request body")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("webhook: read body: %w", err)
	}
	if len(body) > maxRequestBytes {
		return nil, fmt.Errorf("webhook: request body exceeds %d bytes", maxRequestBytes)
	}

	review := &admissionv1.AdmissionReview{}
	if _, _, err := codecs.UniversalDeserializer().Decode(body, nil, review); err != nil {
		return nil, fmt.Errorf("webhook: decode admission review: %w", err)
	}
	if review.Request == nil {
		return nil, fmt.Errorf("webhook: admission review has no request")
	}
	return review.Request, nil
}

func unmarshalObject(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// buildResponse assembles the wire AdmissionResponse, base64-encoding the
// composed patch and setting PatchType only when a patch is present
// (spec §3's AdmissionResponse contract).
func buildResponse(uid string, allowed bool, message string, warnings []string, patch []policy.Op) *admissionv1.AdmissionResponse {
	ar := &admissionv1.AdmissionResponse{
		UID:      types.UID(uid),
		Allowed:  allowed,
		Warnings: warnings,
	}
	if message != "" {
		ar.Result = &metav1.Status{Message: message}
	}
	if len(patch) > 0 {
		if encoded, err := json.Marshal(patch); err == nil {
			ar.Patch = encoded
			pt := admissionv1.PatchTypeJSONPatch
			ar.PatchType = &pt
		}
	}
	return ar
}

func writeReview(w http.ResponseWriter, ar *admissionv1.AdmissionResponse) {
	review := admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admission.k8s.io/v1",
			Kind:       "AdmissionReview",
		},
		Response: ar,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(review)
}
