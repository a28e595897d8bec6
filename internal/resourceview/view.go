// Package resourceview builds a read-only, workload-kind-independent
// projection over an admitted Kubernetes object: its containers, metadata,
// pod-spec JSON Pointer prefix, and existing topology spread constraints.
//
// Grounded on the teacher's internal/convert package (which does the same
// kind-by-kind structural projection for Pods/Deployments/StatefulSets/
// DaemonSets/Jobs/CronJobs/ReplicaSets, just for metrics instead of
// policy), generalized to the schema-less AdmissionReview payload via
// k8s.io/apimachinery/pkg/apis/meta/v1/unstructured instead of typed
// corev1/appsv1 structs — the object here may be any workload kind, so we
// cannot decode into one concrete Go type up front (see Design Note
// "Dynamic typing of admitted objects" in SPEC_FULL.md).
package resourceview

import (
	"strconv"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Kind enumerates the workload kinds the engine knows how to project a pod
// template out of. Anything else is KindOther: containers are empty and no
// patch path is available.
type Kind string

const (
	KindPod         Kind = "Pod"
	KindDeployment  Kind = "Deployment"
	KindStatefulSet Kind = "StatefulSet"
	KindDaemonSet   Kind = "DaemonSet"
	KindJob         Kind = "Job"
	KindCronJob     Kind = "CronJob"
	KindReplicaSet  Kind = "ReplicaSet"
	KindOther       Kind = "Other"
)

// ContainerCategory distinguishes init containers from regular containers;
// ephemeral containers are never included (spec §4.1).
type ContainerCategory string

const (
	ContainerRegular ContainerCategory = "regular"
	ContainerInit    ContainerCategory = "init"
)

// ContainerResources mirrors a container's resources.requests/limits, kept
// as raw quantity strings — parsing into canonical units happens lazily in
// the evaluators that need it (internal/quantity).
type ContainerResources struct {
	Requests map[string]string
	Limits   map[string]string
}

// ContainerView is one container (regular or init) within the pod template.
type ContainerView struct {
	Index     int
	Category  ContainerCategory
	Name      string
	Image     string
	Resources ContainerResources
	// Pointer is the JSON Pointer to this container object within the
	// admitted document, e.g. "/spec/template/spec/containers/0".
	Pointer string

	// HasResourcesSection/HasRequestsSection/HasLimitsSection record
	// whether the corresponding object existed in the admitted document,
	// distinct from whether it was non-empty. Evaluators that inject
	// missing defaults use these to decide whether a parent-creating
	// patch op is needed (Design Note: "materialize parents lazily").
	HasResourcesSection bool
	HasRequestsSection  bool
	HasLimitsSection    bool
}

// View is the per-request projection over the admitted object.
type View struct {
	Kind Kind
	Name string
	// GenerateName is metadata.generateName, consulted as a display-name
	// fallback when Name is empty (e.g. a Create request for an object
	// using generateName instead of a fixed name).
	GenerateName string
	Namespace    string
	Labels       map[string]string
	Annotations  map[string]string
	Containers   []ContainerView

	// HasPodSpec is true iff the object carries a pod template the engine
	// knows how to locate (spec invariant: present iff Containers is
	// non-empty or the kind is known to carry a pod template).
	HasPodSpec bool
	// PodSpecPointer is the JSON Pointer prefix to the pod template spec,
	// valid only when HasPodSpec is true.
	PodSpecPointer string

	TopologyConstraints []map[string]interface{}
	// HasTopologyConstraintsArray is true iff topologySpreadConstraints
	// exists on the pod spec (even if empty), distinguishing "absent" from
	// "empty array" for patch generation.
	HasTopologyConstraintsArray bool

	// Malformed is set when a structural field (containers/initContainers)
	// exists but is not the array shape the schema requires. Evaluators
	// must be skipped when this is set (spec §4.1).
	Malformed       bool
	MalformedReason string
}

// DisplayName returns the object's name for violation messages, falling
// back to generateName (suffixed to signal it is a prefix, not the final
// name) and finally to "<unknown>" when neither is set.
func (v View) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	if v.GenerateName != "" {
		return v.GenerateName + "<generated>"
	}
	return "<unknown>"
}

// podSpecSegments returns the field path, from the object root, to the pod
// template spec for a given kind. Returns nil for kinds with no pod
// template.
func podSpecSegments(kind Kind) []string {
	switch kind {
	case KindPod:
		return []string{"spec"}
	case KindDeployment, KindStatefulSet, KindDaemonSet, KindReplicaSet, KindJob:
		return []string{"spec", "template", "spec"}
	case KindCronJob:
		return []string{"spec", "jobTemplate", "spec", "template", "spec"}
	default:
		return nil
	}
}

func normalizeKind(raw string) Kind {
	switch Kind(raw) {
	case KindPod, KindDeployment, KindStatefulSet, KindDaemonSet, KindJob, KindCronJob, KindReplicaSet:
		return Kind(raw)
	default:
		return KindOther
	}
}

// Build projects a View out of an admitted object (already decoded from
// JSON into a map[string]interface{}, as admission.k8s.io/v1 carries it).
func Build(obj map[string]interface{}) View {
	kindStr, _, _ := unstructured.NestedString(obj, "kind")
	name, _, _ := unstructured.NestedString(obj, "metadata", "name")
	generateName, _, _ := unstructured.NestedString(obj, "metadata", "generateName")
	namespace, _, _ := unstructured.NestedString(obj, "metadata", "namespace")
	labels, _, _ := unstructured.NestedStringMap(obj, "metadata", "labels")
	annotations, _, _ := unstructured.NestedStringMap(obj, "metadata", "annotations")

	view := View{
		Kind:         normalizeKind(kindStr),
		Name:         name,
		GenerateName: generateName,
		Namespace:    namespace,
		Labels:       labels,
		Annotations:  annotations,
	}

	segments := podSpecSegments(view.Kind)
	if segments == nil {
		return view
	}

	podSpec, found, err := unstructured.NestedMap(obj, segments...)
	if err != nil {
		view.Malformed = true
		view.MalformedReason = "pod template spec is not an object"
		return view
	}
	if !found {
		return view
	}

	view.HasPodSpec = true
	view.PodSpecPointer = "/" + joinSlashes(segments)

	regular, regularMalformed := extractContainers(podSpec, "containers")
	init, initMalformed := extractContainers(podSpec, "initContainers")
	if regularMalformed || initMalformed {
		view.Malformed = true
		view.MalformedReason = "containers field is not an array"
		return view
	}

	containers := make([]ContainerView, 0, len(regular)+len(init))
	containers = appendContainerViews(containers, init, ContainerInit, view.PodSpecPointer+"/initContainers")
	containers = appendContainerViews(containers, regular, ContainerRegular, view.PodSpecPointer+"/containers")
	view.Containers = containers

	if tcsRaw, ok := podSpec["topologySpreadConstraints"]; ok {
		view.HasTopologyConstraintsArray = true
		if tcs, ok := tcsRaw.([]interface{}); ok {
			for _, item := range tcs {
				if m, ok := item.(map[string]interface{}); ok {
					view.TopologyConstraints = append(view.TopologyConstraints, m)
				}
			}
		}
	}

	return view
}

// extractContainers reads a container list field off the pod spec. It
// returns malformed=true only when the field is present but not an array —
// a missing field is simply zero containers.
func extractContainers(podSpec map[string]interface{}, field string) ([]map[string]interface{}, bool) {
	raw, ok := podSpec[field]
	if !ok || raw == nil {
		return nil, false
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, true
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, true
		}
		out = append(out, m)
	}
	return out, false
}

func appendContainerViews(dst []ContainerView, containers []map[string]interface{}, category ContainerCategory, arrayPointer string) []ContainerView {
	for i, c := range containers {
		name, _, _ := unstructured.NestedString(c, "name")
		image, _, _ := unstructured.NestedString(c, "image")
		requests, _, _ := unstructured.NestedStringMap(c, "resources", "requests")
		limits, _, _ := unstructured.NestedStringMap(c, "resources", "limits")

		_, hasResources := c["resources"]
		var hasRequests, hasLimits bool
		if resourcesRaw, ok := c["resources"].(map[string]interface{}); ok {
			_, hasRequests = resourcesRaw["requests"]
			_, hasLimits = resourcesRaw["limits"]
		}

		dst = append(dst, ContainerView{
			Index:    i,
			Category: category,
			Name:     name,
			Image:    image,
			Resources: ContainerResources{
				Requests: requests,
				Limits:   limits,
			},
			Pointer:             JoinPointer(arrayPointer, strconv.Itoa(i)),
			HasResourcesSection: hasResources,
			HasRequestsSection:  hasRequests,
			HasLimitsSection:    hasLimits,
		})
	}
	return dst
}

func joinSlashes(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}
