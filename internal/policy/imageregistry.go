package policy

import (
	"fmt"
	"strings"

	"github.com/aslitaser/k8s-sentinel/internal/resourceview"
)

// EvaluateImageRegistry implements the image_registry policy (spec §4.3.2).
// Never fixable by mutation — an image reference rewrite is not something
// this engine will guess at.
func EvaluateImageRegistry(view resourceview.View, cfg ImageRegistryConfig) Result {
	var result Result
	if !view.HasPodSpec {
		return result
	}

	for _, c := range view.Containers {
		fp := fieldPath(c.Pointer).String()

		if c.Image == "" {
			result.Violations = append(result.Violations, Violation{
				Policy:         NameImageRegistry,
				ContainerIndex: containerIndex(c.Index),
				Message:        fmt.Sprintf("%s: %s has no image specified", fp, containerLabel(c)),
			})
			continue
		}

		ref := parseImageRef(c.Image)

		if !registryAllowed(ref.registry, cfg.AllowedRegistries) {
			result.Violations = append(result.Violations, Violation{
				Policy:         NameImageRegistry,
				ContainerIndex: containerIndex(c.Index),
				Message: fmt.Sprintf("%s: %s image '%s' uses registry '%s' which is not in the allowed list [%s]",
					fp, containerLabel(c), c.Image, ref.registry, strings.Join(cfg.AllowedRegistries, ", ")),
			})
		}

		if cfg.BlockLatest {
			isLatest := ref.tag == "latest" || (ref.tag == "" && !ref.hasDigest)
			if isLatest {
				tagDisplay := ref.tag
				if tagDisplay == "" {
					tagDisplay = "<none> (defaults to latest)"
				}
				result.Violations = append(result.Violations, Violation{
					Policy:         NameImageRegistry,
					ContainerIndex: containerIndex(c.Index),
					Message:        fmt.Sprintf("%s: %s image '%s' uses tag '%s'", fp, containerLabel(c), c.Image, tagDisplay),
				})
			}
		}
	}
	return result
}

type imageRef struct {
	registry  string
	tag       string
	hasDigest bool
}

// parseImageRef splits an image reference into its resolved registry,
// tag, and digest presence. Grounded on original_source's image_registry.rs
// (spec §4.3.2 gives only the two implicit-registry special cases; the
// general split algorithm — explicit-registry detection via '.', ':', or
// "localhost" on the first path segment — is carried from the original).
func parseImageRef(image string) imageRef {
	hasDigest := strings.Contains(image, "@")

	noDigest := image
	if pos := strings.Index(image, "@"); pos >= 0 {
		noDigest = image[:pos]
	}

	var namePart, tag string
	if lastSlash := strings.LastIndex(noDigest, "/"); lastSlash >= 0 {
		if colonOffset := strings.Index(noDigest[lastSlash:], ":"); colonOffset >= 0 {
			colonPos := lastSlash + colonOffset
			namePart, tag = noDigest[:colonPos], noDigest[colonPos+1:]
		} else {
			namePart, tag = noDigest, ""
		}
	} else if colonPos := strings.Index(noDigest, ":"); colonPos >= 0 {
		namePart, tag = noDigest[:colonPos], noDigest[colonPos+1:]
	} else {
		namePart, tag = noDigest, ""
	}

	return imageRef{registry: extractRegistry(namePart), tag: tag, hasDigest: hasDigest}
}

func extractRegistry(namePart string) string {
	slashPos := strings.Index(namePart, "/")
	if slashPos < 0 {
		return "docker.io/library"
	}
	first := namePart[:slashPos]
	hasExplicitRegistry := strings.Contains(first, ".") || strings.Contains(first, ":") || first == "localhost"
	if hasExplicitRegistry {
		if last := strings.LastIndex(namePart, "/"); last >= 0 {
			return namePart[:last]
		}
		return namePart
	}
	return "docker.io/" + first
}

// registryAllowed reports whether registry matches any of the allowed
// prefixes. A prefix matches on exact equality or on a '/'-bounded prefix,
// so "gcr.io" matches "gcr.io/project" but not "gcr.io.evil.com".
func registryAllowed(registry string, allowed []string) bool {
	for _, prefix := range allowed {
		prefix = strings.TrimSuffix(prefix, "/")
		if registryMatches(registry, prefix) {
			return true
		}
	}
	return false
}

func registryMatches(registry, allowed string) bool {
	if registry == allowed {
		return true
	}
	if strings.HasPrefix(registry, allowed) {
		rest := registry[len(allowed):]
		return strings.HasPrefix(rest, "/")
	}
	return false
}
