package policy

import (
	"fmt"
	"regexp"
)

// RequiredLabel is one entry of the labels policy's `required` list.
type RequiredLabel struct {
	Key     string
	Pattern string

	compiled *regexp.Regexp
}

// compile precompiles the label's pattern, if any. Regex compilation
// happens once at configuration load time (spec §5's "Shared resources"
// rule), never per request.
func (r *RequiredLabel) compile() error {
	if r.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(`^(?:` + r.Pattern + `)$`)
	if err != nil {
		return fmt.Errorf("policy: invalid pattern for required label %q: %w", r.Key, err)
	}
	r.compiled = re
	return nil
}

// matches reports whether value fully matches the compiled pattern. Go's
// regexp does partial matching by default, so the pattern is anchored on
// both ends to get "fully match" semantics (spec §4.3.3).
func (r *RequiredLabel) matches(value string) bool {
	if r.compiled == nil {
		return true
	}
	loc := r.compiled.FindStringIndex(value)
	return loc != nil && loc[0] == 0 && loc[1] == len(value)
}

// ResourceLimitsConfig configures the resource_limits policy (spec §4.3.1).
type ResourceLimitsConfig struct {
	Enabled bool
	Mode    Mode

	MaxCPUMillicores *int64
	MaxMemoryBytes   *uint64

	InjectDefaults bool
	RequireLimits  bool

	// DefaultRequests/DefaultLimits map resource name ("cpu", "memory")
	// to the default quantity string injected when inject_defaults is
	// set and the container omits that entry. A resource name absent
	// from the map means "no default configured" — that side is left
	// alone (spec §9 Open Question).
	DefaultRequests map[string]string
	DefaultLimits   map[string]string
}

// ImageRegistryConfig configures the image_registry policy (spec §4.3.2).
type ImageRegistryConfig struct {
	Enabled bool
	Mode    Mode

	AllowedRegistries []string
	BlockLatest       bool
}

// LabelsConfig configures the labels policy (spec §4.3.3).
type LabelsConfig struct {
	Enabled bool
	Mode    Mode

	Required []RequiredLabel
}

// TopologySpreadConfig configures the topology_spread policy (spec §4.3.4).
type TopologySpreadConfig struct {
	Enabled bool
	Mode    Mode

	RequiredTopologyKeys []string
	MaxSkew              int
	WhenUnsatisfiable    string
	InjectIfMissing      bool
}

// Config is the full policy registry (C2): the four PolicyConfig values in
// their fixed enumeration order.
type Config struct {
	ResourceLimits ResourceLimitsConfig
	ImageRegistry  ImageRegistryConfig
	Labels         LabelsConfig
	TopologySpread TopologySpreadConfig
}

// Compile precompiles every regex-bearing field in the config. Call once
// after loading, before serving any request.
func (c *Config) Compile() error {
	for i := range c.Labels.Required {
		if err := c.Labels.Required[i].compile(); err != nil {
			return err
		}
	}
	return nil
}

// Enabled reports whether the named policy is enabled.
func (c *Config) Enabled(name Name) bool {
	switch name {
	case NameResourceLimits:
		return c.ResourceLimits.Enabled
	case NameImageRegistry:
		return c.ImageRegistry.Enabled
	case NameLabels:
		return c.Labels.Enabled
	case NameTopologySpread:
		return c.TopologySpread.Enabled
	default:
		return false
	}
}

// PolicyMode returns the configured mode for the named policy.
func (c *Config) PolicyMode(name Name) Mode {
	switch name {
	case NameResourceLimits:
		return c.ResourceLimits.Mode
	case NameImageRegistry:
		return c.ImageRegistry.Mode
	case NameLabels:
		return c.Labels.Mode
	case NameTopologySpread:
		return c.TopologySpread.Mode
	default:
		return ModeEnforce
	}
}
