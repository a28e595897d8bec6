// Package config loads the webhook's YAML configuration file, with
// SENTINEL_-prefixed environment variable overrides, into a typed
// SentinelConfig. Grounded on lenaxia-LLMSafeSpace's api/internal/config
// package (viper + YAML + env-prefix override), adapted to reject unknown
// fields at load time (spec §6) via mapstructure's ErrorUnused decoder option,
// which that teacher config does not need but the admission engine's
// closed policy-block schema does.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/aslitaser/k8s-sentinel/internal/policy"
)

// RequiredLabelConfig is the on-disk shape of one labels.required entry.
type RequiredLabelConfig struct {
	Key     string `mapstructure:"key"`
	Pattern string `mapstructure:"pattern"`
}

// ResourceLimitsPolicyConfig is the on-disk shape of the resource_limits
// policy block (spec §4.3.1).
type ResourceLimitsPolicyConfig struct {
	Enabled          bool              `mapstructure:"enabled"`
	Mode             string            `mapstructure:"mode"`
	MaxCPUMillicores *int64            `mapstructure:"max_cpu_millicores"`
	MaxMemoryBytes   *uint64           `mapstructure:"max_memory_bytes"`
	InjectDefaults   bool              `mapstructure:"inject_defaults"`
	RequireLimits    bool              `mapstructure:"require_limits"`
	DefaultRequests  map[string]string `mapstructure:"default_requests"`
	DefaultLimits    map[string]string `mapstructure:"default_limits"`
}

// ImageRegistryPolicyConfig is the on-disk shape of the image_registry
// policy block (spec §4.3.2).
type ImageRegistryPolicyConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Mode              string   `mapstructure:"mode"`
	AllowedRegistries []string `mapstructure:"allowed_registries"`
	BlockLatest       bool     `mapstructure:"block_latest"`
}

// LabelsPolicyConfig is the on-disk shape of the labels policy block
// (spec §4.3.3).
type LabelsPolicyConfig struct {
	Enabled  bool                  `mapstructure:"enabled"`
	Mode     string                `mapstructure:"mode"`
	Required []RequiredLabelConfig `mapstructure:"required"`
}

// TopologySpreadPolicyConfig is the on-disk shape of the topology_spread
// policy block (spec §4.3.4).
type TopologySpreadPolicyConfig struct {
	Enabled              bool     `mapstructure:"enabled"`
	Mode                 string   `mapstructure:"mode"`
	RequiredTopologyKeys []string `mapstructure:"required_topology_keys"`
	MaxSkew              int      `mapstructure:"max_skew"`
	WhenUnsatisfiable    string   `mapstructure:"when_unsatisfiable"`
	InjectIfMissing      bool     `mapstructure:"inject_if_missing"`
}

// PoliciesConfig groups the four policy blocks (spec §3 PolicyConfig).
type PoliciesConfig struct {
	ResourceLimits ResourceLimitsPolicyConfig `mapstructure:"resource_limits"`
	ImageRegistry  ImageRegistryPolicyConfig  `mapstructure:"image_registry"`
	Labels         LabelsPolicyConfig         `mapstructure:"labels"`
	TopologySpread TopologySpreadPolicyConfig `mapstructure:"topology_spread"`
}

// SentinelConfig is the full on-disk/env configuration for the webhook
// process: the ambient serving concerns (spec §1's out-of-scope listeners,
// still carried here) plus the policy registry.
type SentinelConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	TLSCertPath string `mapstructure:"tls_cert_path"`
	TLSKeyPath  string `mapstructure:"tls_key_path"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`

	Policies PoliciesConfig `mapstructure:"policies"`
}

// Load reads path (YAML) and overlays SENTINEL_-prefixed environment
// variables on top of it, rejecting any field present in the file that
// SentinelConfig does not declare.
func Load(path string) (*SentinelConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("sentinel")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg SentinelConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

// ToPolicyConfig converts the on-disk shape into the typed policy.Config
// the engine consumes, resolving policy-mode strings into policy.Mode and
// compiling every regex-bearing field. Call once at startup.
func (c *SentinelConfig) ToPolicyConfig() (*policy.Config, error) {
	pc := &policy.Config{
		ResourceLimits: policy.ResourceLimitsConfig{
			Enabled:          c.Policies.ResourceLimits.Enabled,
			Mode:             resolveMode(c.Policies.ResourceLimits.Mode),
			MaxCPUMillicores: c.Policies.ResourceLimits.MaxCPUMillicores,
			MaxMemoryBytes:   c.Policies.ResourceLimits.MaxMemoryBytes,
			InjectDefaults:   c.Policies.ResourceLimits.InjectDefaults,
			RequireLimits:    c.Policies.ResourceLimits.RequireLimits,
			DefaultRequests:  c.Policies.ResourceLimits.DefaultRequests,
			DefaultLimits:    c.Policies.ResourceLimits.DefaultLimits,
		},
		ImageRegistry: policy.ImageRegistryConfig{
			Enabled:           c.Policies.ImageRegistry.Enabled,
			Mode:              resolveMode(c.Policies.ImageRegistry.Mode),
			AllowedRegistries: c.Policies.ImageRegistry.AllowedRegistries,
			BlockLatest:       c.Policies.ImageRegistry.BlockLatest,
		},
		Labels: policy.LabelsConfig{
			Enabled: c.Policies.Labels.Enabled,
			Mode:    resolveMode(c.Policies.Labels.Mode),
		},
		TopologySpread: policy.TopologySpreadConfig{
			Enabled:              c.Policies.TopologySpread.Enabled,
			Mode:                 resolveMode(c.Policies.TopologySpread.Mode),
			RequiredTopologyKeys: c.Policies.TopologySpread.RequiredTopologyKeys,
			MaxSkew:              c.Policies.TopologySpread.MaxSkew,
			WhenUnsatisfiable:    c.Policies.TopologySpread.WhenUnsatisfiable,
			InjectIfMissing:      c.Policies.TopologySpread.InjectIfMissing,
		},
	}
	for _, rl := range c.Policies.Labels.Required {
		pc.Labels.Required = append(pc.Labels.Required, policy.RequiredLabel{Key: rl.Key, Pattern: rl.Pattern})
	}

	if err := pc.Compile(); err != nil {
		return nil, err
	}
	return pc, nil
}

func resolveMode(raw string) policy.Mode {
	if raw == string(policy.ModeWarn) {
		return policy.ModeWarn
	}
	return policy.ModeEnforce
}
