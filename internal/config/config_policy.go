package config

// PolicyConfig is the `policy_default` config option: the initial
// PolicyRecord the Policy Engine assigns to a profile/mode pair before
// any explicit set_policy call.
type PolicyConfig struct {
	// Chat and Code hold the baseline record for each mode. Either may be
	// left zero-valued to fall back to models.DefaultPolicyForMode.
	Chat ModePolicyConfig `yaml:"chat"`
	Code ModePolicyConfig `yaml:"code"`
}

// ModePolicyConfig mirrors pkg/models.PolicyRecord in YAML-friendly form.
type ModePolicyConfig struct {
	AllowWrites       bool     `yaml:"allow_writes"`
	RequireConfirm    bool     `yaml:"require_confirm"`
	AllowedWritePaths []string `yaml:"allowed_write_paths"`
	// ToolEnables lists tools explicitly enabled or disabled for this mode;
	// a tool absent from the map falls back to the Tool Router's registry
	// default (enabled).
	ToolEnables map[string]bool `yaml:"tool_enables"`
}
