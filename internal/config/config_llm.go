package config

import "time"

// LLMConfig configures the shared LLM endpoint used by every Phase Runner;
// `llm_concurrency` caps simultaneous calls via a semaphore.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider's
	// call fails with a transport (not format/parse) error.
	FallbackChain []string `yaml:"fallback_chain"`

	// Concurrency caps simultaneous LLM calls (default 4).
	Concurrency int `yaml:"concurrency"`

	// CallTimeout is the default per-call budget (120s).
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// LLMProviderConfig configures one named provider ("anthropic", "openai",
// "bedrock", "google"). The AWS fields apply to bedrock only; when unset the
// default AWS credential chain is used.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`

	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}
