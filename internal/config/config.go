package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pandora-run/pandora/internal/audit"
)

// Config is the full process configuration for a pandora node: the
// Streaming Gateway's listener, the LLM client pool, the Pipeline
// Scheduler's bounds, the Policy Engine's defaults, the Tool Router's
// registered tools, and the ambient observability/database layers.
type Config struct {
	Version int `yaml:"version"`

	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Artifacts     ArtifactConfig      `yaml:"artifacts"`
	Audit         audit.Config        `yaml:"audit"`
	Cron          CronConfig          `yaml:"cron"`
	Policy        PolicyConfig        `yaml:"policy"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Trace         TraceConfig         `yaml:"trace"`
	Tools         ToolsConfig         `yaml:"tools"`
}

// Load reads and validates the configuration at path, applying defaults
// and PANDORA_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 0 // streaming responses must not be capped
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = 15 * time.Second
	}

	if c.Storage.Root == "" {
		c.Storage.Root = "./pandora-data"
	}

	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "anthropic"
	}
	if c.LLM.Concurrency == 0 {
		c.LLM.Concurrency = 4
	}
	if c.LLM.CallTimeout == 0 {
		c.LLM.CallTimeout = 120 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Cron.TraceSweepInterval == 0 {
		c.Cron.TraceSweepInterval = 30 * time.Second
	}
	if c.Cron.JobSweepInterval == 0 {
		c.Cron.JobSweepInterval = time.Minute
	}
	if c.Cron.InterventionSweep == 0 {
		c.Cron.InterventionSweep = time.Minute
	}
	if c.Cron.PermissionSweep == 0 {
		c.Cron.PermissionSweep = 30 * time.Second
	}

	if c.Scheduler.MaxConcurrentTurns == 0 {
		c.Scheduler.MaxConcurrentTurns = 32
	}
	if c.Scheduler.BrowserPoolSize == 0 {
		c.Scheduler.BrowserPoolSize = 2
	}

	if c.Trace.TraceTTL == 0 {
		c.Trace.TraceTTL = 10 * time.Minute
	}
	if c.Trace.JobSweepInterval == 0 {
		c.Trace.JobSweepInterval = time.Minute
	}
	if c.Trace.InterventionTTL == 0 {
		c.Trace.InterventionTTL = 15 * time.Minute
	}
	if c.Trace.PermissionTTL == 0 {
		c.Trace.PermissionTTL = 10 * time.Minute
	}
	if c.Trace.SoftDeadline == 0 {
		c.Trace.SoftDeadline = 10 * time.Second
	}

	if c.Tools.Exec.DefaultTimeout == 0 {
		c.Tools.Exec.DefaultTimeout = 30 * time.Second
	}
	if c.Tools.Exec.MaxOutputBytes == 0 {
		c.Tools.Exec.MaxOutputBytes = 64000
	}
	if c.Tools.Browser.PoolSize == 0 {
		c.Tools.Browser.PoolSize = c.Scheduler.BrowserPoolSize
	}
	if c.Tools.Browser.NavTimeout == 0 {
		c.Tools.Browser.NavTimeout = 20 * time.Second
	}
	if c.Tools.WebSearch.Provider == "" {
		c.Tools.WebSearch.Provider = "duckduckgo"
	}
	if c.Tools.WebFetch.MaxChars == 0 {
		c.Tools.WebFetch.MaxChars = 50000
	}
	if c.Tools.Files.MaxReadBytes == 0 {
		c.Tools.Files.MaxReadBytes = 1 << 20
	}
	if c.Tools.Files.PermissionTimeout == 0 {
		c.Tools.Files.PermissionTimeout = 10 * time.Minute
	}
	if c.Tools.Jobs.Retention == 0 {
		c.Tools.Jobs.Retention = 24 * time.Hour
	}
	if c.Tools.Jobs.PruneInterval == 0 {
		c.Tools.Jobs.PruneInterval = 5 * time.Minute
	}
}

// envOverrides maps PANDORA_-prefixed environment variables onto config
// fields that operators commonly need to override per-deployment without
// editing the file (API keys and listener binding, chiefly).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PANDORA_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = n
		}
	}
	if v := os.Getenv("PANDORA_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("PANDORA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	for name, provider := range c.LLM.Providers {
		envName := "PANDORA_LLM_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(envName); v != "" {
			provider.APIKey = v
			c.LLM.Providers[name] = provider
		}
	}
	if v := os.Getenv("PANDORA_BRAVE_API_KEY"); v != "" {
		c.Tools.WebSearch.BraveAPIKey = v
	}
}

func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("llm.default_provider %q has no matching entry in llm.providers", c.LLM.DefaultProvider)
		}
	}
	for _, name := range c.LLM.FallbackChain {
		if _, ok := c.LLM.Providers[name]; !ok {
			return fmt.Errorf("llm.fallback_chain references unknown provider %q", name)
		}
	}
	if c.Scheduler.MaxConcurrentTurns <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_turns must be positive")
	}
	if c.Tools.Files.Workspace == "" {
		return fmt.Errorf("tools.files.workspace is required")
	}
	return nil
}
