package config

import "time"

// ToolsConfig configures the Tool Router and its registered tools.
type ToolsConfig struct {
	Exec      ExecConfig      `yaml:"exec"`
	Browser   BrowserConfig   `yaml:"browser"`
	WebSearch WebSearchConfig `yaml:"websearch"`
	WebFetch  WebFetchConfig  `yaml:"web_fetch"`
	Files     FilesConfig     `yaml:"files"`
	Jobs      ToolJobsConfig  `yaml:"jobs"`
}

// ExecConfig controls the shell execution tool (internal/tools/exec).
type ExecConfig struct {
	Enabled        bool          `yaml:"enabled"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
}

// BrowserConfig controls the research browser pool (playwright).
type BrowserConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Headless  bool          `yaml:"headless"`
	PoolSize  int           `yaml:"pool_size"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// WebSearchConfig controls the websearch tool's backend.
type WebSearchConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider"`
	URL         string `yaml:"url"`
	BraveAPIKey string `yaml:"brave_api_key"`
}

// WebFetchConfig controls the candidate-fetch tool used by the Executor.
type WebFetchConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxChars int  `yaml:"max_chars"`
}

// FilesConfig controls the read/write/edit filesystem tools.
type FilesConfig struct {
	Workspace    string `yaml:"workspace"`
	MaxReadBytes int    `yaml:"max_read_bytes"`
	// PermissionTimeout is how long (default 10m) before a write outside
	// AllowedWritePaths is rejected.
	PermissionTimeout time.Duration `yaml:"permission_timeout"`
}

// ToolJobsConfig controls async tool-call job persistence.
type ToolJobsConfig struct {
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}
