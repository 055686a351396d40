package config

import "time"

// LoggingConfig controls the internal/observability logger (slog-backed).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// AddSource includes the calling file:line in each log line.
	AddSource bool `yaml:"add_source"`
}

// ObservabilityConfig configures tracing and metrics for every phase run and
// tool call.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing (otlptracegrpc exporter).
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ArtifactConfig configures attach_artifact storage and retention.
type ArtifactConfig struct {
	// Backend specifies storage backend: "local" or "s3".
	Backend string `yaml:"backend"`

	// LocalPath is the directory for local storage.
	LocalPath string `yaml:"local_path"`

	// MetadataBackend selects where artifact metadata is stored: "file" or "sql".
	MetadataBackend string `yaml:"metadata_backend"`

	S3Bucket          string `yaml:"s3_bucket"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3Region          string `yaml:"s3_region"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`

	// PruneInterval is how often to clean up expired artifacts.
	PruneInterval time.Duration `yaml:"prune_interval"`

	// MaxStorageSize is the total quota in bytes (0 = unlimited).
	MaxStorageSize int64 `yaml:"max_storage_size"`

	// Redaction scrubs secrets out of attached artifacts before they are
	// persisted (internal/artifacts/redaction.go).
	Redaction ArtifactRedactionConfig `yaml:"redaction"`
}

// ArtifactRedactionConfig controls artifact redaction behavior.
type ArtifactRedactionConfig struct {
	Enabled          bool     `yaml:"enabled"`
	MimeTypes        []string `yaml:"mime_types"`
	FilenamePatterns []string `yaml:"filename_patterns"`
}

// CronConfig configures the periodic sweepers (trace TTL, job GC,
// intervention expiry) driven by `github.com/robfig/cron/v3`.
type CronConfig struct {
	Enabled            bool          `yaml:"enabled"`
	TraceSweepInterval time.Duration `yaml:"trace_sweep_interval"`
	JobSweepInterval   time.Duration `yaml:"job_sweep_interval"`
	InterventionSweep  time.Duration `yaml:"intervention_sweep_interval"`
	PermissionSweep    time.Duration `yaml:"permission_sweep_interval"`
}
