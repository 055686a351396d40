package config

import (
	"time"

	"github.com/pandora-run/pandora/internal/ratelimit"
)

// ServerConfig controls the Streaming Gateway's HTTP listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`

	// ReadTimeout/WriteTimeout bound non-streaming request handling; SSE/WS
	// handlers run with no write deadline once the stream starts.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownGrace bounds how long the gateway waits for in-flight turns to
	// reach a terminal state during teardown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// RateLimit throttles turn submissions per profile. Disabled unless
	// enabled explicitly.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// StorageConfig roots the on-disk Turn Document tree:
// `<root>/<profile>/turns/<turn_id>/...` plus the SQLite relational
// index under `<root>/<profile>/index.db`. Separate from
// `tools.files.workspace`, which sandboxes the file-editing tools' reads and
// writes rather than the engine's own turn storage.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// DatabaseConfig is the optional durable Postgres backend for the Job
// Registry and relational Turn Document index when running more than one
// process. When URL is empty, components fall back to their
// in-memory/SQLite-only implementations.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
