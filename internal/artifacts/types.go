// Package artifacts stores and serves the files a turn produces: screenshots
// from the browser tool, fetched pages, and anything else a tool attaches.
// A Repository tracks metadata and expiry; a Store holds the bytes (local
// disk or S3). Small artifacts are kept inline in the repository instead.
package artifacts

import (
	"context"
	"io"
	"time"

	"github.com/pandora-run/pandora/pkg/models"
)

// Repository tracks artifact metadata and serves artifact content.
type Repository interface {
	StoreArtifact(ctx context.Context, artifact *models.Artifact, data io.Reader) error
	GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, io.ReadCloser, error)
	ListArtifacts(ctx context.Context, filter Filter) ([]*models.Artifact, error)
	DeleteArtifact(ctx context.Context, artifactID string) error
	PruneExpired(ctx context.Context) (int, error)
}

// Store holds artifact bytes by ID and returns an opaque reference for each.
type Store interface {
	Put(ctx context.Context, artifactID string, data io.Reader, opts PutOptions) (reference string, err error)
	Get(ctx context.Context, artifactID string) (io.ReadCloser, error)
	Delete(ctx context.Context, artifactID string) error
}

// PutOptions carries per-artifact hints for a Store.
type PutOptions struct {
	MimeType string
	TTL      time.Duration
	Metadata map[string]string
}

// Metadata is the repository's record of one stored artifact.
type Metadata struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	MimeType   string    `json:"mime_type,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Size       int64     `json:"size"`
	Reference  string    `json:"reference,omitempty"`
	TTLSeconds int64     `json:"ttl_seconds,omitempty"`
	TurnID     string    `json:"turn_id,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// Filter selects artifacts for ListArtifacts.
type Filter struct {
	TurnID        string
	JobID         string
	Type          string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// defaultTTLs maps artifact types to their retention when the artifact
// itself does not carry one.
var defaultTTLs = map[string]time.Duration{
	"screenshot": 24 * time.Hour,
	"page":       24 * time.Hour,
	"file":       7 * 24 * time.Hour,
}

// GetDefaultTTL returns the retention for an artifact type.
func GetDefaultTTL(artifactType string) time.Duration {
	if ttl, ok := defaultTTLs[artifactType]; ok {
		return ttl
	}
	return 24 * time.Hour
}
