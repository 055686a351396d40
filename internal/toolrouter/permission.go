package toolrouter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/pkg/models"
)

// DefaultPermissionTTL is permission_ttl_seconds's default (10 minutes).
const DefaultPermissionTTL = 10 * time.Minute

type pendingPermission struct {
	request  models.PermissionRequest
	awaiters []chan models.InterventionResolution
}

// PermissionBroker tracks Permission Requests: the sibling of Intervention
// scoped to local filesystem writes outside the allowed paths. Same
// pending/resolved state-machine shape as internal/intervention.Broker,
// coalescing on (trace_id, path) instead of (trace_id, url).
type PermissionBroker struct {
	mu         sync.Mutex
	records    map[string]*pendingPermission
	byTracePath map[string]string
	ttl        time.Duration
}

// NewPermissionBroker builds a broker with the given TTL (0 uses the default).
func NewPermissionBroker(ttl time.Duration) *PermissionBroker {
	if ttl <= 0 {
		ttl = DefaultPermissionTTL
	}
	return &PermissionBroker{
		records:     make(map[string]*pendingPermission),
		byTracePath: make(map[string]string),
		ttl:         ttl,
	}
}

func permissionKey(traceID, path string) string { return traceID + "\x00" + path }

// Request stores a pending Permission Request, coalescing duplicate attempts
// for the same (trace_id, path).
func (b *PermissionBroker) Request(traceID, toolName, path, reason string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := permissionKey(traceID, path)
	if existingID, ok := b.byTracePath[key]; ok {
		if rec, ok := b.records[existingID]; ok && rec.request.Status == models.InterventionPending {
			return existingID
		}
	}

	id := uuid.NewString()
	b.records[id] = &pendingPermission{
		request: models.PermissionRequest{
			PermissionID: id,
			TraceID:      traceID,
			ToolName:     toolName,
			Path:         path,
			Reason:       reason,
			Status:       models.InterventionPending,
			CreatedAt:    time.Now(),
		},
	}
	b.byTracePath[key] = id
	return id
}

// AwaitResolution suspends until the Permission Request is resolved, expires
// (default 10 minutes, then reject), or ctx is cancelled.
func (b *PermissionBroker) AwaitResolution(ctx context.Context, permissionID string) (models.InterventionResolution, error) {
	b.mu.Lock()
	rec, ok := b.records[permissionID]
	if !ok {
		b.mu.Unlock()
		return "", perrors.New("await_permission", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	if rec.request.Status != models.InterventionPending {
		resolution := models.ResolutionSkipped
		if rec.request.Resolution != nil {
			resolution = *rec.request.Resolution
		}
		b.mu.Unlock()
		return resolution, nil
	}
	ch := make(chan models.InterventionResolution, 1)
	rec.awaiters = append(rec.awaiters, ch)
	b.mu.Unlock()

	timer := time.NewTimer(b.ttl)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r, nil
	case <-timer.C:
		b.expire(permissionID)
		return models.ResolutionSkipped, perrors.New("await_permission", perrors.KindTimeout, perrors.ErrExpired)
	case <-ctx.Done():
		return "", perrors.New("await_permission", perrors.KindCancelled, ctx.Err())
	}
}

// Resolve wakes all awaiters. Idempotent: the first resolution wins.
func (b *PermissionBroker) Resolve(permissionID string, approved bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[permissionID]
	if !ok {
		return perrors.New("resolve_permission", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	if rec.request.Status != models.InterventionPending {
		return nil
	}

	now := time.Now()
	resolution := models.ResolutionSkipped
	status := models.InterventionSkipped
	if approved {
		resolution = models.ResolutionOK
		status = models.InterventionResolved
	}
	rec.request.Status = status
	rec.request.ResolvedAt = &now
	rec.request.Resolution = &resolution

	for _, ch := range rec.awaiters {
		ch <- resolution
	}
	rec.awaiters = nil
	return nil
}

func (b *PermissionBroker) expire(permissionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[permissionID]
	if !ok || rec.request.Status != models.InterventionPending {
		return
	}
	now := time.Now()
	skipped := models.ResolutionSkipped
	rec.request.Status = models.InterventionExpired
	rec.request.ResolvedAt = &now
	rec.request.Resolution = &skipped
	for _, ch := range rec.awaiters {
		ch <- skipped
	}
	rec.awaiters = nil
}

// ListPending returns pending Permission Requests for admin/gateway surfacing.
func (b *PermissionBroker) ListPending() []models.PermissionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.PermissionRequest
	for _, rec := range b.records {
		if rec.request.Status == models.InterventionPending {
			out = append(out, rec.request)
		}
	}
	return out
}

// Sweep expires any pending Permission Request older than the broker's TTL.
func (b *PermissionBroker) Sweep(now time.Time) int {
	b.mu.Lock()
	var toExpire []string
	for id, rec := range b.records {
		if rec.request.Status == models.InterventionPending && now.Sub(rec.request.CreatedAt) > b.ttl {
			toExpire = append(toExpire, id)
		}
	}
	b.mu.Unlock()
	for _, id := range toExpire {
		b.expire(id)
	}
	return len(toExpire)
}
