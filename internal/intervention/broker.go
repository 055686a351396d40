// Package intervention implements the Intervention Broker: pending
// human-assist requests (CAPTCHA / blocker handoff) with TTL expiry and
// awaiter wake-up, following the same pending/resolved state-machine shape
// this codebase used for tool-call approval gating, generalized from a
// single allow/deny decision to the richer blocker taxonomy in
// the research loop can suspend on and a human can resolve.
package intervention

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/pkg/models"
)

// DefaultTTL is intervention_ttl_seconds's default (15 minutes).
const DefaultTTL = 15 * time.Minute

type pendingRecord struct {
	intervention models.Intervention
	awaiters     []chan models.InterventionResolution
}

// Broker is the Intervention Broker.
type Broker struct {
	mu sync.Mutex
	// keyed by intervention_id
	records map[string]*pendingRecord
	// keyed by (trace_id, url) to coalesce duplicate pending requests.
	byTraceURL map[string]string
	ttl        time.Duration
}

func New(ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Broker{
		records:    make(map[string]*pendingRecord),
		byTraceURL: make(map[string]string),
		ttl:        ttl,
	}
}

func coalesceKey(traceID, url string) string { return traceID + "\x00" + url }

// Request stores a pending record; a second attempt for the same
// (trace_id, url) pair is coalesced onto the first.
func (b *Broker) Request(traceID, url string, blocker models.BlockerType, screenshotPath, cdpURL string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := coalesceKey(traceID, url)
	if existingID, ok := b.byTraceURL[key]; ok {
		if rec, ok := b.records[existingID]; ok && rec.intervention.Status == models.InterventionPending {
			return existingID
		}
	}

	id := uuid.NewString()
	b.records[id] = &pendingRecord{
		intervention: models.Intervention{
			InterventionID: id,
			TraceID:        traceID,
			URL:            url,
			BlockerType:    blocker,
			ScreenshotPath: screenshotPath,
			CDPURL:         cdpURL,
			Status:         models.InterventionPending,
			CreatedAt:      time.Now(),
		},
	}
	b.byTraceURL[key] = id
	return id
}

// AwaitResolution suspends until the intervention is resolved, expires, or
// ctx is cancelled, whichever happens first. This is the only suspension
// point the research loop has for a pending intervention.
func (b *Broker) AwaitResolution(ctx context.Context, interventionID string, timeout time.Duration) (models.InterventionResolution, error) {
	if timeout <= 0 {
		timeout = b.ttl
	}

	b.mu.Lock()
	rec, ok := b.records[interventionID]
	if !ok {
		b.mu.Unlock()
		return "", perrors.New("await_resolution", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	if rec.intervention.Status != models.InterventionPending {
		resolution := models.ResolutionSkipped
		if rec.intervention.Resolution != nil {
			resolution = *rec.intervention.Resolution
		}
		b.mu.Unlock()
		return resolution, nil
	}
	ch := make(chan models.InterventionResolution, 1)
	rec.awaiters = append(rec.awaiters, ch)
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r, nil
	case <-timer.C:
		b.expire(interventionID)
		return models.ResolutionSkipped, perrors.New("await_resolution", perrors.KindTimeout, perrors.ErrExpired)
	case <-ctx.Done():
		return "", perrors.New("await_resolution", perrors.KindCancelled, ctx.Err())
	}
}

// Resolve wakes all awaiters with the resolution. Idempotent: the first
// resolution wins; late resolutions for expired interventions are dropped
//.
func (b *Broker) Resolve(interventionID string, resolved bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[interventionID]
	if !ok {
		return perrors.New("resolve", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	if rec.intervention.Status != models.InterventionPending {
		return nil // no-op: first resolution already won, or it expired.
	}

	now := time.Now()
	resolution := models.ResolutionSkipped
	status := models.InterventionSkipped
	if resolved {
		resolution = models.ResolutionOK
		status = models.InterventionResolved
	}
	rec.intervention.Status = status
	rec.intervention.ResolvedAt = &now
	rec.intervention.Resolution = &resolution

	for _, ch := range rec.awaiters {
		ch <- resolution
	}
	rec.awaiters = nil
	return nil
}

// expire marks a pending intervention expired; pipeline must treat this as
// skipped.
func (b *Broker) expire(interventionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[interventionID]
	if !ok || rec.intervention.Status != models.InterventionPending {
		return
	}
	now := time.Now()
	skipped := models.ResolutionSkipped
	rec.intervention.Status = models.InterventionExpired
	rec.intervention.ResolvedAt = &now
	rec.intervention.Resolution = &skipped
	for _, ch := range rec.awaiters {
		ch <- skipped
	}
	rec.awaiters = nil
}

// ListPending returns pending interventions, optionally filtered by profile
// via the trace_id prefix the caller resolves. Used by UI polling.
func (b *Broker) ListPending() []models.Intervention {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Intervention
	for _, rec := range b.records {
		if rec.intervention.Status == models.InterventionPending {
			out = append(out, rec.intervention)
		}
	}
	return out
}

// Get returns a snapshot of one intervention.
func (b *Broker) Get(interventionID string) (models.Intervention, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[interventionID]
	if !ok {
		return models.Intervention{}, false
	}
	return rec.intervention, true
}

// SkipAllForTrace marks every pending intervention for a trace as skipped;
// used when a turn is cancelled mid-research.
func (b *Broker) SkipAllForTrace(traceID string) {
	b.mu.Lock()
	var ids []string
	for id, rec := range b.records {
		if rec.intervention.TraceID == traceID && rec.intervention.Status == models.InterventionPending {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()
	for _, id := range ids {
		_ = b.Resolve(id, false)
	}
}

// Sweep expires any pending intervention older than the broker's TTL.
func (b *Broker) Sweep(now time.Time) int {
	b.mu.Lock()
	var toExpire []string
	for id, rec := range b.records {
		if rec.intervention.Status == models.InterventionPending && now.Sub(rec.intervention.CreatedAt) > b.ttl {
			toExpire = append(toExpire, id)
		}
	}
	b.mu.Unlock()
	for _, id := range toExpire {
		b.expire(id)
	}
	return len(toExpire)
}
