package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo. The mutex makes every status write a
// check-and-set, which is what guarantees a single winner per claim.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return ErrInvalidInput
	}
	r.data[doc.ID] = cloneDocument(doc)
	return nil
}

// GetByID returns a document by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List returns documents newest-first.
func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.normalized()
	r.mu.RLock()
	out := make([]Document, 0, len(r.data))
	for _, doc := range r.data {
		if f.Status != "" && doc.Status != f.Status {
			continue
		}
		if f.Type != "" && doc.Type != f.Type {
			continue
		}
		if f.VehicleRef != "" && doc.VehicleRef != f.VehicleRef {
			continue
		}
		out = append(out, cloneDocument(doc))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []Document{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Claim moves a claimable document to processing.
func (r *MemoryRepo) Claim(ctx context.Context, req ClaimRequest) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[req.ID]
	if !ok {
		return Document{}, ErrNotFound
	}
	if !statusIn(doc.Status, claimableFrom(req.AllowDone)) {
		return Document{}, ErrAlreadyProcessing
	}
	at := req.At.UTC()
	doc.Status = StatusProcessing
	doc.AttemptCount++
	doc.ClaimID = req.ClaimID
	doc.ClaimedAt = &at
	doc.UpdatedAt = at
	r.data[doc.ID] = doc
	return cloneDocument(doc), nil
}

// Complete commits a successful attempt.
func (r *MemoryRepo) Complete(ctx context.Context, id, claimID string, c Completion) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if doc.Status != StatusProcessing || doc.ClaimID != claimID {
		return Document{}, ErrStaleClaim
	}
	doc.Status = StatusDone
	if c.Type != "" {
		doc.Type = c.Type
	}
	if c.VehicleRef != "" {
		doc.VehicleRef = c.VehicleRef
	}
	doc.ExtractedFields = cloneMap(c.ExtractedFields)
	doc.FieldIssues = append([]FieldIssue(nil), c.FieldIssues...)
	doc.RawExtraction = cloneMap(c.RawExtraction)
	doc.ErrorCode = ""
	doc.ErrorDetail = ""
	doc.ErrorRetryable = nil
	doc.UpdatedAt = c.At.UTC()
	r.data[id] = doc
	return cloneDocument(doc), nil
}

// Fail commits a failed attempt. Extracted fields from an earlier success are kept.
func (r *MemoryRepo) Fail(ctx context.Context, id, claimID string, f Failure) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if doc.Status != StatusProcessing || doc.ClaimID != claimID {
		return Document{}, ErrStaleClaim
	}
	retryable := f.Retryable
	doc.Status = StatusError
	doc.ErrorCode = f.Code
	doc.ErrorDetail = f.Detail
	doc.ErrorRetryable = &retryable
	if f.RawExtraction != nil {
		doc.RawExtraction = cloneMap(f.RawExtraction)
	}
	doc.UpdatedAt = f.At.UTC()
	r.data[id] = doc
	return cloneDocument(doc), nil
}

// Rearm moves done or error back to pending.
func (r *MemoryRepo) Rearm(ctx context.Context, id string, at time.Time) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	switch doc.Status {
	case StatusPending:
		return cloneDocument(doc), nil
	case StatusProcessing:
		return Document{}, ErrAlreadyProcessing
	}
	doc.Status = StatusPending
	doc.UpdatedAt = at.UTC()
	r.data[id] = doc
	return cloneDocument(doc), nil
}

// RecoverStale returns stale processing documents to pending.
func (r *MemoryRepo) RecoverStale(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, doc := range r.data {
		if doc.Status != StatusProcessing || doc.ClaimedAt == nil || !doc.ClaimedAt.Before(cutoff) {
			continue
		}
		doc.Status = StatusPending
		doc.ClaimID = ""
		doc.UpdatedAt = at.UTC()
		r.data[id] = doc
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListEligible returns documents the sweeper may process.
func (r *MemoryRepo) ListEligible(ctx context.Context, q EligibleQuery) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Document, 0)
	for _, doc := range r.data {
		if doc.eligible(q.MaxAttempts) {
			out = append(out, cloneDocument(doc))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// AssignVehicle sets the vehicle reference without touching the status.
func (r *MemoryRepo) AssignVehicle(ctx context.Context, id, vehicleRef string, at time.Time) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc.VehicleRef = vehicleRef
	doc.UpdatedAt = at.UTC()
	r.data[id] = doc
	return cloneDocument(doc), nil
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func cloneDocument(doc Document) Document {
	doc.ExtractedFields = cloneMap(doc.ExtractedFields)
	doc.RawExtraction = cloneMap(doc.RawExtraction)
	doc.FieldIssues = append([]FieldIssue(nil), doc.FieldIssues...)
	if doc.ErrorRetryable != nil {
		v := *doc.ErrorRetryable
		doc.ErrorRetryable = &v
	}
	if doc.ClaimedAt != nil {
		v := *doc.ClaimedAt
		doc.ClaimedAt = &v
	}
	return doc
}

// cloneMap copies the top level; nested values are treated as immutable.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
