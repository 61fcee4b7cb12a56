package reminders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.Mutex
	data map[string]Reminder // document_id/kind -> reminder
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Reminder)}
}

func (m *MemoryRepo) Upsert(ctx context.Context, r Reminder) (Reminder, error) {
	if err := ctx.Err(); err != nil {
		return Reminder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.DocumentID + "/" + string(r.Kind)
	existing, ok := m.data[key]
	if !ok {
		m.data[key] = r
		return r, nil
	}
	if !existing.DueDate.Equal(r.DueDate) {
		existing.Status = StatusActive
	}
	existing.VehicleRef = r.VehicleRef
	existing.DueDate = r.DueDate
	existing.UpdatedAt = r.UpdatedAt
	m.data[key] = existing
	return existing, nil
}

func (m *MemoryRepo) List(ctx context.Context, f Filter) ([]Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.normalized()
	m.mu.Lock()
	out := make([]Reminder, 0, len(m.data))
	for _, r := range m.data {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.VehicleRef != "" && r.VehicleRef != f.VehicleRef {
			continue
		}
		out = append(out, r)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) ExpireBefore(ctx context.Context, day, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, r := range m.data {
		if r.Status == StatusExpired || !r.DueDate.Before(day) {
			continue
		}
		r.Status = StatusExpired
		r.UpdatedAt = at
		m.data[key] = r
		n++
	}
	return n, nil
}
