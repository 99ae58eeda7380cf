package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Every read returns a deep copy.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*ClientRecord
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*ClientRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, id string) (ClientRecord, error) {
	if id == "" {
		return ClientRecord{}, ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return ClientRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		now := s.now()
		r = &ClientRecord{ID: id, Active: true, CreatedAt: now, UpdatedAt: now}
		s.records[id] = r
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch Patch) (ClientRecord, error) {
	if id == "" {
		return ClientRecord{}, ErrEmptyID
	}
	if err := patch.Validate(); err != nil {
		return ClientRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return ClientRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ClientRecord{}, ErrNotFound
	}
	patch.Apply(r, s.now())
	return r.Clone(), nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]ClientRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ClientRecord, 0, len(s.records))
	for _, r := range s.records {
		if r.Active {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) RecordReminder(ctx context.Context, id string, key ReminderKey, at time.Time) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if _, sent := r.RemindersSent[key]; sent {
		return false, nil
	}
	if r.RemindersSent == nil {
		r.RemindersSent = make(map[ReminderKey]time.Time)
	}
	r.RemindersSent[key] = at
	r.UpdatedAt = s.now()
	return true, nil
}

// Upsert replaces the stored record's fields. Reminder markers are merged,
// never removed, and a marker already stored keeps its timestamp.
func (s *MemoryStore) Upsert(ctx context.Context, record ClientRecord) error {
	if record.ID == "" {
		return ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := record.Clone()
	if existing, ok := s.records[record.ID]; ok {
		c.CreatedAt = existing.CreatedAt
		for k, v := range existing.RemindersSent {
			if c.RemindersSent == nil {
				c.RemindersSent = make(map[ReminderKey]time.Time)
			}
			c.RemindersSent[k] = v
		}
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.records[record.ID] = &c
	return nil
}
