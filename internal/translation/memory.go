package translation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records in memory for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]*Record
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, r *Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	r.ID = s.nextID
	r.CreatedAt = time.Now()
	r.StartedAt = r.CreatedAt

	stored := *r
	s.records[r.ID] = &stored
	return r.ID, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id int64, outputText, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("translation record %d not found", id)
	}
	r.Status = StatusCompleted
	r.OutputText = outputText
	r.OutputMediaURL = mediaURL
	r.CompletedAt = time.Now()
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("translation record %d not found", id)
	}
	r.Status = StatusFailed
	r.ErrorMessage = errMsg
	r.CompletedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for id := s.nextID; id > 0 && (limit <= 0 || len(out) < limit); id-- {
		if r, ok := s.records[id]; ok && r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Get returns a copy of a record, for tests.
func (s *MemoryStore) Get(id int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}
