package store

import (
	"context"
	"sync"
	"time"

	"pages-deployer/internal/models"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu          sync.RWMutex
	records     []models.TaskRecord
	submissions []models.RepoSubmission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveTaskRecord(_ context.Context, rec *models.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.records) + 1)
	rec.CreatedAt = time.Now().UTC()
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) SaveSubmission(_ context.Context, sub *models.RepoSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = int64(len(s.submissions) + 1)
	sub.CreatedAt = time.Now().UTC()
	s.submissions = append(s.submissions, *sub)
	return nil
}

func (s *MemoryStore) LatestSubmission(_ context.Context, task string, round int) (*models.RepoSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.submissions) - 1; i >= 0; i-- {
		if sub := s.submissions[i]; sub.Task == task && sub.Round == round {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

// TaskRecords returns a copy of every stored record.
func (s *MemoryStore) TaskRecords() []models.TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TaskRecord(nil), s.records...)
}
