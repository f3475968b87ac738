// internal/pipeline/registry.go
package pipeline

import (
	"context"
	"sync"

	"pages-deployer/internal/models"
)

// Registry maps a task identity to its round-1 publish. Records are written once and
// never replaced. Lock serialises runs for one identity across workers.
type Registry interface {
	Lock(ctx context.Context, identity string) (unlock func(), err error)
	Get(ctx context.Context, identity string) (*models.PublishedRepo, error)
	PutIfAbsent(ctx context.Context, identity string, repo models.PublishedRepo) (bool, error)
}

// MemoryRegistry keeps records in process memory.
type MemoryRegistry struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	records map[string]models.PublishedRepo
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		locks:   make(map[string]chan struct{}),
		records: make(map[string]models.PublishedRepo),
	}
}

func (r *MemoryRegistry) Lock(ctx context.Context, identity string) (func(), error) {
	r.mu.Lock()
	ch, ok := r.locks[identity]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[identity] = ch
	}
	r.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *MemoryRegistry) Get(_ context.Context, identity string) (*models.PublishedRepo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	repo, ok := r.records[identity]
	if !ok {
		return nil, nil
	}
	return &repo, nil
}

func (r *MemoryRegistry) PutIfAbsent(_ context.Context, identity string, repo models.PublishedRepo) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[identity]; ok {
		return false, nil
	}
	r.records[identity] = repo
	return true, nil
}
