package featureflags

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps overrides in process memory. It backs the service
// whenever no database is configured, so overrides die with the process.
type MemoryRepository struct {
	mu        sync.RWMutex
	overrides map[string]Flag
	now       func() time.Time
}

// NewMemoryRepository creates a repository seeded with overrides.
func NewMemoryRepository(overrides ...*Flag) *MemoryRepository {
	r := &MemoryRepository{overrides: make(map[string]Flag), now: time.Now}
	_ = r.Upsert(context.Background(), overrides...)
	return r
}

// List returns copies of the stored overrides.
func (r *MemoryRepository) List(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Flag, len(r.overrides))
	for k, f := range r.overrides {
		out[k] = &f
	}
	return out, nil
}

// Upsert stores flags, stamping them with the current time.
func (r *MemoryRepository) Upsert(_ context.Context, flags ...*Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, f := range flags {
		r.overrides[f.Key] = Flag{Key: f.Key, Value: f.Value, UpdatedAt: now}
	}
	return nil
}

// Delete drops one override.
func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.overrides[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.overrides, key)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
