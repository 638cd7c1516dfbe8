// Package store defines the persistence and configuration collaborators of a
// poll cycle together with in-memory implementations.
package store

import (
	"context"
	"sync"

	"github.com/kilianp07/irrigo/core/model"
)

// ReadingStore persists station readings.
type ReadingStore interface {
	Save(ctx context.Context, r model.Reading) error
}

// TenantSource supplies tenants, their credentials and stations.
type TenantSource interface {
	Tenants(ctx context.Context) ([]model.Tenant, error)
}

// StaticTenants is a TenantSource backed by a fixed list.
type StaticTenants []model.Tenant

// Tenants returns a copy of the list.
func (s StaticTenants) Tenants(context.Context) ([]model.Tenant, error) {
	return append([]model.Tenant(nil), s...), nil
}

// MemoryStore keeps readings in memory, grouped by collection path.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]model.Reading
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]model.Reading{}}
}

// Save appends r under its station path.
func (s *MemoryStore) Save(_ context.Context, r model.Reading) error {
	s.mu.Lock()
	s.data[r.Path()] = append(s.data[r.Path()], r)
	s.mu.Unlock()
	return nil
}

// List returns the readings stored for a station, oldest first.
func (s *MemoryStore) List(tenantID, stationID string) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Reading(nil), s.data[model.StationDataPath(tenantID, stationID)]...)
}

// Len returns the total number of stored readings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rs := range s.data {
		n += len(rs)
	}
	return n
}
