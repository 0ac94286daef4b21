// Package storage provides the persistence implementations: an in-memory
// store for tests and development and a SQLite store for deployments.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/agrilink/fulfillment/core/model"
	"github.com/agrilink/fulfillment/core/storage"
)

// MemoryStore keeps all records in maps guarded by a single mutex. The
// allocation commit runs entirely under the lock, so concurrent approvals
// against the same batch serialize and the sufficiency check cannot be
// bypassed.
type MemoryStore struct {
	mu         sync.RWMutex
	requests   map[string]model.AllocationRequest
	batches    map[string]model.InventoryBatch
	dispatches map[string]model.Dispatch
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:   map[string]model.AllocationRequest{},
		batches:    map[string]model.InventoryBatch{},
		dispatches: map[string]model.Dispatch{},
	}
}

// Requests returns the request repository view.
func (s *MemoryStore) Requests() storage.RequestRepository { return memoryRequests{s} }

// Batches returns the batch repository view.
func (s *MemoryStore) Batches() storage.BatchRepository { return memoryBatches{s} }

// Dispatches returns the dispatch repository view.
func (s *MemoryStore) Dispatches() storage.DispatchRepository { return memoryDispatches{s} }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// CommitAllocation applies the fulfillment mutation atomically under the
// store lock.
func (s *MemoryStore) CommitAllocation(_ context.Context, c storage.AllocationCommit) (storage.AllocationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[c.RequestID]
	if !ok {
		return storage.AllocationResult{}, storage.ErrNotFound
	}
	if r.Status != model.RequestPending && r.Status != model.RequestReviewing {
		return storage.AllocationResult{}, storage.ErrInvalidState
	}
	b, ok := s.batches[c.BatchID]
	if !ok {
		return storage.AllocationResult{}, storage.ErrNotFound
	}
	if b.Status != model.BatchActive {
		return storage.AllocationResult{}, storage.ErrInvalidState
	}
	if b.Remaining.Cmp(c.Quantity) < 0 {
		return storage.AllocationResult{}, storage.ErrInsufficient
	}

	b.Remaining = b.Remaining.Sub(c.Quantity)
	if b.Remaining.IsZero() {
		b.Status = model.BatchDispatched
		ts := c.Now
		b.DispatchedAt = &ts
	}
	r.Status = model.RequestAllocated
	r.UpdatedAt = c.Now

	s.batches[c.BatchID] = b
	s.requests[c.RequestID] = r
	s.dispatches[c.Dispatch.ID] = c.Dispatch

	return storage.AllocationResult{Request: r, Batch: b, Dispatch: c.Dispatch}, nil
}

type memoryRequests struct{ s *MemoryStore }

func (m memoryRequests) Insert(_ context.Context, r model.AllocationRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.requests[r.ID]; ok {
		return storage.ErrConflict
	}
	m.s.requests[r.ID] = r
	return nil
}

func (m memoryRequests) Get(_ context.Context, id string) (model.AllocationRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	r, ok := m.s.requests[id]
	if !ok {
		return model.AllocationRequest{}, storage.ErrNotFound
	}
	return r, nil
}

func (m memoryRequests) Update(_ context.Context, r model.AllocationRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.requests[r.ID]; !ok {
		return storage.ErrNotFound
	}
	m.s.requests[r.ID] = r
	return nil
}

func (m memoryRequests) ListByStatus(_ context.Context, status model.RequestStatus) ([]model.AllocationRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var res []model.AllocationRequest
	for _, r := range m.s.requests {
		if r.Status == status {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

type memoryBatches struct{ s *MemoryStore }

func (m memoryBatches) Insert(_ context.Context, b model.InventoryBatch) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.batches[b.ID]; ok {
		return storage.ErrConflict
	}
	m.s.batches[b.ID] = b
	return nil
}

func (m memoryBatches) Get(_ context.Context, id string) (model.InventoryBatch, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	b, ok := m.s.batches[id]
	if !ok {
		return model.InventoryBatch{}, storage.ErrNotFound
	}
	return b, nil
}

func (m memoryBatches) ListActiveByCommodity(_ context.Context, commodity string) ([]model.InventoryBatch, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var res []model.InventoryBatch
	for _, b := range m.s.batches {
		if b.Status == model.BatchActive && strings.EqualFold(b.Commodity, commodity) {
			res = append(res, b)
		}
	}
	// Oldest intake first so score ties favour older stock.
	sort.Slice(res, func(i, j int) bool { return res[i].IntakeDate.Before(res[j].IntakeDate) })
	return res, nil
}

type memoryDispatches struct{ s *MemoryStore }

func (m memoryDispatches) Get(_ context.Context, id string) (model.Dispatch, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	d, ok := m.s.dispatches[id]
	if !ok {
		return model.Dispatch{}, storage.ErrNotFound
	}
	return d, nil
}

func (m memoryDispatches) Update(_ context.Context, d model.Dispatch) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.dispatches[d.ID]; !ok {
		return storage.ErrNotFound
	}
	m.s.dispatches[d.ID] = d
	return nil
}
