package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/fulfillment/core/model"
	"github.com/agrilink/fulfillment/core/storage"
)

func qty(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func seedMemory(t *testing.T, s storage.Store, remaining string) (model.AllocationRequest, model.InventoryBatch) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	r := model.AllocationRequest{
		ID: "r1", Code: "REQ-000001", Commodity: "tomato",
		Quantity: qty(t, "400"), Unit: "kg", Destination: "retail store",
		Status: model.RequestPending, CreatedAt: now, UpdatedAt: now,
	}
	b := model.InventoryBatch{
		ID: "b1", LotCode: "LOT-1", Commodity: "tomato",
		Remaining: qty(t, remaining), Unit: "kg",
		IntakeDate: now.Add(-24 * time.Hour), RiskScore: 50,
		Status: model.BatchActive,
	}
	if err := s.Requests().Insert(ctx, r); err != nil {
		t.Fatalf("insert request: %v", err)
	}
	if err := s.Batches().Insert(ctx, b); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	return r, b
}

func commitFor(r model.AllocationRequest, b model.InventoryBatch, amount decimal.Decimal) storage.AllocationCommit {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	return storage.AllocationCommit{
		RequestID: r.ID,
		BatchID:   b.ID,
		Quantity:  amount,
		Now:       now,
		Dispatch: model.Dispatch{
			ID: "d-" + r.ID, Code: "DSP-000001", BatchID: b.ID, RequestID: r.ID,
			Destination: r.Destination, Quantity: amount, Unit: r.Unit,
			Status: model.DispatchPending, DispatchedAt: now,
			EstimatedDelivery: now.Add(72 * time.Hour),
		},
	}
}

func TestMemoryCommitAllocation(t *testing.T) {
	s := NewMemoryStore()
	r, b := seedMemory(t, s, "400")

	res, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "400")))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Request.Status != model.RequestAllocated {
		t.Errorf("request status = %s, want allocated", res.Request.Status)
	}
	if !res.Batch.Remaining.IsZero() || res.Batch.Status != model.BatchDispatched {
		t.Errorf("batch not depleted: %+v", res.Batch)
	}
	if res.Batch.DispatchedAt == nil {
		t.Error("dispatched_at not set on depletion")
	}
	if _, err := s.Dispatches().Get(context.Background(), res.Dispatch.ID); err != nil {
		t.Errorf("dispatch not stored: %v", err)
	}
}

func TestMemoryCommitAllocation_Guards(t *testing.T) {
	s := NewMemoryStore()
	r, b := seedMemory(t, s, "100")

	c := commitFor(r, b, qty(t, "500"))
	if _, err := s.CommitAllocation(context.Background(), c); !errors.Is(err, storage.ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}

	c = commitFor(r, b, qty(t, "50"))
	c.RequestID = "missing"
	if _, err := s.CommitAllocation(context.Background(), c); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Commit once, then the request is no longer pending.
	if _, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "50"))); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "50"))); !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestMemoryCommitAllocation_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	b := model.InventoryBatch{
		ID: "b1", LotCode: "LOT-1", Commodity: "tomato",
		Remaining: qty(t, "1000"), Unit: "kg", IntakeDate: now,
		Status: model.BatchActive,
	}
	if err := s.Batches().Insert(ctx, b); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		r := model.AllocationRequest{
			ID: string(rune('a' + i)), Commodity: "tomato",
			Quantity: qty(t, "300"), Unit: "kg", Destination: "x",
			Status: model.RequestPending, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.Requests().Insert(ctx, r); err != nil {
			t.Fatalf("insert request: %v", err)
		}
		wg.Add(1)
		go func(i int, r model.AllocationRequest) {
			defer wg.Done()
			c := commitFor(r, b, r.Quantity)
			c.Dispatch.ID = "d-" + r.ID
			_, results[i] = s.CommitAllocation(ctx, c)
		}(i, r)
	}
	wg.Wait()

	var committed int
	for _, err := range results {
		if err == nil {
			committed++
		} else if !errors.Is(err, storage.ErrInsufficient) && !errors.Is(err, storage.ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// 1000 / 300 allows at most 3 commits.
	if committed != 3 {
		t.Fatalf("committed = %d, want 3", committed)
	}
	stored, err := s.Batches().Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !stored.Remaining.Equal(qty(t, "100")) {
		t.Fatalf("remaining = %s, want 100", stored.Remaining)
	}
}

func TestMemoryListActiveByCommodity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	insert := func(id string, intake time.Time, status model.BatchStatus, commodity string) {
		b := model.InventoryBatch{
			ID: id, LotCode: "LOT-" + id, Commodity: commodity,
			Remaining: qty(t, "10"), Unit: "kg", IntakeDate: intake, Status: status,
		}
		if err := s.Batches().Insert(ctx, b); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("new", base.Add(48*time.Hour), model.BatchActive, "tomato")
	insert("old", base, model.BatchActive, "Tomato")
	insert("gone", base, model.BatchDispatched, "tomato")
	insert("other", base, model.BatchActive, "potato")

	got, err := s.Batches().ListActiveByCommodity(ctx, "tomato")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "old" || got[1].ID != "new" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMemoryRepositories_Sentinels(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Requests().Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("request get: expected ErrNotFound, got %v", err)
	}
	if err := s.Dispatches().Update(ctx, model.Dispatch{ID: "missing"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("dispatch update: expected ErrNotFound, got %v", err)
	}

	r := model.AllocationRequest{ID: "r1", Commodity: "tomato", Quantity: qty(t, "1")}
	if err := s.Requests().Insert(ctx, r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Requests().Insert(ctx, r); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate insert: expected ErrConflict, got %v", err)
	}
}
