package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agrilink/fulfillment/core/model"
	"github.com/agrilink/fulfillment/core/storage"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fulfillment.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(48 * time.Hour)
	price := qty(t, "2.35")

	r := model.AllocationRequest{
		ID: "r1", Code: "REQ-AB12CD", RequesterID: "buyer-7",
		Commodity: "tomato", Variety: "roma", Quantity: qty(t, "123.450"),
		Unit: "kg", Deadline: &deadline, Destination: "retail store",
		Price: &price, Notes: "priority", Status: model.RequestPending,
		LocationID: "wh-1", CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Requests().Insert(ctx, r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.Requests().Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Quantity.Equal(r.Quantity) || got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Price == nil || !got.Price.Equal(price) {
		t.Errorf("price mismatch: %+v", got.Price)
	}
	if got.Status != model.RequestPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	got.Status = model.RequestReviewing
	got.UpdatedAt = now.Add(time.Hour)
	if err := s.Requests().Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	listed, err := s.Requests().ListByStatus(ctx, model.RequestReviewing)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "r1" {
		t.Fatalf("unexpected list result: %+v", listed)
	}
}

func TestSQLiteCommitAllocation(t *testing.T) {
	s := newSQLite(t)
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

	// All three mutations must be visible after the transaction.
	storedB, err := s.Batches().Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if storedB.Status != model.BatchDispatched {
		t.Errorf("stored batch status = %s, want dispatched", storedB.Status)
	}
	storedR, err := s.Requests().Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if storedR.Status != model.RequestAllocated {
		t.Errorf("stored request status = %s, want allocated", storedR.Status)
	}
	d, err := s.Dispatches().Get(context.Background(), res.Dispatch.ID)
	if err != nil {
		t.Fatalf("get dispatch: %v", err)
	}
	if !d.Quantity.Equal(qty(t, "400")) {
		t.Errorf("dispatch quantity = %s, want 400", d.Quantity)
	}
}

func TestSQLiteCommitAllocation_Guards(t *testing.T) {
	s := newSQLite(t)
	r, b := seedMemory(t, s, "100")

	if _, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "500"))); !errors.Is(err, storage.ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	// The failed commit must not leave partial state behind.
	stored, err := s.Batches().Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !stored.Remaining.Equal(qty(t, "100")) {
		t.Errorf("remaining = %s, want 100", stored.Remaining)
	}

	c := commitFor(r, b, qty(t, "50"))
	c.BatchID = "missing"
	if _, err := s.CommitAllocation(context.Background(), c); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "50"))); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "50"))); !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSQLiteCommitAllocation_Concurrent(t *testing.T) {
	s := newSQLite(t)
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

func TestSQLiteListActiveByCommodity(t *testing.T) {
	s := newSQLite(t)
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

func TestSQLiteDispatchUpdate(t *testing.T) {
	s := newSQLite(t)
	r, b := seedMemory(t, s, "400")
	res, err := s.CommitAllocation(context.Background(), commitFor(r, b, qty(t, "100")))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	d := res.Dispatch
	d.Status = model.DispatchInTransit
	if err := s.Dispatches().Update(context.Background(), d); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, err := s.Dispatches().Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != model.DispatchInTransit {
		t.Errorf("status = %s, want in-transit", stored.Status)
	}

	if err := s.Dispatches().Update(context.Background(), model.Dispatch{ID: "missing", DispatchedAt: time.Now(), EstimatedDelivery: time.Now()}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
