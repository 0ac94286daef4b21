// Package storage defines the persistence contracts consumed by the
// allocation core. Implementations live under infra/storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/fulfillment/core/model"
)

// Sentinel errors returned by repositories. The allocation layer wraps them
// into its typed errors.
var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidState indicates the record is not in a state that permits
	// the attempted mutation.
	ErrInvalidState = errors.New("storage: invalid state")
	// ErrInsufficient indicates the batch does not hold the requested
	// quantity. Returned by CommitAllocation, never after a partial write.
	ErrInsufficient = errors.New("storage: insufficient quantity")
	// ErrConflict indicates a uniqueness violation on insert.
	ErrConflict = errors.New("storage: conflict")
)

// RequestRepository persists allocation requests.
type RequestRepository interface {
	Insert(ctx context.Context, r model.AllocationRequest) error
	Get(ctx context.Context, id string) (model.AllocationRequest, error)
	Update(ctx context.Context, r model.AllocationRequest) error
	ListByStatus(ctx context.Context, status model.RequestStatus) ([]model.AllocationRequest, error)
}

// BatchRepository reads inventory lots. Writes outside CommitAllocation are
// limited to intake-style inserts; the remaining quantity is mutated only
// through the atomic commit.
type BatchRepository interface {
	Insert(ctx context.Context, b model.InventoryBatch) error
	Get(ctx context.Context, id string) (model.InventoryBatch, error)
	// ListActiveByCommodity returns active lots for the commodity
	// (case-insensitive), oldest intake first.
	ListActiveByCommodity(ctx context.Context, commodity string) ([]model.InventoryBatch, error)
}

// DispatchRepository persists shipment records. Inserts happen only inside
// CommitAllocation.
type DispatchRepository interface {
	Get(ctx context.Context, id string) (model.Dispatch, error)
	Update(ctx context.Context, d model.Dispatch) error
}

// AllocationCommit describes the fulfillment mutation to apply atomically.
// The dispatch record is fully built by the caller; the store persists it
// verbatim.
type AllocationCommit struct {
	RequestID string
	BatchID   string
	Quantity  decimal.Decimal
	Dispatch  model.Dispatch
	Now       time.Time
}

// AllocationResult carries the post-commit snapshots.
type AllocationResult struct {
	Request  model.AllocationRequest
	Batch    model.InventoryBatch
	Dispatch model.Dispatch
}

// Store groups the repositories with the atomic allocation commit.
//
// CommitAllocation re-checks every precondition and applies the whole
// mutation as one unit: the request must be pending or reviewing, the batch
// active with enough remaining quantity; then the quantity is deducted, the
// batch flipped to dispatched if depleted, the dispatch inserted and the
// request moved to allocated. Either everything commits or nothing does, and
// two concurrent commits against the same batch can never deduct more than
// the quantity actually held.
type Store interface {
	Requests() RequestRepository
	Batches() BatchRepository
	Dispatches() DispatchRepository
	CommitAllocation(ctx context.Context, c AllocationCommit) (AllocationResult, error)
	Close() error
}
