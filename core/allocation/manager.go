// Package allocation owns the request lifecycle and the transactions that
// commit or cancel an allocation. Ranking is advisory; every mutation flows
// through the Manager so that guards, metrics and notifications stay in one
// place.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agrilink/fulfillment/core/events"
	"github.com/agrilink/fulfillment/core/logger"
	"github.com/agrilink/fulfillment/core/match"
	coremetrics "github.com/agrilink/fulfillment/core/metrics"
	"github.com/agrilink/fulfillment/core/model"
	"github.com/agrilink/fulfillment/core/notify"
	"github.com/agrilink/fulfillment/core/storage"
	"github.com/agrilink/fulfillment/internal/eventbus"
)

// Manager executes the allocation operations against the store.
type Manager struct {
	store    storage.Store
	ranker   match.Ranker
	notifier notify.Notifier
	metrics  coremetrics.MetricsSink
	bus      *eventbus.Bus[events.Event]
	log      logger.Logger
	leadTime time.Duration
	now      func() time.Time
}

// NewManager creates a new manager. The notifier, sink and bus may be nil,
// in which case no-op implementations are used.
func NewManager(store storage.Store, ranker match.Ranker, notifier notify.Notifier,
	sink coremetrics.MetricsSink, bus *eventbus.Bus[events.Event], log logger.Logger, cfg Config) (*Manager, error) {
	if store == nil || log == nil {
		return nil, fmt.Errorf("allocation: nil parameter provided to NewManager")
	}
	cfg.SetDefaults()
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Manager{
		store:    store,
		ranker:   ranker,
		notifier: notifier,
		metrics:  sink,
		bus:      bus,
		log:      log,
		leadTime: time.Duration(cfg.DeliveryLeadHours) * time.Hour,
		now:      time.Now,
	}, nil
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Close releases resources held by the manager.
func (m *Manager) Close() error {
	if m.bus != nil {
		m.bus.Close()
	}
	if err := m.notifier.Close(); err != nil {
		return err
	}
	return m.store.Close()
}

// Submit validates and stores a new allocation request at status pending.
func (m *Manager) Submit(ctx context.Context, r model.AllocationRequest) (model.AllocationRequest, error) {
	if err := r.Validate(); err != nil {
		return model.AllocationRequest{}, &ValidationError{Reason: err.Error()}
	}
	now := m.now()
	r.ID = uuid.New().String()
	if r.Code == "" {
		r.Code = "REQ-" + shortRef(r.ID)
	}
	r.Status = model.RequestPending
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := m.store.Requests().Insert(ctx, r); err != nil {
		return model.AllocationRequest{}, fmt.Errorf("insert request: %w", err)
	}
	m.log.Infof("request %s submitted for %s %s %s", r.Code, r.Quantity, r.Unit, r.Commodity)
	return r, nil
}

// Get returns the request with the given identity.
func (m *Manager) Get(ctx context.Context, id string) (model.AllocationRequest, error) {
	r, err := m.store.Requests().Get(ctx, id)
	if err != nil {
		return model.AllocationRequest{}, m.wrapRequestErr(id, err)
	}
	return r, nil
}

// ListByStatus returns all requests in the given lifecycle state.
func (m *Manager) ListByStatus(ctx context.Context, status model.RequestStatus) ([]model.AllocationRequest, error) {
	return m.store.Requests().ListByStatus(ctx, status)
}

// Rank scores every eligible lot for the request and returns them ordered by
// non-increasing score. Read-only: nothing is selected or mutated.
func (m *Manager) Rank(ctx context.Context, requestID string) ([]match.RankedBatch, error) {
	r, err := m.store.Requests().Get(ctx, requestID)
	if err != nil {
		return nil, m.wrapRequestErr(requestID, err)
	}
	batches, err := m.store.Batches().ListActiveByCommodity(ctx, r.Commodity)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	ranked := m.ranker.Rank(r, batches, m.now())
	m.log.Debugw("ranked candidate lots", map[string]any{
		"request_id": requestID,
		"candidates": len(ranked),
	})
	return ranked, nil
}

// Review moves a pending request into the reviewing state.
func (m *Manager) Review(ctx context.Context, requestID string) (model.AllocationRequest, error) {
	r, err := m.store.Requests().Get(ctx, requestID)
	if err != nil {
		return model.AllocationRequest{}, m.wrapRequestErr(requestID, err)
	}
	if !CanTransition(r.Status, model.RequestReviewing) {
		return model.AllocationRequest{}, &InvalidStateError{
			Kind: "request", ID: requestID, State: r.Status.String(), Op: "review",
		}
	}
	r.Status = model.RequestReviewing
	r.UpdatedAt = m.now()
	if err := m.store.Requests().Update(ctx, r); err != nil {
		return model.AllocationRequest{}, fmt.Errorf("update request: %w", err)
	}
	return r, nil
}

// Approve runs the fulfillment transaction: it validates the preconditions,
// deducts the requested quantity from the explicitly chosen batch, creates
// the dispatch record and moves the request to allocated, all as one atomic
// storage commit. The outbound notification is best-effort and never rolls
// the commit back.
func (m *Manager) Approve(ctx context.Context, requestID, batchID string) (storage.AllocationResult, error) {
	start := m.now()
	res, err := m.approve(ctx, requestID, batchID)
	approvalsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	approvalLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return storage.AllocationResult{}, err
	}

	depleted := res.Batch.Status == model.BatchDispatched
	if m.bus != nil {
		m.bus.Publish(events.AllocationCommitted{
			RequestID:  res.Request.ID,
			BatchID:    res.Batch.ID,
			DispatchID: res.Dispatch.ID,
			Quantity:   res.Dispatch.Quantity,
			Depleted:   depleted,
			At:         res.Dispatch.DispatchedAt,
		})
	}
	if err := m.metrics.RecordAllocation([]coremetrics.AllocationRecord{{
		RequestID:   res.Request.ID,
		BatchID:     res.Batch.ID,
		DispatchID:  res.Dispatch.ID,
		Commodity:   res.Request.Commodity,
		Quantity:    res.Dispatch.Quantity,
		Depleted:    depleted,
		CommittedAt: res.Dispatch.DispatchedAt,
	}}); err != nil {
		m.log.Errorf("metrics error: %v", err)
	}
	m.notifyBestEffort(ctx, notify.Event{
		Kind:       notify.KindAllocated,
		RequestID:  res.Request.ID,
		BatchID:    res.Batch.ID,
		DispatchID: res.Dispatch.ID,
		Quantity:   res.Dispatch.Quantity,
		At:         res.Dispatch.DispatchedAt,
	})
	m.log.Infof("request %s allocated from lot %s, dispatch %s",
		res.Request.Code, res.Batch.LotCode, res.Dispatch.Code)
	return res, nil
}

func (m *Manager) approve(ctx context.Context, requestID, batchID string) (storage.AllocationResult, error) {
	if requestID == "" {
		return storage.AllocationResult{}, &ValidationError{Field: "request_id", Reason: "required"}
	}
	if batchID == "" {
		return storage.AllocationResult{}, &ValidationError{Field: "batch_id", Reason: "required"}
	}
	r, err := m.store.Requests().Get(ctx, requestID)
	if err != nil {
		return storage.AllocationResult{}, m.wrapRequestErr(requestID, err)
	}
	if !Approvable(r.Status) {
		return storage.AllocationResult{}, &InvalidStateError{
			Kind: "request", ID: requestID, State: r.Status.String(), Op: "approve",
		}
	}
	b, err := m.store.Batches().Get(ctx, batchID)
	if err != nil {
		return storage.AllocationResult{}, m.wrapBatchErr(batchID, err)
	}
	if b.Status != model.BatchActive {
		return storage.AllocationResult{}, &InvalidStateError{
			Kind: "batch", ID: batchID, State: b.Status.String(), Op: "allocate from",
		}
	}
	if b.Remaining.Cmp(r.Quantity) < 0 {
		return storage.AllocationResult{}, &InsufficientInventoryError{
			BatchID: batchID, Requested: r.Quantity, Remaining: b.Remaining,
		}
	}

	now := m.now()
	dispatchID := uuid.New().String()
	commit := storage.AllocationCommit{
		RequestID: requestID,
		BatchID:   batchID,
		Quantity:  r.Quantity,
		Now:       now,
		Dispatch: model.Dispatch{
			ID:                dispatchID,
			Code:              "DSP-" + shortRef(dispatchID),
			BatchID:           batchID,
			RequestID:         requestID,
			Destination:       r.Destination,
			Quantity:          r.Quantity,
			Unit:              r.Unit,
			Status:            model.DispatchPending,
			DispatchedAt:      now,
			EstimatedDelivery: now.Add(m.leadTime),
		},
	}
	// The store re-checks every precondition inside the same transaction
	// that mutates, so two concurrent approvals cannot both pass the
	// sufficiency check.
	res, err := m.store.CommitAllocation(ctx, commit)
	if err != nil {
		return storage.AllocationResult{}, m.wrapCommitErr(requestID, batchID, r, err)
	}
	return res, nil
}

// Reject cancels a pending or reviewing request, appending the reason to its
// notes. Requests that already committed inventory cannot be cancelled.
func (m *Manager) Reject(ctx context.Context, requestID, reason string) (model.AllocationRequest, error) {
	r, err := m.store.Requests().Get(ctx, requestID)
	if err != nil {
		return model.AllocationRequest{}, m.wrapRequestErr(requestID, err)
	}
	if !Rejectable(r.Status) {
		return model.AllocationRequest{}, &InvalidStateError{
			Kind: "request", ID: requestID, State: r.Status.String(), Op: "reject",
		}
	}
	now := m.now()
	r.Status = model.RequestCancelled
	r.UpdatedAt = now
	if reason != "" {
		if r.Notes == "" {
			r.Notes = reason
		} else {
			r.Notes = r.Notes + "; " + reason
		}
	}
	if err := m.store.Requests().Update(ctx, r); err != nil {
		return model.AllocationRequest{}, fmt.Errorf("update request: %w", err)
	}
	rejectionsTotal.Inc()
	if m.bus != nil {
		m.bus.Publish(events.RequestRejected{RequestID: requestID, Reason: reason, At: now})
	}
	if rr, ok := m.metrics.(coremetrics.RejectionRecorder); ok {
		if err := rr.RecordRejection(coremetrics.RejectionRecord{
			RequestID: requestID, Reason: reason, RejectedAt: now,
		}); err != nil {
			m.log.Errorf("metrics error: %v", err)
		}
	}
	m.notifyBestEffort(ctx, notify.Event{
		Kind:      notify.KindRejected,
		RequestID: requestID,
		Reason:    reason,
		At:        now,
	})
	m.log.Infof("request %s rejected: %s", r.Code, reason)
	return r, nil
}

// UpdateDispatchStatus applies an explicit operator status update to a
// shipment. No transition is inferred automatically.
func (m *Manager) UpdateDispatchStatus(ctx context.Context, dispatchID string, status model.DispatchStatus) (model.Dispatch, error) {
	if dispatchID == "" {
		return model.Dispatch{}, &ValidationError{Field: "dispatch_id", Reason: "required"}
	}
	d, err := m.store.Dispatches().Get(ctx, dispatchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Dispatch{}, &NotFoundError{Kind: "dispatch", ID: dispatchID}
		}
		return model.Dispatch{}, fmt.Errorf("get dispatch: %w", err)
	}
	from := d.Status
	d.Status = status
	if err := m.store.Dispatches().Update(ctx, d); err != nil {
		return model.Dispatch{}, fmt.Errorf("update dispatch: %w", err)
	}
	dispatchUpdates.WithLabelValues(status.String()).Inc()
	now := m.now()
	if m.bus != nil {
		m.bus.Publish(events.DispatchStatusChanged{
			DispatchID: dispatchID, From: from, To: status, At: now,
		})
	}
	m.notifyBestEffort(ctx, notify.Event{
		Kind:       notify.KindDispatchStatus,
		DispatchID: dispatchID,
		Status:     status.String(),
		At:         now,
	})
	m.log.Infof("dispatch %s moved %s -> %s", d.Code, from, status)
	return d, nil
}

// GetDispatch returns the shipment with the given identity.
func (m *Manager) GetDispatch(ctx context.Context, id string) (model.Dispatch, error) {
	d, err := m.store.Dispatches().Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Dispatch{}, &NotFoundError{Kind: "dispatch", ID: id}
		}
		return model.Dispatch{}, fmt.Errorf("get dispatch: %w", err)
	}
	return d, nil
}

// notifyBestEffort delivers the event and swallows failures: the side channel
// is explicitly non-essential to correctness.
func (m *Manager) notifyBestEffort(ctx context.Context, ev notify.Event) {
	if err := m.notifier.Publish(ctx, ev); err != nil {
		notifyFailures.Inc()
		depErr := &DependencyError{Op: "notify", Err: err}
		m.log.Warnf("%v", depErr)
	}
}

func (m *Manager) wrapRequestErr(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Kind: "request", ID: id}
	}
	return fmt.Errorf("get request: %w", err)
}

func (m *Manager) wrapBatchErr(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Kind: "batch", ID: id}
	}
	return fmt.Errorf("get batch: %w", err)
}

// wrapCommitErr maps storage sentinels from the atomic commit back onto the
// typed errors callers expect. The commit may observe a state that changed
// after the fast-path checks above.
func (m *Manager) wrapCommitErr(requestID, batchID string, r model.AllocationRequest, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &NotFoundError{Kind: "request or batch", ID: requestID + "/" + batchID}
	case errors.Is(err, storage.ErrInsufficient):
		return &InsufficientInventoryError{BatchID: batchID, Requested: r.Quantity}
	case errors.Is(err, storage.ErrInvalidState):
		return &InvalidStateError{Kind: "request or batch", ID: requestID + "/" + batchID, State: "changed", Op: "approve"}
	default:
		return fmt.Errorf("commit allocation: %w", err)
	}
}

func outcomeLabel(err error) string {
	switch err.(type) {
	case nil:
		return "committed"
	case *ValidationError:
		return "validation_error"
	case *NotFoundError:
		return "not_found"
	case *InvalidStateError:
		return "invalid_state"
	case *InsufficientInventoryError:
		return "insufficient_inventory"
	default:
		return "storage_error"
	}
}

// shortRef derives a compact human-readable reference from a UUID.
func shortRef(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 6 {
		hex = hex[:6]
	}
	return strings.ToUpper(hex)
}
