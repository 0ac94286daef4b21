// Package notify defines the best-effort notification contract. Delivery
// failures are logged by the caller and never abort the transaction that
// triggered them.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies the notification type on the wire.
type EventKind string

const (
	KindAllocated      EventKind = "allocation.committed"
	KindRejected       EventKind = "allocation.rejected"
	KindDispatchStatus EventKind = "dispatch.status_changed"
)

// Event is the payload delivered to downstream consumers.
type Event struct {
	Kind       EventKind       `json:"kind"`
	RequestID  string          `json:"request_id,omitempty"`
	BatchID    string          `json:"batch_id,omitempty"`
	DispatchID string          `json:"dispatch_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity,omitempty"`
	Status     string          `json:"status,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	At         time.Time       `json:"at"`
}

// Notifier delivers events to an external side channel.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
