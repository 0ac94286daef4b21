package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/fulfillment/core/model"
)

// Event is the union of event types published on the bus.
type Event any

// AllocationCommitted is emitted after a fulfillment transaction succeeds.
type AllocationCommitted struct {
	RequestID  string
	BatchID    string
	DispatchID string
	Quantity   decimal.Decimal
	Depleted   bool
	At         time.Time
}

// RequestRejected is emitted when an operator cancels a request.
type RequestRejected struct {
	RequestID string
	Reason    string
	At        time.Time
}

// DispatchStatusChanged is emitted when a shipment status update is applied.
type DispatchStatusChanged struct {
	DispatchID string
	From       model.DispatchStatus
	To         model.DispatchStatus
	At         time.Time
}
