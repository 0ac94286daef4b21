package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DispatchStatus tracks an outbound shipment. Transitions are applied only by
// explicit operator updates, never inferred.
type DispatchStatus int

const (
	DispatchPending DispatchStatus = iota
	DispatchInTransit
	DispatchDelivered
	DispatchCancelled
)

// String returns a human-readable representation of the dispatch status.
func (s DispatchStatus) String() string {
	switch s {
	case DispatchPending:
		return "pending"
	case DispatchInTransit:
		return "in-transit"
	case DispatchDelivered:
		return "delivered"
	case DispatchCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseDispatchStatus converts a wire value into a DispatchStatus.
func ParseDispatchStatus(s string) (DispatchStatus, error) {
	for _, st := range []DispatchStatus{
		DispatchPending, DispatchInTransit, DispatchDelivered, DispatchCancelled,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return DispatchPending, fmt.Errorf("unknown dispatch status %q", s)
}

// Dispatch links a deducted batch quantity to a destination.
type Dispatch struct {
	ID                string
	Code              string // e.g. DSP-8C11F0
	BatchID           string
	RequestID         string // optional, empty for ad-hoc shipments
	Destination       string
	Quantity          decimal.Decimal
	Unit              string
	Status            DispatchStatus
	DispatchedAt      time.Time
	EstimatedDelivery time.Time
}
