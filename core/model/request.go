package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus tracks the fulfillment lifecycle of an allocation request.
type RequestStatus int

const (
	RequestPending RequestStatus = iota
	RequestReviewing
	RequestAllocated
	RequestDispatched
	RequestCompleted
	RequestCancelled
)

// String returns a human-readable representation of the request status.
func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestReviewing:
		return "reviewing"
	case RequestAllocated:
		return "allocated"
	case RequestDispatched:
		return "dispatched"
	case RequestCompleted:
		return "completed"
	case RequestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseRequestStatus converts a wire value into a RequestStatus.
func ParseRequestStatus(s string) (RequestStatus, error) {
	for _, st := range []RequestStatus{
		RequestPending, RequestReviewing, RequestAllocated,
		RequestDispatched, RequestCompleted, RequestCancelled,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return RequestPending, fmt.Errorf("unknown request status %q", s)
}

// IsTerminal reports whether the status admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// AllocationRequest represents buyer demand for a quantity of a commodity.
type AllocationRequest struct {
	ID          string
	Code        string // human-readable reference, e.g. REQ-4F2A91
	RequesterID string
	Commodity   string
	Variety     string // optional
	Quantity    decimal.Decimal
	Unit        string
	Deadline    *time.Time // optional delivery deadline
	Destination string
	Price       *decimal.Decimal // optional agreed price
	Notes       string
	Status      RequestStatus
	LocationID  string // optional preferred storage location
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks that the request carries the fields required before it can
// enter the lifecycle. Quantity must be strictly positive.
func (r AllocationRequest) Validate() error {
	if r.Commodity == "" {
		return fmt.Errorf("commodity is required")
	}
	if r.Quantity.Sign() <= 0 {
		return fmt.Errorf("quantity must be positive, got %s", r.Quantity)
	}
	if r.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	if r.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	return nil
}
