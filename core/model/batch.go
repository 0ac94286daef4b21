package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus tracks the lifecycle of an inventory lot.
type BatchStatus int

const (
	BatchActive BatchStatus = iota
	BatchDispatched
	BatchExpired
)

// String returns a human-readable representation of the batch status.
func (s BatchStatus) String() string {
	switch s {
	case BatchActive:
		return "active"
	case BatchDispatched:
		return "dispatched"
	case BatchExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseBatchStatus converts a wire value into a BatchStatus.
func ParseBatchStatus(s string) (BatchStatus, error) {
	for _, st := range []BatchStatus{BatchActive, BatchDispatched, BatchExpired} {
		if st.String() == s {
			return st, nil
		}
	}
	return BatchActive, fmt.Errorf("unknown batch status %q", s)
}

// RiskTier is a coarse spoilage-proximity classification derived from the
// batch risk score.
type RiskTier int

const (
	TierFresh    RiskTier = iota // risk score <= 30
	TierModerate                 // 31..70
	TierHigh                     // > 70, clear first
)

// String returns a human-readable representation of the risk tier.
func (t RiskTier) String() string {
	switch t {
	case TierFresh:
		return "fresh"
	case TierModerate:
		return "moderate"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// InventoryBatch is a discrete lot of a commodity held in a storage zone.
// Remaining is the only field this service mutates; every other attribute is
// owned by the intake process.
type InventoryBatch struct {
	ID            string
	LotCode       string
	Commodity     string
	Variety       string // optional
	Remaining     decimal.Decimal
	Unit          string
	IntakeDate    time.Time
	ShelfLifeDays int
	RiskScore     int // 0..100, higher means closer to spoilage
	Zone          string
	LocationID    string
	Status        BatchStatus
	DispatchedAt  *time.Time // set when the lot is fully depleted
}

// Validate checks that the batch attributes delivered by intake are sound.
func (b InventoryBatch) Validate() error {
	if b.LotCode == "" {
		return fmt.Errorf("lot code is required")
	}
	if b.Commodity == "" {
		return fmt.Errorf("commodity is required")
	}
	if b.Remaining.Sign() < 0 {
		return fmt.Errorf("remaining quantity cannot be negative, got %s", b.Remaining)
	}
	if b.RiskScore < 0 || b.RiskScore > 100 {
		return fmt.Errorf("risk score must be in [0,100], got %d", b.RiskScore)
	}
	return nil
}

// RiskTier maps the numeric risk score onto the coarse tier used when
// matching against demand.
func (b InventoryBatch) RiskTier() RiskTier {
	switch {
	case b.RiskScore > 70:
		return TierHigh
	case b.RiskScore > 30:
		return TierModerate
	default:
		return TierFresh
	}
}

// CanSupply reports whether the lot is active and holds at least qty.
func (b InventoryBatch) CanSupply(qty decimal.Decimal) bool {
	return b.Status == BatchActive && b.Remaining.Cmp(qty) >= 0
}
