package match

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/fulfillment/core/model"
)

// MatchScore is the composite of the four sub-scores for one (batch, request)
// pair. It is ephemeral and always recomputed on demand.
type MatchScore struct {
	RiskPriority      int `json:"risk_priority"`
	DemandFit         int `json:"demand_fit"`
	DeadlineProximity int `json:"deadline_proximity"`
	Utilization       int `json:"utilization"`
	Composite         int `json:"composite"` // weighted sum, rounded, clamped to [0,100]
}

// Weights controls the contribution of each sub-score to the composite.
type Weights struct {
	Risk        float64 `json:"risk"`
	DemandFit   float64 `json:"demand_fit"`
	Deadline    float64 `json:"deadline"`
	Utilization float64 `json:"utilization"`
}

// DefaultWeights returns the standard weighting: spoilage risk dominates,
// then demand fit, deadline pressure and lot utilization.
func DefaultWeights() Weights {
	return Weights{Risk: 0.40, DemandFit: 0.25, Deadline: 0.20, Utilization: 0.15}
}

// Validate checks the weights form a proper convex combination.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"risk": w.Risk, "demand_fit": w.DemandFit,
		"deadline": w.Deadline, "utilization": w.Utilization,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative", name)
		}
	}
	if sum := w.Risk + w.DemandFit + w.Deadline + w.Utilization; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// Scorer computes match scores for (batch, request) pairs.
type Scorer struct {
	weights    Weights
	classifier Classifier
}

// NewScorer builds a scorer with the given weights and classifier.
func NewScorer(w Weights, c Classifier) Scorer {
	return Scorer{weights: w, classifier: c}
}

// Score computes the composite match score in [0,100] for allocating the
// request from the batch. Pure function: neither argument is mutated.
func (s Scorer) Score(b model.InventoryBatch, r model.AllocationRequest, now time.Time) MatchScore {
	demand := s.classifier.Classify(r.Destination + " " + r.Notes)
	sc := MatchScore{
		RiskPriority:      riskPriorityScore(b.RiskScore),
		DemandFit:         demandFitScore(b.RiskTier(), demand),
		DeadlineProximity: deadlineScore(r.Deadline, now),
		Utilization:       utilizationScore(r.Quantity, b.Remaining),
	}
	composite := s.weights.Risk*float64(sc.RiskPriority) +
		s.weights.DemandFit*float64(sc.DemandFit) +
		s.weights.Deadline*float64(sc.DeadlineProximity) +
		s.weights.Utilization*float64(sc.Utilization)
	sc.Composite = clampScore(int(math.Round(composite)))
	return sc
}

// riskPriorityScore favours lots closest to spoilage so they clear first.
func riskPriorityScore(risk int) int {
	switch {
	case risk > 70:
		return 100
	case risk > 50:
		return 70
	case risk > 30:
		return 40
	default:
		return 20
	}
}

// demandFitScore compares the lot freshness tier with the buyer demand tier.
// An unknown demand tier is neutral.
func demandFitScore(tier model.RiskTier, demand DemandTier) int {
	if demand == DemandUnknown {
		return 50
	}
	// Both enums are ordered fresh < moderate < high, so the tier distance
	// measures the mismatch.
	distance := int(tier) - int(demand)
	if distance < 0 {
		distance = -distance
	}
	switch distance {
	case 0:
		return 100
	case 1:
		return 40
	default:
		return 10
	}
}

// deadlineScore rewards requests that must ship soon. A missing deadline is
// neutral; an overdue one counts as due today.
func deadlineScore(deadline *time.Time, now time.Time) int {
	if deadline == nil {
		return 50
	}
	days := deadline.Sub(now).Hours() / 24
	switch {
	case days <= 1:
		return 100
	case days <= 3:
		return 85
	case days <= 7:
		return 60
	default:
		return 30
	}
}

// utilizationScore rewards lots sized close to the request to reduce
// fragmentation. A lot smaller than the request scores proportionally to the
// share it could cover, so undersized lots rank below right-sized ones
// instead of saturating at 100.
func utilizationScore(requested, remaining decimal.Decimal) int {
	if remaining.Sign() <= 0 || requested.Sign() <= 0 {
		return 0
	}
	var ratio decimal.Decimal
	if remaining.Cmp(requested) < 0 {
		ratio = remaining.Div(requested)
	} else {
		ratio = requested.Div(remaining)
	}
	return clampScore(int(math.Round(ratio.InexactFloat64() * 100)))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
