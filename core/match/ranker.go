package match

import (
	"sort"
	"strings"
	"time"

	"github.com/agrilink/fulfillment/core/model"
)

// RankedBatch annotates a candidate lot with its computed score, the derived
// risk tier and whether the lot alone could cover the requested quantity.
type RankedBatch struct {
	Batch      model.InventoryBatch
	Score      MatchScore
	Tier       model.RiskTier
	Sufficient bool
}

// Ranker orders candidate lots for a request. Strictly advisory: it never
// selects or mutates anything, the operator keeps full discretion.
type Ranker struct {
	scorer Scorer
}

// NewRanker builds a ranker over the given scorer.
func NewRanker(s Scorer) Ranker {
	return Ranker{scorer: s}
}

// Rank scores every active batch whose commodity matches the request
// (case-insensitive) and returns the candidates in non-increasing score
// order. Equal scores keep their input order.
func (k Ranker) Rank(r model.AllocationRequest, batches []model.InventoryBatch, now time.Time) []RankedBatch {
	ranked := make([]RankedBatch, 0, len(batches))
	for _, b := range batches {
		if b.Status != model.BatchActive {
			continue
		}
		if !strings.EqualFold(b.Commodity, r.Commodity) {
			continue
		}
		ranked = append(ranked, RankedBatch{
			Batch:      b,
			Score:      k.scorer.Score(b, r, now),
			Tier:       b.RiskTier(),
			Sufficient: b.CanSupply(r.Quantity),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Composite > ranked[j].Score.Composite
	})
	return ranked
}
