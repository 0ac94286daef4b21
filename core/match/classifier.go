// Package match implements demand classification, batch scoring and the
// advisory ranking used by operators to choose a lot for a request. Nothing
// in this package mutates state; selection always remains a human decision.
package match

import (
	"strings"
)

// DemandTier is a coarse classification of the kind of buyer a request is
// destined for. Fresh buyers need long shelf life, high-consumption buyers
// can absorb stock that is close to spoiling.
type DemandTier int

const (
	DemandFresh DemandTier = iota
	DemandModerate
	DemandHigh
	DemandUnknown
)

// String returns a human-readable representation of the demand tier.
func (t DemandTier) String() string {
	switch t {
	case DemandFresh:
		return "fresh"
	case DemandModerate:
		return "moderate"
	case DemandHigh:
		return "high"
	default:
		return "unknown"
	}
}

// KeywordRule maps a destination keyword onto a demand tier. Rules are
// evaluated in order; the first match wins.
type KeywordRule struct {
	Keyword string
	Tier    DemandTier
}

// DefaultKeywordTable returns the built-in keyword table. Order matters.
func DefaultKeywordTable() []KeywordRule {
	return []KeywordRule{
		{"retail", DemandFresh},
		{"supermarket", DemandFresh},
		{"export", DemandFresh},
		{"hotel", DemandModerate},
		{"restaurant", DemandModerate},
		{"catering", DemandModerate},
		{"wholesale", DemandModerate},
		{"processing", DemandHigh},
		{"factory", DemandHigh},
		{"industrial", DemandHigh},
	}
}

// Classifier infers a demand tier from free-text destination and notes.
type Classifier struct {
	table []KeywordRule
}

// NewClassifier builds a classifier over the given ordered keyword table.
// The table is copied so callers cannot mutate it afterwards.
func NewClassifier(table []KeywordRule) Classifier {
	cp := make([]KeywordRule, len(table))
	copy(cp, table)
	return Classifier{table: cp}
}

// Classify performs a case-insensitive substring search over the text and
// returns the tier of the first matching rule, or DemandUnknown.
func (c Classifier) Classify(text string) DemandTier {
	lowered := strings.ToLower(text)
	for _, rule := range c.table {
		if strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			return rule.Tier
		}
	}
	return DemandUnknown
}
