package config

import (
	"fmt"

	"github.com/agrilink/fulfillment/core/match"
)

// KeywordRuleConfig is the wire form of one classifier keyword rule.
type KeywordRuleConfig struct {
	Keyword string `json:"keyword"`
	Tier    string `json:"tier"` // fresh, moderate or high
}

// MatchConfig tunes the scorer weights and the classifier keyword table.
// An empty keyword list keeps the built-in table.
type MatchConfig struct {
	Weights  match.Weights       `json:"weights"`
	Keywords []KeywordRuleConfig `json:"keywords"`
}

// SetDefaults fills zero-valued fields.
func (c *MatchConfig) SetDefaults() {
	if c.Weights == (match.Weights{}) {
		c.Weights = match.DefaultWeights()
	}
}

// Validate checks the weights and the keyword tiers.
func (c MatchConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	for _, r := range c.Keywords {
		if r.Keyword == "" {
			return fmt.Errorf("keyword rule with empty keyword")
		}
		if _, err := parseDemandTier(r.Tier); err != nil {
			return err
		}
	}
	return nil
}

// KeywordTable converts the configured rules into the classifier table, or
// returns the default table when no rules are configured.
func (c MatchConfig) KeywordTable() []match.KeywordRule {
	if len(c.Keywords) == 0 {
		return match.DefaultKeywordTable()
	}
	table := make([]match.KeywordRule, 0, len(c.Keywords))
	for _, r := range c.Keywords {
		tier, _ := parseDemandTier(r.Tier)
		table = append(table, match.KeywordRule{Keyword: r.Keyword, Tier: tier})
	}
	return table
}

func parseDemandTier(s string) (match.DemandTier, error) {
	switch s {
	case "fresh":
		return match.DemandFresh, nil
	case "moderate":
		return match.DemandModerate, nil
	case "high":
		return match.DemandHigh, nil
	default:
		return match.DemandUnknown, fmt.Errorf("unknown demand tier %q", s)
	}
}
