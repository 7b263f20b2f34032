package rank

import (
	"fmt"
	"sort"
)

// ExplainMode selects explanation depth.
type ExplainMode string

const (
	// ExplainBasic returns only the top contributing factors.
	ExplainBasic ExplainMode = "basic"
	// ExplainEnhanced returns the full factor vector with adaptive deltas.
	ExplainEnhanced ExplainMode = "enhanced"
)

// basicFactorLimit caps the factor list in basic mode.
const basicFactorLimit = 3

// Explanation is the per-result ranking rationale.
type Explanation struct {
	Relevance float64  `json:"relevance"`
	Factors   []Factor `json:"factors"`
	Summary   string   `json:"summary"`
}

// Explain renders the rationale for a ranked candidate. Factors are ordered
// by absolute contribution; their sum tracks the final score monotonically
// but not linearly (boosts are multiplicative).
func Explain(c *Candidate, mode ExplainMode) Explanation {
	factors := make([]Factor, len(c.Factors))
	copy(factors, c.Factors)

	sort.SliceStable(factors, func(i, j int) bool {
		return abs(factors[i].Contribution) > abs(factors[j].Contribution)
	})

	if mode != ExplainEnhanced && len(factors) > basicFactorLimit {
		factors = factors[:basicFactorLimit]
	}

	return Explanation{
		Relevance: c.Relevance,
		Factors:   factors,
		Summary:   summarize(c, factors),
	}
}

func summarize(c *Candidate, factors []Factor) string {
	if len(factors) == 0 {
		return fmt.Sprintf("scored %.2f", c.Relevance)
	}
	top := factors[0]
	if len(factors) == 1 {
		return fmt.Sprintf("scored %.2f, driven by %s", c.Relevance, top.Name)
	}
	return fmt.Sprintf("scored %.2f, driven by %s with %d supporting factors",
		c.Relevance, top.Name, len(factors)-1)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
