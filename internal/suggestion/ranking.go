package suggestion

import (
	"math"
	"sort"
	"time"

	"tasksense/internal/config"
	"tasksense/pkg/types"
)

// timingDecayHours controls the exponential timing decay; the term is
// effectively zero 24 hours away from the optimal instant.
const timingDecayHours = 6.0

// Ranker scores candidates with a six-term weighted sum and sorts them
// descending.
type Ranker struct {
	cfg config.SuggestionsConfig
}

// NewRanker creates a candidate ranker.
func NewRanker(cfg config.SuggestionsConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Rank computes each candidate's score in place and returns the slice
// sorted by score descending. categoryPrefs maps category to historical
// positive-feedback ratio; missing categories are neutral.
func (r *Ranker) Rank(candidates []*types.SuggestionCandidate, categoryPrefs map[string]float64, now time.Time) []*types.SuggestionCandidate {
	for _, c := range candidates {
		c.Score = r.score(c, categoryPrefs, now)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

func (r *Ranker) score(c *types.SuggestionCandidate, categoryPrefs map[string]float64, now time.Time) float64 {
	relevance := c.Confidence
	timing := timingScore(c.OptimalTime, now)
	pref, ok := categoryPrefs[c.Category]
	if !ok {
		pref = 0.5
	}
	contextRelevance := c.ContextRelevance

	return relevance*r.cfg.RelevanceWeight +
		timing*r.cfg.TimingWeight +
		pref*r.cfg.CategoryPreferenceWeight +
		contextRelevance*r.cfg.ContextWeight +
		c.PatternStrength*r.cfg.PatternStrengthWeight +
		c.DiversityScore*r.cfg.DiversityWeight
}

// Rescore re-sums a candidate's total after the diversity filter has
// replaced its diversity term.
func (r *Ranker) Rescore(c *types.SuggestionCandidate, categoryPrefs map[string]float64, now time.Time) {
	c.Score = r.score(c, categoryPrefs, now)
}

// timingScore decays exponentially with distance from the optimal
// instant; no optimal instant is neutral.
func timingScore(optimal *time.Time, now time.Time) float64 {
	if optimal == nil {
		return 0.5
	}
	hours := math.Abs(optimal.Sub(now).Hours())
	return math.Exp(-hours / timingDecayHours)
}
