package suggestion

import (
	"sort"
	"strings"
	"time"

	"tasksense/internal/config"
	"tasksense/pkg/types"
)

// DiversityFilter walks a ranked candidate list and bounds how many
// accepted suggestions may share a category, a contributing pattern
// kind, or a near-identical title.
type DiversityFilter struct {
	cfg    config.SuggestionsConfig
	ranker *Ranker
}

// NewDiversityFilter creates a diversity filter that shares the ranker's
// weights for final re-scoring.
func NewDiversityFilter(cfg config.SuggestionsConfig, ranker *Ranker) *DiversityFilter {
	return &DiversityFilter{cfg: cfg, ranker: ranker}
}

// CategoryCap is the per-category admission limit for a batch size.
func CategoryCap(maxSuggestions int) int {
	limit := maxSuggestions / 3
	if limit < 2 {
		limit = 2
	}
	return limit
}

// KindCap is the per-pattern-kind admission limit for a batch size.
func KindCap(maxSuggestions int) int {
	limit := maxSuggestions / 4
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Apply filters ranked candidates down to at most maxSuggestions diverse
// entries, recomputes each accepted candidate's diversity term and final
// score, and returns the result sorted by final score.
func (f *DiversityFilter) Apply(ranked []*types.SuggestionCandidate, categoryPrefs map[string]float64, now time.Time) []*types.SuggestionCandidate {
	maxSuggestions := f.cfg.MaxSuggestions
	categoryCap := CategoryCap(maxSuggestions)
	kindCap := KindCap(maxSuggestions)

	categoryCounts := make(map[string]int)
	kindCounts := make(map[types.PatternKind]int)
	var accepted []*types.SuggestionCandidate

	for _, c := range ranked {
		if len(accepted) >= maxSuggestions {
			break
		}
		if categoryCounts[c.Category] >= categoryCap {
			continue
		}
		if kindOverLimit(c, kindCounts, kindCap) {
			continue
		}
		if tooSimilar(c, accepted, f.cfg.TitleSimilarityLimit) {
			continue
		}

		categoryPenalty := float64(categoryCounts[c.Category]) / float64(categoryCap)
		kindPenalty := maxKindPenalty(c, kindCounts, kindCap)
		c.DiversityScore = types.Clamp01(1 - (categoryPenalty*f.cfg.CategoryPenaltyWeight +
			kindPenalty*f.cfg.KindPenaltyWeight))
		f.ranker.Rescore(c, categoryPrefs, now)

		categoryCounts[c.Category]++
		for _, ref := range c.BasedOn {
			if ref.Kind.Valid() {
				kindCounts[ref.Kind]++
			}
		}
		accepted = append(accepted, c)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Score > accepted[j].Score
	})
	return accepted
}

func kindOverLimit(c *types.SuggestionCandidate, kindCounts map[types.PatternKind]int, kindCap int) bool {
	for _, ref := range c.BasedOn {
		if ref.Kind.Valid() && kindCounts[ref.Kind] >= kindCap {
			return true
		}
	}
	return false
}

func maxKindPenalty(c *types.SuggestionCandidate, kindCounts map[types.PatternKind]int, kindCap int) float64 {
	var worst float64
	for _, ref := range c.BasedOn {
		if !ref.Kind.Valid() {
			continue
		}
		penalty := float64(kindCounts[ref.Kind]) / float64(kindCap)
		if penalty > worst {
			worst = penalty
		}
	}
	return worst
}

func tooSimilar(c *types.SuggestionCandidate, accepted []*types.SuggestionCandidate, limit float64) bool {
	for _, a := range accepted {
		if TitleSimilarity(c.Title, a.Title) > limit {
			return true
		}
	}
	return false
}

// TitleSimilarity is word-overlap similarity: |common| / |union| over
// lowercased title words.
func TitleSimilarity(a, b string) float64 {
	wordsA := titleWords(a)
	wordsB := titleWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	union := make(map[string]bool, len(wordsA)+len(wordsB))
	common := 0
	for w := range wordsA {
		union[w] = true
	}
	for w := range wordsB {
		if wordsA[w] {
			common++
		}
		union[w] = true
	}
	return float64(common) / float64(len(union))
}

func titleWords(title string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(title)) {
		out[w] = true
	}
	return out
}
