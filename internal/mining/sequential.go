package mining

import (
	"math"
	"sort"
	"strings"
	"time"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/pkg/types"
)

// sequenceKeySep joins titles into a grouping key. Task titles containing
// the separator are rare enough that collisions are acceptable.
const sequenceKeySep = "␟"

// workflowRecencyHalfHours controls the exp decay of the workflow boost.
const workflowRecencyHalfHours = 12.0

// SequentialMiner mines frequent contiguous task-title subsequences
// (workflows) from chronological completion order.
type SequentialMiner struct {
	cfg    config.MiningConfig
	logger logging.Logger
}

// NewSequentialMiner creates a sequential pattern miner.
func NewSequentialMiner(cfg config.MiningConfig, logger logging.Logger) *SequentialMiner {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &SequentialMiner{cfg: cfg, logger: logger.WithComponent("sequential_miner")}
}

// extracted is one observed subsequence occurrence.
type extracted struct {
	titles   []string
	gaps     []float64 // hours between consecutive completions
	category string    // category of the final task
}

// Mine extracts all contiguous subsequences of configured length whose
// consecutive gaps stay within the max gap, then keeps sequences with
// enough support and association-rule confidence.
func (m *SequentialMiner) Mine(userID string, events []types.CompletedTaskEvent, now time.Time) []*types.Pattern {
	if len(events) < m.cfg.MinSequenceLen {
		return nil
	}

	sorted := make([]types.CompletedTaskEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CompletedAt.Before(sorted[j].CompletedAt)
	})

	subsequences := m.extract(sorted)
	if len(subsequences) == 0 {
		return nil
	}

	// Count occurrences per exact title sequence, antecedents included.
	counts := make(map[string]int)
	byKey := make(map[string][]extracted)
	for _, sub := range subsequences {
		key := strings.Join(sub.titles, sequenceKeySep)
		counts[key]++
		byKey[key] = append(byKey[key], sub)
	}

	total := float64(len(subsequences))
	var patterns []*types.Pattern
	for key, occurrences := range byKey {
		count := counts[key]
		support := float64(count) / total
		if support < m.cfg.MinSupport {
			continue
		}

		titles := occurrences[0].titles
		antecedentKey := strings.Join(titles[:len(titles)-1], sequenceKeySep)
		antecedentCount := counts[antecedentKey]
		if len(titles) == m.cfg.MinSequenceLen {
			// Length-2 sequences have a single-title antecedent which is
			// never extracted as a subsequence; count it directly.
			antecedentCount = countTitle(sorted, titles[0])
		}
		if antecedentCount == 0 {
			continue
		}
		confidence := float64(count) / float64(antecedentCount)
		if confidence < m.cfg.MinRuleConfidence {
			continue
		}

		var gapSum float64
		var gapN int
		lastSeen := time.Time{}
		for _, occ := range occurrences {
			for _, g := range occ.gaps {
				gapSum += g
				gapN++
			}
		}
		for i, e := range sorted {
			if e.Title == titles[len(titles)-1] && i >= len(titles)-1 {
				if e.CompletedAt.After(lastSeen) {
					lastSeen = e.CompletedAt
				}
			}
		}
		avgGap := 0.0
		if gapN > 0 {
			avgGap = gapSum / float64(gapN)
		}

		pattern := &types.Pattern{
			ID:     PatternID(userID, types.PatternKindSequential, key),
			UserID: userID,
			Kind:   types.PatternKindSequential,
			Payload: &types.SequentialPayload{
				Sequence:    titles,
				Support:     support,
				AvgGapHours: avgGap,
				Category:    modalCategory(occurrences),
			},
			Confidence:     types.Clamp01(confidence),
			Frequency:      count,
			LastOccurrence: lastSeen,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].ID < patterns[j].ID })
	m.logger.Debug("sequential mining complete", "user_id", userID,
		"subsequences", len(subsequences), "patterns", len(patterns))
	return patterns
}

// extract enumerates contiguous subsequences of length min..max whose
// consecutive gaps are each within the configured maximum.
func (m *SequentialMiner) extract(sorted []types.CompletedTaskEvent) []extracted {
	var out []extracted
	for start := 0; start < len(sorted); start++ {
		for length := m.cfg.MinSequenceLen; length <= m.cfg.MaxSequenceLen; length++ {
			end := start + length
			if end > len(sorted) {
				break
			}
			window := sorted[start:end]
			gaps, ok := windowGaps(window, m.cfg.MaxGapHours)
			if !ok {
				break
			}
			titles := make([]string, len(window))
			for i, e := range window {
				titles[i] = e.Title
			}
			out = append(out, extracted{
				titles:   titles,
				gaps:     gaps,
				category: window[len(window)-1].Category,
			})
		}
	}
	return out
}

func windowGaps(window []types.CompletedTaskEvent, maxGapHours float64) ([]float64, bool) {
	gaps := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		gap := window[i].CompletedAt.Sub(window[i-1].CompletedAt).Hours()
		if gap > maxGapHours {
			return nil, false
		}
		gaps = append(gaps, gap)
	}
	return gaps, true
}

func countTitle(events []types.CompletedTaskEvent, title string) int {
	n := 0
	for _, e := range events {
		if e.Title == title {
			n++
		}
	}
	return n
}

func modalCategory(occurrences []extracted) string {
	counts := make(map[string]int)
	best, bestN := "", 0
	for _, occ := range occurrences {
		counts[occ.category]++
		if counts[occ.category] > bestN ||
			(counts[occ.category] == bestN && occ.category < best) {
			best, bestN = occ.category, counts[occ.category]
		}
	}
	return best
}

// WorkflowStep is the next predicted task in a matched workflow.
type WorkflowStep struct {
	NextTitle  string
	Category   string
	Confidence float64
	Pattern    *types.Pattern
}

// NextInWorkflow finds the longest stored sequence whose prefix matches
// the suffix of the user's recently completed task titles and returns
// its next element, with confidence boosted by how recently the last
// completion happened.
func (m *SequentialMiner) NextInWorkflow(patterns []*types.Pattern, recentTitles []string, lastCompletion, now time.Time) *WorkflowStep {
	if len(recentTitles) == 0 {
		return nil
	}

	var best *WorkflowStep
	bestPrefix := 0
	for _, p := range patterns {
		payload, ok := p.Payload.(*types.SequentialPayload)
		if !ok || len(payload.Sequence) < 2 {
			continue
		}
		prefix := matchedPrefix(payload.Sequence, recentTitles)
		if prefix == 0 || prefix >= len(payload.Sequence) {
			continue
		}
		if prefix > bestPrefix || (prefix == bestPrefix && best != nil && p.Confidence > best.Pattern.Confidence) {
			bestPrefix = prefix
			best = &WorkflowStep{
				NextTitle:  payload.Sequence[prefix],
				Category:   payload.Category,
				Confidence: p.Confidence,
				Pattern:    p,
			}
		}
	}
	if best == nil {
		return nil
	}

	hours := now.Sub(lastCompletion).Hours()
	if hours < 0 {
		hours = 0
	}
	boost := math.Exp(-hours / workflowRecencyHalfHours)
	best.Confidence = types.Clamp01(best.Confidence * boost)
	return best
}

// matchedPrefix returns the longest n such that the first n elements of
// sequence equal the last n recent titles, leaving at least one element
// of the sequence unmatched.
func matchedPrefix(sequence, recent []string) int {
	maxN := len(sequence) - 1
	if len(recent) < maxN {
		maxN = len(recent)
	}
	for n := maxN; n > 0; n-- {
		match := true
		for i := 0; i < n; i++ {
			if sequence[i] != recent[len(recent)-n+i] {
				match = false
				break
			}
		}
		if match {
			return n
		}
	}
	return 0
}
