// Package suggestion turns mined patterns into ranked, diversity-filtered
// task suggestions and manages their lifecycle: generation, context-gated
// refresh, and expiry cleanup.
package suggestion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/internal/mining"
	"tasksense/internal/storage"
	"tasksense/pkg/types"
)

// Engine generates suggestion candidates from stored patterns, including
// hybrid combinations of compatible patterns from different miners.
type Engine struct {
	cfg      config.SuggestionsConfig
	store    storage.PatternStore
	seqMiner *mining.SequentialMiner
	titles   TitleSource
	logger   logging.Logger
}

// NewEngine creates a suggestion engine.
func NewEngine(cfg config.SuggestionsConfig, store storage.PatternStore, seqMiner *mining.SequentialMiner, titles TitleSource, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		seqMiner: seqMiner,
		titles:   titles,
		logger:   logger.WithComponent("suggestion_engine"),
	}
}

// GenerateCandidates builds candidates from every pattern kind plus
// hybrid pairings, discarding anything below the minimum confidence.
// Store failures degrade to an empty candidate list, never an error.
func (e *Engine) GenerateCandidates(ctx context.Context, userCtx *types.UserContext) []*types.SuggestionCandidate {
	patterns, err := e.store.ListPatterns(ctx, userCtx.UserID, nil)
	if err != nil {
		e.logger.Error("failed to load patterns, generating nothing", "user_id", userCtx.UserID, "error", err)
		return nil
	}
	if len(patterns) == 0 {
		return nil
	}
	now := userCtx.Time()

	var candidates []*types.SuggestionCandidate
	byKind := make(map[types.PatternKind][]*types.Pattern)
	for _, p := range patterns {
		byKind[p.Kind] = append(byKind[p.Kind], p)
	}

	for _, p := range byKind[types.PatternKindTemporal] {
		if c := e.temporalCandidate(p, now); c != nil {
			candidates = append(candidates, c)
		}
	}
	if c := e.sequentialCandidate(byKind[types.PatternKindSequential], userCtx, now); c != nil {
		candidates = append(candidates, c)
	}
	for _, p := range byKind[types.PatternKindContextual] {
		if c := e.contextualCandidate(p, userCtx); c != nil {
			candidates = append(candidates, c)
		}
	}
	for _, p := range byKind[types.PatternKindFrequency] {
		if c := e.frequencyCandidate(p, now); c != nil {
			candidates = append(candidates, c)
		}
	}

	candidates = append(candidates, e.hybridCandidates(patterns, userCtx)...)

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Confidence >= e.cfg.MinConfidence {
			kept = append(kept, c)
		}
	}
	e.logger.Debug("candidate generation complete",
		"user_id", userCtx.UserID, "patterns", len(patterns), "candidates", len(kept))
	return kept
}

func (e *Engine) temporalCandidate(p *types.Pattern, now time.Time) *types.SuggestionCandidate {
	payload, ok := p.Payload.(*types.TemporalPayload)
	if !ok {
		e.logger.Warn("skipping temporal pattern with wrong payload", "pattern_id", p.ID)
		return nil
	}
	optimal := nextOccurrence(payload, now)
	return &types.SuggestionCandidate{
		Title:      e.titles.CategoryTitle(payload.Category),
		Category:   payload.Category,
		Priority:   types.PriorityMedium,
		Confidence: p.Confidence,
		Reasoning: []string{fmt.Sprintf("You complete %s tasks around %02d:00 on a %s basis",
			displayCategory(payload.Category), payload.TimeOfDay, payload.PeriodType)},
		BasedOn:          []types.PatternRef{{Kind: p.Kind, ID: p.ID}},
		Source:           types.SourceTemporal,
		OptimalTime:      &optimal,
		ContextRelevance: 0.5,
		PatternStrength:  p.Confidence,
		DiversityScore:   1,
	}
}

// nextOccurrence finds the next instant matching the pattern's time
// window at its period granularity.
func nextOccurrence(payload *types.TemporalPayload, now time.Time) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), payload.TimeOfDay, 0, 0, 0, now.Location())
	switch payload.PeriodType {
	case types.PeriodDaily:
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}
	case types.PeriodWeekly:
		daysAhead := (payload.DayOfWeek - int(now.Weekday()) + 7) % 7
		target = target.AddDate(0, 0, daysAhead)
		if !target.After(now) {
			target = target.AddDate(0, 0, 7)
		}
	case types.PeriodMonthly:
		day := now.Day()
		if payload.DayOfMonth != nil {
			day = *payload.DayOfMonth
		}
		target = time.Date(now.Year(), now.Month(), day, payload.TimeOfDay, 0, 0, 0, now.Location())
		if !target.After(now) {
			target = target.AddDate(0, 1, 0)
		}
	}
	return target
}

func (e *Engine) sequentialCandidate(patterns []*types.Pattern, userCtx *types.UserContext, now time.Time) *types.SuggestionCandidate {
	if len(patterns) == 0 || len(userCtx.RecentTaskTitles) == 0 {
		return nil
	}
	// Recent completion times are not part of the context contract;
	// treat the workflow as freshly active.
	step := e.seqMiner.NextInWorkflow(patterns, userCtx.RecentTaskTitles, now, now)
	if step == nil {
		return nil
	}
	return &types.SuggestionCandidate{
		Title:      e.titles.WorkflowTitle(step.NextTitle),
		Category:   step.Category,
		Priority:   types.PriorityHigh,
		Confidence: step.Confidence,
		Reasoning: []string{fmt.Sprintf("%q usually follows what you just finished", step.NextTitle)},
		BasedOn:          []types.PatternRef{{Kind: step.Pattern.Kind, ID: step.Pattern.ID}},
		Source:           types.SourceSequential,
		ContextRelevance: 0.5,
		PatternStrength:  step.Pattern.Confidence,
		DiversityScore:   1,
	}
}

func (e *Engine) contextualCandidate(p *types.Pattern, userCtx *types.UserContext) *types.SuggestionCandidate {
	payload, ok := p.Payload.(*types.ContextualPayload)
	if !ok {
		e.logger.Warn("skipping contextual pattern with wrong payload", "pattern_id", p.ID)
		return nil
	}
	match, applicable := mining.MatchContext(payload, userCtx)
	if !applicable || match <= 0 {
		return nil
	}
	return &types.SuggestionCandidate{
		Title:      e.titles.ContextTitle(payload.Category, string(payload.ContextType)),
		Category:   payload.Category,
		Priority:   types.PriorityMedium,
		Confidence: p.Confidence,
		Reasoning: []string{fmt.Sprintf("You often handle %s tasks in this %s",
			displayCategory(payload.Category), payload.ContextType)},
		BasedOn:          []types.PatternRef{{Kind: p.Kind, ID: p.ID}},
		Source:           types.SourceContextual,
		ContextRelevance: match,
		PatternStrength:  p.Confidence,
		DiversityScore:   1,
	}
}

func (e *Engine) frequencyCandidate(p *types.Pattern, now time.Time) *types.SuggestionCandidate {
	payload, ok := p.Payload.(*types.FrequencyPayload)
	if !ok {
		e.logger.Warn("skipping frequency pattern with wrong payload", "pattern_id", p.ID)
		return nil
	}
	// Only suggest once the usual interval has elapsed.
	due := p.LastOccurrence.Add(time.Duration(payload.IntervalHours * float64(time.Hour)))
	if now.Before(due) {
		return nil
	}
	return &types.SuggestionCandidate{
		Title:      e.titles.DueAgainTitle(payload.Category),
		Category:   payload.Category,
		Priority:   types.PriorityLow,
		Confidence: p.Confidence,
		Reasoning: []string{fmt.Sprintf("You complete a %s task about every %.0f hours",
			displayCategory(payload.Category), payload.IntervalHours)},
		BasedOn:          []types.PatternRef{{Kind: p.Kind, ID: p.ID}},
		Source:           types.SourceFrequency,
		OptimalTime:      &due,
		ContextRelevance: 0.5,
		PatternStrength:  p.Confidence,
		DiversityScore:   1,
	}
}

// hybridCandidates combines compatible patterns from different miners.
// Patterns are compatible when they share a category, or when they sit
// in different categories but declare overlapping time-of-day windows.
// Hybrid confidence is the mean of the constituents plus a bonus per
// extra pattern and a context-relevance bonus, capped.
func (e *Engine) hybridCandidates(patterns []*types.Pattern, userCtx *types.UserContext) []*types.SuggestionCandidate {
	byCategory := make(map[string][]*types.Pattern)
	for _, p := range patterns {
		cat := patternCategory(p)
		if cat == "" {
			continue
		}
		byCategory[cat] = append(byCategory[cat], p)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var out []*types.SuggestionCandidate
	for _, cat := range categories {
		group := byCategory[cat]
		kinds := make(map[types.PatternKind]bool)
		for _, p := range group {
			kinds[p.Kind] = true
		}
		if len(kinds) < 2 {
			continue
		}
		out = append(out, e.hybridFromGroup(cat, group, userCtx))
	}

	out = append(out, e.crossCategoryHybrids(patterns, userCtx)...)
	return out
}

// crossCategoryHybrids pairs patterns of different kinds and categories
// whose declared time windows intersect.
func (e *Engine) crossCategoryHybrids(patterns []*types.Pattern, userCtx *types.UserContext) []*types.SuggestionCandidate {
	timed := make([]*types.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if _, _, ok := declaredTimeRange(p); ok {
			timed = append(timed, p)
		}
	}
	sort.Slice(timed, func(i, j int) bool { return timed[i].ID < timed[j].ID })

	var out []*types.SuggestionCandidate
	for i := 0; i < len(timed); i++ {
		for j := i + 1; j < len(timed); j++ {
			a, b := timed[i], timed[j]
			if a.Kind == b.Kind || patternCategory(a) == patternCategory(b) {
				continue
			}
			aStart, aEnd, _ := declaredTimeRange(a)
			bStart, bEnd, _ := declaredTimeRange(b)
			if !timeRangesOverlap(aStart, aEnd, bStart, bEnd) {
				continue
			}
			// The stronger member names the suggestion.
			lead := a
			if b.Confidence > a.Confidence {
				lead = b
			}
			out = append(out, e.hybridFromGroup(patternCategory(lead), []*types.Pattern{a, b}, userCtx))
		}
	}
	return out
}

func (e *Engine) hybridFromGroup(cat string, group []*types.Pattern, userCtx *types.UserContext) *types.SuggestionCandidate {
	var confSum, contextSum float64
	contextN := 0
	refs := make([]types.PatternRef, 0, len(group))
	for _, p := range group {
		confSum += p.Confidence
		refs = append(refs, types.PatternRef{Kind: p.Kind, ID: p.ID})
		if payload, ok := p.Payload.(*types.ContextualPayload); ok {
			if match, applicable := mining.MatchContext(payload, userCtx); applicable {
				contextSum += match
				contextN++
			}
		}
	}

	confidence := confSum / float64(len(group))
	confidence += e.cfg.HybridPatternBonus * float64(len(group)-1)
	contextMatch := 0.5
	if contextN > 0 {
		contextMatch = contextSum / float64(contextN)
		confidence += contextMatch * e.cfg.HybridContextBonusMax
	}
	if confidence > e.cfg.HybridConfidenceCap {
		confidence = e.cfg.HybridConfidenceCap
	}

	return &types.SuggestionCandidate{
		Title:      e.titles.CategoryTitle(cat),
		Category:   cat,
		Priority:   types.PriorityHigh,
		Confidence: types.Clamp01(confidence),
		Reasoning: []string{fmt.Sprintf("Several habits point to %s tasks right now",
			displayCategory(cat))},
		BasedOn:          refs,
		Source:           types.SourceHybrid,
		ContextRelevance: contextMatch,
		PatternStrength:  confSum / float64(len(group)),
		DiversityScore:   1,
	}
}

// declaredTimeRange returns the hour window [start, end) a pattern
// declares, if any. Temporal patterns cover their 2-hour bucket and
// time-of-day contextual patterns cover their slot. end exceeds 24 when
// the window wraps past midnight.
func declaredTimeRange(p *types.Pattern) (start, end int, ok bool) {
	switch payload := p.Payload.(type) {
	case *types.TemporalPayload:
		return payload.TimeOfDay, payload.TimeOfDay + 2, true
	case *types.ContextualPayload:
		if payload.ContextType != types.ContextTypeTimeOfDay {
			return 0, 0, false
		}
		switch payload.TimeSlot {
		case types.SlotMorning:
			return 5, 12, true
		case types.SlotAfternoon:
			return 12, 17, true
		case types.SlotEvening:
			return 17, 21, true
		case types.SlotNight:
			return 21, 29, true
		}
	}
	return 0, 0, false
}

// timeRangesOverlap reports whether two hour windows intersect on the
// 24-hour clock, accounting for windows that wrap past midnight.
func timeRangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	for _, shift := range []int{-24, 0, 24} {
		if aStart+shift < bEnd && bStart < aEnd+shift {
			return true
		}
	}
	return false
}

func patternCategory(p *types.Pattern) string {
	switch payload := p.Payload.(type) {
	case *types.TemporalPayload:
		return payload.Category
	case *types.SequentialPayload:
		return payload.Category
	case *types.ContextualPayload:
		return payload.Category
	case *types.FrequencyPayload:
		return payload.Category
	}
	return ""
}
