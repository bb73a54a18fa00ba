package mining

import (
	"fmt"
	"math"
	"sort"
	"time"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/pkg/types"
)

// Location match shape: completions within the same-place radius match
// fully, then the match decays linearly to zero over the next kilometer.
const (
	samePlaceRadiusKm   = 0.1
	locationDecaySpanKm = 1.0
)

// contextRecencyHalfDays is the recency half-life for contextual groups.
const contextRecencyHalfDays = 14.0

// ContextualEvent is a task completion enriched with the situation it
// happened in. Context fields are optional; events missing a dimension
// simply do not contribute to that dimension's groups.
type ContextualEvent struct {
	Event             types.CompletedTaskEvent
	Location          *types.GeoPoint
	Weather           *types.WeatherContext
	CalendarEventType string
}

// ContextualMiner correlates completions with location, time slot,
// weather, and calendar-event context.
type ContextualMiner struct {
	cfg    config.MiningConfig
	logger logging.Logger
}

// NewContextualMiner creates a contextual pattern miner.
func NewContextualMiner(cfg config.MiningConfig, logger logging.Logger) *ContextualMiner {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &ContextualMiner{cfg: cfg, logger: logger.WithComponent("contextual_miner")}
}

// contextGroup accumulates completions sharing one context key.
type contextGroup struct {
	payload    *types.ContextualPayload
	timestamps []time.Time
	categories map[string]int
}

// Mine groups enriched completions along four context dimensions and
// emits one pattern per group with enough members.
func (m *ContextualMiner) Mine(userID string, events []ContextualEvent, now time.Time) []*types.Pattern {
	if len(events) == 0 {
		return nil
	}

	groups := make(map[string]*contextGroup)
	for _, e := range events {
		t := e.Event.CompletedAt

		if key := e.Location.LocationKey(); key != "" {
			m.addToGroup(groups, "location|"+key, t, e.Event.Category, &types.ContextualPayload{
				ContextType: types.ContextTypeLocation,
				LocationKey: key,
				Latitude:    e.Location.Latitude,
				Longitude:   e.Location.Longitude,
			})
		}

		slot := types.TimeSlotForHour(t.Hour())
		m.addToGroup(groups, fmt.Sprintf("slot|%s|%s", slot, e.Event.Category), t, e.Event.Category, &types.ContextualPayload{
			ContextType: types.ContextTypeTimeOfDay,
			Category:    e.Event.Category,
			TimeSlot:    slot,
		})

		if e.Weather != nil && e.Weather.Condition != "" {
			tempRange := types.TemperatureRangeFor(e.Weather.TemperatureC)
			m.addToGroup(groups, fmt.Sprintf("weather|%s|%s", e.Weather.Condition, tempRange), t, e.Event.Category, &types.ContextualPayload{
				ContextType:      types.ContextTypeWeather,
				WeatherCondition: e.Weather.Condition,
				TemperatureRange: tempRange,
			})
		}

		if e.CalendarEventType != "" {
			m.addToGroup(groups, fmt.Sprintf("calendar|%s|%s", e.CalendarEventType, e.Event.Category), t, e.Event.Category, &types.ContextualPayload{
				ContextType: types.ContextTypeCalendar,
				Category:    e.Event.Category,
				EventType:   e.CalendarEventType,
			})
		}
	}

	var patterns []*types.Pattern
	for key, g := range groups {
		if len(g.timestamps) < m.cfg.MinOccurrences {
			continue
		}
		sort.Slice(g.timestamps, func(i, j int) bool { return g.timestamps[i].Before(g.timestamps[j]) })

		if g.payload.Category == "" {
			g.payload.Category = modalKey(g.categories)
		}

		last := g.timestamps[len(g.timestamps)-1]
		pattern := &types.Pattern{
			ID:             PatternID(userID, types.PatternKindContextual, key),
			UserID:         userID,
			Kind:           types.PatternKindContextual,
			Payload:        g.payload,
			Confidence:     m.groupConfidence(g, now),
			Frequency:      len(g.timestamps),
			LastOccurrence: last,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].ID < patterns[j].ID })
	m.logger.Debug("contextual mining complete", "user_id", userID, "patterns", len(patterns))
	return patterns
}

func (m *ContextualMiner) addToGroup(groups map[string]*contextGroup, key string, t time.Time, category string, payload *types.ContextualPayload) {
	g, ok := groups[key]
	if !ok {
		g = &contextGroup{payload: payload, categories: make(map[string]int)}
		groups[key] = g
	}
	g.timestamps = append(g.timestamps, t)
	g.categories[category]++
}

// groupConfidence blends frequency, timing consistency, and recency with
// weights that depend on the context dimension. Location groups weigh
// recency in; weather, calendar, and time-slot groups use only frequency
// and consistency.
func (m *ContextualMiner) groupConfidence(g *contextGroup, now time.Time) float64 {
	frequency := types.Clamp01(float64(len(g.timestamps)) / 10)
	consistency := timingConsistency(g.timestamps)

	if g.payload.ContextType == types.ContextTypeLocation {
		last := g.timestamps[len(g.timestamps)-1]
		days := now.Sub(last).Hours() / 24
		if days < 0 {
			days = 0
		}
		recency := math.Exp(-days / contextRecencyHalfDays)
		return types.Clamp01(frequency*m.cfg.LocationFrequencyWeight +
			consistency*m.cfg.LocationConsistencyWeight +
			recency*m.cfg.LocationRecencyWeight)
	}

	return types.Clamp01(frequency*m.cfg.ContextFrequencyWeight +
		consistency*m.cfg.ContextConsistencyWeight)
}

// timingConsistency is the inverse of normalized inter-occurrence
// variance: perfectly regular gaps score 1, chaotic gaps approach 0.
func timingConsistency(timestamps []time.Time) float64 {
	if len(timestamps) < 3 {
		return 0.5
	}
	gaps := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		gaps = append(gaps, timestamps[i].Sub(timestamps[i-1]).Hours())
	}
	var mean float64
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean <= 0 {
		return 0.5
	}
	var varSum float64
	for _, g := range gaps {
		d := g - mean
		varSum += d * d
	}
	cv2 := (varSum / float64(len(gaps))) / (mean * mean)
	return types.Clamp01(1 - cv2)
}

func modalKey(counts map[string]int) string {
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// MatchContext scores how well one contextual payload matches the
// current situation. The second return is false when the situation has
// no data for the payload's dimension, in which case the pattern does
// not participate in the overall match.
func MatchContext(payload *types.ContextualPayload, ctx *types.UserContext) (float64, bool) {
	if payload == nil || ctx == nil {
		return 0, false
	}
	switch payload.ContextType {
	case types.ContextTypeLocation:
		if ctx.Location == nil {
			return 0, false
		}
		stored := &types.GeoPoint{Latitude: payload.Latitude, Longitude: payload.Longitude, PlaceName: payload.LocationKey}
		if payload.LocationKey != "" && ctx.Location.LocationKey() == payload.LocationKey {
			return 1, true
		}
		d := ctx.Location.DistanceKm(stored)
		if d <= samePlaceRadiusKm {
			return 1, true
		}
		return types.Clamp01(1 - (d-samePlaceRadiusKm)/locationDecaySpanKm), true

	case types.ContextTypeTimeOfDay:
		slot := types.TimeSlotForHour(ctx.Time().Hour())
		return 1 - float64(types.SlotDistance(payload.TimeSlot, slot))/2, true

	case types.ContextTypeWeather:
		if ctx.Weather == nil {
			return 0, false
		}
		score := 0.0
		if ctx.Weather.Condition == payload.WeatherCondition {
			score += 0.7
		}
		if types.TemperatureRangeFor(ctx.Weather.TemperatureC) == payload.TemperatureRange {
			score += 0.3
		}
		return score, true

	case types.ContextTypeCalendar:
		if len(ctx.CalendarEvents) == 0 {
			return 0, false
		}
		if ctx.HasCalendarEventType(payload.EventType) {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// OverallContextMatch is the mean of applicable per-pattern match scores.
// With no applicable patterns it returns 0.5 (neutral).
func OverallContextMatch(patterns []*types.Pattern, ctx *types.UserContext) float64 {
	var sum float64
	n := 0
	for _, p := range patterns {
		payload, ok := p.Payload.(*types.ContextualPayload)
		if !ok {
			continue
		}
		if score, applicable := MatchContext(payload, ctx); applicable {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}
