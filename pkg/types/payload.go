package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadVersion is the current pattern payload envelope version.
const PayloadVersion = 1

// ErrMalformedPayload is returned when a stored pattern payload cannot be
// decoded. Callers treat the record as corrupt and skip it.
var ErrMalformedPayload = errors.New("malformed pattern payload")

// PatternPayload is the closed set of kind-specific pattern data. Each
// miner produces exactly one variant and the scorer matches exhaustively
// on the concrete type.
type PatternPayload interface {
	PayloadKind() PatternKind
}

// TemporalPayload describes a recurring time window for one category.
type TemporalPayload struct {
	Category   string     `json:"category"`
	TimeOfDay  int        `json:"time_of_day"` // 0..23, start of a 2h bucket
	DayOfWeek  int        `json:"day_of_week"` // 0..6, Sunday = 0
	DayOfMonth *int       `json:"day_of_month,omitempty"`
	PeriodType PeriodType `json:"period_type"`
}

// PayloadKind implements PatternPayload
func (p *TemporalPayload) PayloadKind() PatternKind { return PatternKindTemporal }

// SequentialPayload describes a frequent ordered task-title sequence.
type SequentialPayload struct {
	Sequence    []string `json:"sequence"`
	Support     float64  `json:"support"`
	AvgGapHours float64  `json:"avg_gap_hours"`
	Category    string   `json:"category"`
}

// PayloadKind implements PatternPayload
func (p *SequentialPayload) PayloadKind() PatternKind { return PatternKindSequential }

// ContextType represents the grouping dimension of a contextual pattern
type ContextType string

const (
	// ContextTypeLocation groups completions by rounded location
	ContextTypeLocation ContextType = "location"
	// ContextTypeTimeOfDay groups completions by time slot and category
	ContextTypeTimeOfDay ContextType = "time_of_day"
	// ContextTypeWeather groups completions by weather condition and temperature range
	ContextTypeWeather ContextType = "weather"
	// ContextTypeCalendar groups completions by calendar event type and category
	ContextTypeCalendar ContextType = "calendar"
)

// Valid returns true if the context type is valid
func (ct ContextType) Valid() bool {
	switch ct {
	case ContextTypeLocation, ContextTypeTimeOfDay, ContextTypeWeather, ContextTypeCalendar:
		return true
	}
	return false
}

// ContextualPayload describes a completion context correlation. Only the
// fields relevant to its ContextType are populated.
type ContextualPayload struct {
	ContextType ContextType `json:"context_type"`
	Category    string      `json:"category"`

	// Location context
	LocationKey string  `json:"location_key,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`

	// Time-of-day context
	TimeSlot TimeSlot `json:"time_slot,omitempty"`

	// Weather context
	WeatherCondition string `json:"weather_condition,omitempty"`
	TemperatureRange string `json:"temperature_range,omitempty"`

	// Calendar context
	EventType string `json:"event_type,omitempty"`
}

// PayloadKind implements PatternPayload
func (p *ContextualPayload) PayloadKind() PatternKind { return PatternKindContextual }

// FrequencyPayload describes raw completion frequency for one category.
type FrequencyPayload struct {
	Category      string  `json:"category"`
	IntervalHours float64 `json:"interval_hours"` // mean gap between completions
	Count         int     `json:"count"`
}

// PayloadKind implements PatternPayload
func (p *FrequencyPayload) PayloadKind() PatternKind { return PatternKindFrequency }

// payloadEnvelope is the versioned on-disk form of a pattern payload.
type payloadEnvelope struct {
	Version int             `json:"version"`
	Kind    PatternKind     `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

// MarshalPayload serializes a payload into its versioned envelope.
func MarshalPayload(p PatternPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedPayload)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload data: %w", err)
	}
	return json.Marshal(payloadEnvelope{
		Version: PayloadVersion,
		Kind:    p.PayloadKind(),
		Data:    data,
	})
}

// UnmarshalPayload deserializes a versioned envelope back into the
// concrete payload variant. Round-trips losslessly with MarshalPayload.
func UnmarshalPayload(raw []byte) (PatternPayload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Version <= 0 || env.Version > PayloadVersion {
		return nil, fmt.Errorf("%w: unsupported payload version %d", ErrMalformedPayload, env.Version)
	}

	var payload PatternPayload
	switch env.Kind {
	case PatternKindTemporal:
		payload = &TemporalPayload{}
	case PatternKindSequential:
		payload = &SequentialPayload{}
	case PatternKindContextual:
		payload = &ContextualPayload{}
	case PatternKindFrequency:
		payload = &FrequencyPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %q", ErrMalformedPayload, env.Kind)
	}

	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, nil
}
