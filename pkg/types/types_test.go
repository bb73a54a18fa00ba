package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	dayOfMonth := 15
	tests := []struct {
		name    string
		payload PatternPayload
	}{
		{
			name: "temporal",
			payload: &TemporalPayload{
				Category:   "errands",
				TimeOfDay:  8,
				DayOfWeek:  6,
				DayOfMonth: &dayOfMonth,
				PeriodType: PeriodWeekly,
			},
		},
		{
			name: "sequential",
			payload: &SequentialPayload{
				Sequence:    []string{"water plants", "take out trash", "vacuum"},
				Support:     0.4,
				AvgGapHours: 1.5,
				Category:    "chores",
			},
		},
		{
			name: "contextual location",
			payload: &ContextualPayload{
				ContextType: ContextTypeLocation,
				Category:    "shopping",
				LocationKey: "Whole Foods",
				Latitude:    37.774,
				Longitude:   -122.419,
			},
		},
		{
			name: "contextual weather",
			payload: &ContextualPayload{
				ContextType:      ContextTypeWeather,
				Category:         "outdoor",
				WeatherCondition: "sunny",
				TemperatureRange: "warm",
			},
		},
		{
			name: "frequency",
			payload: &FrequencyPayload{
				Category:      "fitness",
				IntervalHours: 48,
				Count:         12,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := MarshalPayload(tt.payload)
			require.NoError(t, err)

			decoded, err := UnmarshalPayload(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, decoded)
			assert.Equal(t, tt.payload.PayloadKind(), decoded.PayloadKind())
		})
	}
}

func TestUnmarshalPayloadMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{"},
		{"unknown kind", `{"version":1,"kind":"celestial","data":{}}`},
		{"missing version", `{"kind":"temporal","data":{}}`},
		{"future version", `{"version":99,"kind":"temporal","data":{}}`},
		{"bad data", `{"version":1,"kind":"temporal","data":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalPayload([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3.7, 1},
	}

	for _, tt := range tests {
		p := Pattern{Confidence: tt.in}
		p.ClampConfidence()
		assert.Equal(t, tt.want, p.Confidence)
	}
}

func TestPatternValidate(t *testing.T) {
	valid := Pattern{
		ID:     "p1",
		UserID: "u1",
		Kind:   PatternKindTemporal,
		Payload: &TemporalPayload{
			Category:   "errands",
			PeriodType: PeriodWeekly,
		},
	}
	assert.NoError(t, valid.Validate())

	mismatched := valid
	mismatched.Kind = PatternKindSequential
	assert.Error(t, mismatched.Validate())

	badKind := valid
	badKind.Kind = "astral"
	badKind.Payload = nil
	assert.Error(t, badKind.Validate())
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusAccepted))
	assert.True(t, StatusPending.CanTransitionTo(StatusRejected))
	assert.True(t, StatusPending.CanTransitionTo(StatusDismissed))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))

	for _, terminal := range []SuggestionStatus{StatusAccepted, StatusRejected, StatusDismissed} {
		for _, next := range []SuggestionStatus{StatusPending, StatusAccepted, StatusRejected, StatusDismissed} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s must be refused", terminal, next)
		}
	}
}

func TestSuggestionExpiryInvariant(t *testing.T) {
	now := time.Now().UTC()
	s := Suggestion{
		ID:        "s1",
		UserID:    "u1",
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(-time.Minute),
	}
	assert.Error(t, s.Validate())

	s.ExpiresAt = now.Add(2 * time.Hour)
	assert.NoError(t, s.Validate())
	assert.True(t, s.Active(now))
	assert.False(t, s.Active(now.Add(3*time.Hour)))
}

func TestLearningAdjustedMarker(t *testing.T) {
	s := Suggestion{
		BasedOn: []PatternRef{{Kind: PatternKindTemporal, ID: "p1"}},
	}
	assert.False(t, s.LearningAdjusted())

	s.MarkLearningAdjusted()
	assert.True(t, s.LearningAdjusted())

	// Marker is applied once and excluded from pattern ids.
	s.MarkLearningAdjusted()
	assert.Len(t, s.BasedOn, 2)
	assert.Equal(t, []string{"p1"}, s.PatternIDs())
}

func TestConfidenceBucket(t *testing.T) {
	tests := []struct {
		confidence float64
		bucket     int
	}{
		{0.0, 0},
		{0.19, 0},
		{0.2, 1},
		{0.55, 2},
		{0.7, 3},
		{0.95, 4},
		{1.0, 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bucket, ConfidenceBucket(tt.confidence), "confidence %v", tt.confidence)
	}

	assert.Equal(t, "60-80", BucketLabel(3))
	assert.InDelta(t, 0.7, BucketMidpoint(3), 1e-9)
}

func TestAdjustmentEMA(t *testing.T) {
	now := time.Now().UTC()
	adj := ConfidenceAdjustment{UserID: "u1", Bucket: 2}

	// First sample seeds the factor directly.
	adj.Apply(1.05, now)
	assert.InDelta(t, 1.05, adj.Factor, 1e-9)

	// Subsequent samples blend 0.8 old / 0.2 incoming.
	adj.Apply(0.95, now)
	assert.InDelta(t, 0.8*1.05+0.2*0.95, adj.Factor, 1e-9)
	assert.Equal(t, 2, adj.SampleCount)
}

func TestTimeSlots(t *testing.T) {
	assert.Equal(t, SlotMorning, TimeSlotForHour(8))
	assert.Equal(t, SlotAfternoon, TimeSlotForHour(13))
	assert.Equal(t, SlotEvening, TimeSlotForHour(19))
	assert.Equal(t, SlotNight, TimeSlotForHour(23))
	assert.Equal(t, SlotNight, TimeSlotForHour(3))

	assert.Equal(t, 0, SlotDistance(SlotMorning, SlotMorning))
	assert.Equal(t, 1, SlotDistance(SlotMorning, SlotAfternoon))
	// Circular: night is adjacent to morning.
	assert.Equal(t, 1, SlotDistance(SlotNight, SlotMorning))
	assert.Equal(t, 2, SlotDistance(SlotMorning, SlotEvening))
}

func TestLocationKeyPreference(t *testing.T) {
	named := GeoPoint{Latitude: 1.23456, Longitude: 2.34567, PlaceName: "Home", Address: "1 Main St"}
	assert.Equal(t, "Home", named.LocationKey())

	coords := GeoPoint{Latitude: 1.23456, Longitude: 2.34567, Address: "1 Main St"}
	assert.Equal(t, "1.235,2.346", coords.LocationKey())

	addressOnly := GeoPoint{Address: "1 Main St"}
	assert.Equal(t, "1 Main St", addressOnly.LocationKey())
}

func TestTemperatureRanges(t *testing.T) {
	assert.Equal(t, "freezing", TemperatureRangeFor(-4))
	assert.Equal(t, "cold", TemperatureRangeFor(5))
	assert.Equal(t, "mild", TemperatureRangeFor(15))
	assert.Equal(t, "warm", TemperatureRangeFor(25))
	assert.Equal(t, "hot", TemperatureRangeFor(35))
}
