package types

import (
	"fmt"
	"math"
	"time"
)

// GeoPoint is a user location with optional semantic labels.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceName string  `json:"place_name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// LocationKey returns the grouping key for this point: place name when
// available, otherwise coordinates rounded to roughly 100m, otherwise the
// street address.
func (g *GeoPoint) LocationKey() string {
	if g == nil {
		return ""
	}
	if g.PlaceName != "" {
		return g.PlaceName
	}
	if g.Latitude != 0 || g.Longitude != 0 {
		return fmt.Sprintf("%.3f,%.3f", g.Latitude, g.Longitude)
	}
	return g.Address
}

// DistanceKm returns the great-circle distance to another point.
func (g *GeoPoint) DistanceKm(other *GeoPoint) float64 {
	if g == nil || other == nil {
		return math.Inf(1)
	}
	const earthRadiusKm = 6371.0
	lat1 := g.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - g.Latitude) * math.Pi / 180
	dLng := (other.Longitude - g.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// WeatherContext is the weather at suggestion or completion time.
type WeatherContext struct {
	Condition    string  `json:"condition"`
	TemperatureC float64 `json:"temperature_c"`
}

// CalendarEvent is a calendar entry visible at suggestion time.
type CalendarEvent struct {
	EventType string    `json:"event_type"`
	Title     string    `json:"title,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// UserContext is the situation a generation or refresh cycle runs in.
type UserContext struct {
	UserID             string          `json:"user_id"`
	Now                time.Time       `json:"now"`
	Location           *GeoPoint       `json:"location,omitempty"`
	RecentTaskTitles   []string        `json:"recent_task_titles,omitempty"`
	CompletedTaskCount int             `json:"completed_task_count"`
	Weather            *WeatherContext `json:"weather,omitempty"`
	CalendarEvents     []CalendarEvent `json:"calendar_events,omitempty"`
	Device             string          `json:"device,omitempty"`
}

// Time returns the context's reference instant, defaulting to wall time.
func (uc *UserContext) Time() time.Time {
	if uc == nil || uc.Now.IsZero() {
		return time.Now().UTC()
	}
	return uc.Now
}

// HasCalendarEventType reports whether an event of the given type is present.
func (uc *UserContext) HasCalendarEventType(eventType string) bool {
	if uc == nil {
		return false
	}
	for i := range uc.CalendarEvents {
		if uc.CalendarEvents[i].EventType == eventType {
			return true
		}
	}
	return false
}
