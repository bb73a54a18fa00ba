package types

import "time"

// CompletedTaskEvent is a single task completion from the task-management
// collaborator. It is read-only input to the mining pipeline.
type CompletedTaskEvent struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	CompletedAt time.Time `json:"completed_at"`
	Priority    string    `json:"priority"`
}

// TimeSlot represents a coarse time-of-day slot
type TimeSlot string

const (
	// SlotMorning covers 05:00-11:59
	SlotMorning TimeSlot = "morning"
	// SlotAfternoon covers 12:00-16:59
	SlotAfternoon TimeSlot = "afternoon"
	// SlotEvening covers 17:00-20:59
	SlotEvening TimeSlot = "evening"
	// SlotNight covers 21:00-04:59
	SlotNight TimeSlot = "night"
)

// timeSlotOrder fixes the circular ordering of slots for distance math.
var timeSlotOrder = map[TimeSlot]int{
	SlotMorning:   0,
	SlotAfternoon: 1,
	SlotEvening:   2,
	SlotNight:     3,
}

// TimeSlotForHour maps an hour of day to its slot.
func TimeSlotForHour(hour int) TimeSlot {
	switch {
	case hour >= 5 && hour < 12:
		return SlotMorning
	case hour >= 12 && hour < 17:
		return SlotAfternoon
	case hour >= 17 && hour < 21:
		return SlotEvening
	default:
		return SlotNight
	}
}

// SlotDistance returns the circular distance between two slots (0..2).
func SlotDistance(a, b TimeSlot) int {
	ai, aok := timeSlotOrder[a]
	bi, bok := timeSlotOrder[b]
	if !aok || !bok {
		return 2
	}
	d := ai - bi
	if d < 0 {
		d = -d
	}
	if d > 2 {
		d = 4 - d
	}
	return d
}

// TemperatureRangeFor buckets a Celsius temperature into one of five ranges.
func TemperatureRangeFor(tempC float64) string {
	switch {
	case tempC < 0:
		return "freezing"
	case tempC < 10:
		return "cold"
	case tempC < 20:
		return "mild"
	case tempC < 30:
		return "warm"
	default:
		return "hot"
	}
}
