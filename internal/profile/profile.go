package profile

import "math"

// Segment is one timed portion of a workout. Power levels are percentages of
// the rider's FTP; a segment with equal start and end percentages is flat,
// otherwise the target ramps linearly across the segment.
type Segment struct {
	DurationMinutes float64
	StartPercent    float64
	EndPercent      float64
}

// Seconds returns the segment length in whole seconds, floored to 1 so a
// malformed zero-length segment can never stall the resolver walk.
func (s Segment) Seconds() int {
	secs := int(math.Round(s.DurationMinutes * 60))
	if secs < 1 {
		return 1
	}
	return secs
}

// Profile is an ordered list of segments describing a workout. Immutable once
// handed to the engine.
type Profile struct {
	Name     string
	Segments []Segment
}

// TotalSeconds returns the programmed length of the profile in seconds.
func (p *Profile) TotalSeconds() int {
	total := 0
	for _, s := range p.Segments {
		total += s.Seconds()
	}
	return total
}

// Catalog holds the built-in workouts, selectable by name.
var Catalog = []Profile{
	{
		Name: "30 Min Endurance",
		Segments: []Segment{
			{DurationMinutes: 5, StartPercent: 50, EndPercent: 50},  // Warmup
			{DurationMinutes: 20, StartPercent: 65, EndPercent: 65}, // Main set
			{DurationMinutes: 5, StartPercent: 50, EndPercent: 50},  // Cooldown
		},
	},
	{
		Name: "5x5 Threshold Intervals",
		Segments: []Segment{
			{DurationMinutes: 5, StartPercent: 50, EndPercent: 50}, // Warmup
			{DurationMinutes: 5, StartPercent: 100, EndPercent: 100},
			{DurationMinutes: 3, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 5, StartPercent: 100, EndPercent: 100},
			{DurationMinutes: 3, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 5, StartPercent: 100, EndPercent: 100},
			{DurationMinutes: 3, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 5, StartPercent: 100, EndPercent: 100},
			{DurationMinutes: 3, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 5, StartPercent: 100, EndPercent: 100},
			{DurationMinutes: 5, StartPercent: 50, EndPercent: 50}, // Cooldown
		},
	},
	{
		Name: "VO2max 4x4",
		Segments: []Segment{
			{DurationMinutes: 10, StartPercent: 50, EndPercent: 50}, // Warmup
			{DurationMinutes: 4, StartPercent: 120, EndPercent: 120},
			{DurationMinutes: 4, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 4, StartPercent: 120, EndPercent: 120},
			{DurationMinutes: 4, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 4, StartPercent: 120, EndPercent: 120},
			{DurationMinutes: 4, StartPercent: 50, EndPercent: 50},
			{DurationMinutes: 4, StartPercent: 120, EndPercent: 120},
			{DurationMinutes: 10, StartPercent: 50, EndPercent: 50}, // Cooldown
		},
	},
	{
		Name: "Ramp Test",
		Segments: []Segment{
			{DurationMinutes: 5, StartPercent: 45, EndPercent: 45},
			{DurationMinutes: 20, StartPercent: 60, EndPercent: 150}, // Ramp to exhaustion
			{DurationMinutes: 5, StartPercent: 40, EndPercent: 40},
		},
	},
	{
		Name: "Recovery Spin",
		Segments: []Segment{
			{DurationMinutes: 10, StartPercent: 40, EndPercent: 45}, // Gradual warmup
			{DurationMinutes: 25, StartPercent: 45, EndPercent: 45}, // Easy spinning
			{DurationMinutes: 10, StartPercent: 45, EndPercent: 35}, // Gradual cooldown
		},
	},
}

// CatalogByName returns the built-in profile with the given name.
func CatalogByName(name string) (*Profile, bool) {
	for i := range Catalog {
		if Catalog[i].Name == name {
			return &Catalog[i], true
		}
	}
	return nil, false
}
