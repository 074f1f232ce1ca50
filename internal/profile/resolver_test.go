package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_EmptyProfile(t *testing.T) {
	_, ok := Resolve(&Profile{}, 0, 200)
	assert.False(t, ok)

	_, ok = Resolve(nil, 0, 200)
	assert.False(t, ok)
}

func TestResolve_FlatSegment(t *testing.T) {
	p := &Profile{Segments: []Segment{{DurationMinutes: 1, StartPercent: 50, EndPercent: 50}}}

	for _, sec := range []int{0, 30, 59} {
		res, ok := Resolve(p, sec, 200)
		require.True(t, ok, "t=%d", sec)
		assert.Equal(t, 0, res.SegmentIndex)
		assert.Equal(t, 0, res.SegmentStartSec)
		assert.Equal(t, 60, res.SegmentEndSec)
		assert.Equal(t, 100, res.TargetWatts, "t=%d", sec)
	}
}

func TestResolve_BoundaryBelongsToNextSegment(t *testing.T) {
	p := &Profile{Segments: []Segment{
		{DurationMinutes: 1, StartPercent: 50, EndPercent: 50},
		{DurationMinutes: 1, StartPercent: 100, EndPercent: 100},
	}}

	res, ok := Resolve(p, 59, 200)
	require.True(t, ok)
	assert.Equal(t, 0, res.SegmentIndex)
	assert.Equal(t, 100, res.TargetWatts)

	res, ok = Resolve(p, 60, 200)
	require.True(t, ok)
	assert.Equal(t, 1, res.SegmentIndex)
	assert.Equal(t, 60, res.SegmentStartSec)
	assert.Equal(t, 120, res.SegmentEndSec)
	assert.Equal(t, 200, res.TargetWatts)
}

func TestResolve_PastEndReturnsNoTarget(t *testing.T) {
	p := &Profile{Segments: []Segment{
		{DurationMinutes: 1, StartPercent: 50, EndPercent: 50},
		{DurationMinutes: 1, StartPercent: 100, EndPercent: 100},
	}}

	_, ok := Resolve(p, 120, 200)
	assert.False(t, ok)

	// Values past the total clamp to the total, which is still no-target.
	_, ok = Resolve(p, 10000, 200)
	assert.False(t, ok)
}

func TestResolve_NegativeElapsedClampsToZero(t *testing.T) {
	p := &Profile{Segments: []Segment{{DurationMinutes: 1, StartPercent: 80, EndPercent: 120}}}

	res, ok := Resolve(p, -5, 100)
	require.True(t, ok)
	assert.Equal(t, 80, res.TargetWatts)
}

func TestResolve_RampMatchesHandComputedInterpolation(t *testing.T) {
	p := &Profile{Segments: []Segment{{DurationMinutes: 2, StartPercent: 60, EndPercent: 150}}}
	ftp := 250

	for sec := 0; sec < 120; sec++ {
		res, ok := Resolve(p, sec, ftp)
		require.True(t, ok, "t=%d", sec)

		rel := float64(sec) / 120
		want := int(math.Round((60 + (150-60)*rel) / 100 * float64(ftp)))
		assert.Equal(t, want, res.TargetWatts, "t=%d", sec)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	p := &Profile{Segments: []Segment{
		{DurationMinutes: 1.5, StartPercent: 55, EndPercent: 95},
		{DurationMinutes: 0.5, StartPercent: 110, EndPercent: 110},
	}}

	first, ok1 := Resolve(p, 77, 230)
	second, ok2 := Resolve(p, 77, 230)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestSegmentSeconds_FloorsToOne(t *testing.T) {
	assert.Equal(t, 1, Segment{DurationMinutes: 0}.Seconds())
	assert.Equal(t, 1, Segment{DurationMinutes: 0.001}.Seconds())
	assert.Equal(t, 30, Segment{DurationMinutes: 0.5}.Seconds())
	assert.Equal(t, 90, Segment{DurationMinutes: 1.5}.Seconds())
}

func TestProfileTotalSeconds(t *testing.T) {
	p := &Profile{Segments: []Segment{
		{DurationMinutes: 1},
		{DurationMinutes: 0},
		{DurationMinutes: 2.5},
	}}
	assert.Equal(t, 60+1+150, p.TotalSeconds())
}

func TestCatalogByName(t *testing.T) {
	p, ok := CatalogByName("30 Min Endurance")
	require.True(t, ok)
	assert.Equal(t, 30*60, p.TotalSeconds())

	_, ok = CatalogByName("nope")
	assert.False(t, ok)
}
