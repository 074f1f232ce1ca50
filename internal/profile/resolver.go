package profile

import "math"

// Resolution describes where an elapsed-time position falls within a profile
// and what power the trainer should hold there.
type Resolution struct {
	SegmentIndex    int
	SegmentStartSec int
	SegmentEndSec   int
	TargetWatts     int
}

// Resolve maps (profile, elapsed seconds, FTP) to the current segment and its
// interpolated target power. Returns ok=false when the profile is empty or
// elapsedSec is at or past the total duration - the caller treats that as
// "no programmed content left". Pure: no state, identical output for
// identical input.
func Resolve(p *Profile, elapsedSec int, ftp int) (Resolution, bool) {
	if p == nil || len(p.Segments) == 0 {
		return Resolution{}, false
	}

	total := p.TotalSeconds()
	t := elapsedSec
	if t < 0 {
		t = 0
	}
	if t > total {
		t = total
	}

	start := 0
	for i, seg := range p.Segments {
		secs := seg.Seconds()
		end := start + secs
		// A boundary second belongs to the next segment.
		if t < end {
			rel := float64(t-start) / float64(secs)
			if rel < 0 {
				rel = 0
			}
			if rel > 1 {
				rel = 1
			}
			startWatts := seg.StartPercent / 100 * float64(ftp)
			endWatts := seg.EndPercent / 100 * float64(ftp)
			return Resolution{
				SegmentIndex:    i,
				SegmentStartSec: start,
				SegmentEndSec:   end,
				TargetWatts:     int(math.Round(startWatts + (endWatts-startWatts)*rel)),
			}, true
		}
		start = end
	}

	return Resolution{}, false
}
