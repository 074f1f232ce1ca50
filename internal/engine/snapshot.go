package engine

import (
	"time"

	"github.com/lowaak/ride-pilot/internal/profile"
)

// Snapshot is the crash-safe session record persisted across restarts.
type Snapshot struct {
	SavedAt                     time.Time  `json:"savedAt"`
	Mode                        string     `json:"mode"`
	FTP                         int        `json:"ftp"`
	ErgTargetWatts              int        `json:"ergTargetWatts"`
	ResistancePercent           int        `json:"resistancePercent"`
	WorkoutName                 string     `json:"workoutName"`
	Running                     bool       `json:"running"`
	Paused                      bool       `json:"paused"`
	StartedAt                   *time.Time `json:"startedAt,omitempty"`
	ElapsedSec                  int        `json:"elapsedSec"`
	ZeroPowerStreakSec          int        `json:"zeroPowerStreakSec"`
	AutoPauseSuppressedUntilSec int        `json:"autoPauseSuppressedUntilSec"`
	Samples                     []Sample   `json:"samples"`
}

// snapshotLocked captures the persistable session state. Caller must hold mu.
func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		SavedAt:                     e.now(),
		Mode:                        e.mode.String(),
		FTP:                         e.ftp,
		ErgTargetWatts:              e.ergTargetWatts,
		ResistancePercent:           e.resistancePercent,
		Running:                     e.running,
		Paused:                      e.paused,
		StartedAt:                   e.startedAt,
		ElapsedSec:                  e.elapsedSec,
		ZeroPowerStreakSec:          e.zeroPowerStreakSec,
		AutoPauseSuppressedUntilSec: e.autoPauseSuppressedUntilSec,
	}
	if e.prof != nil {
		snap.WorkoutName = e.prof.Name
	}
	snap.Samples = make([]Sample, len(e.samples))
	copy(snap.Samples, e.samples)
	return snap
}

// RestoreSession reloads a persisted snapshot, defaulting malformed fields
// individually so a partial write salvages as much as possible. A snapshot of
// a mid-ride session comes back running but paused, with the manual-resume
// block cleared, so riding near target auto-resumes it. Returns whether a
// session was restored mid-ride.
func (e *Engine) RestoreSession() bool {
	snap, err := e.store.LoadSessionSnapshot()
	if err != nil {
		e.logger.Printf("Engine: snapshot load failed: %v", err)
		return false
	}
	if snap == nil {
		return false
	}

	e.mu.Lock()
	e.mode = ModeFromString(snap.Mode)
	if snap.FTP >= MinFTP && snap.FTP <= MaxFTP {
		e.ftp = snap.FTP
	} else {
		e.ftp = DefaultFTP
	}
	if snap.ErgTargetWatts >= MinErgTargetWatts && snap.ErgTargetWatts <= MaxErgTargetWatts {
		e.ergTargetWatts = snap.ErgTargetWatts
	} else {
		e.ergTargetWatts = DefaultErgTargetWatts
	}
	if snap.ResistancePercent >= MinResistancePercent && snap.ResistancePercent <= MaxResistancePercent {
		e.resistancePercent = snap.ResistancePercent
	} else {
		e.resistancePercent = DefaultResistancePercent
	}
	if snap.WorkoutName != "" {
		if p, ok := profile.CatalogByName(snap.WorkoutName); ok {
			e.prof = p
		}
	}

	// A running session needs its companion fields intact; anything less
	// restores settings only and stays idle.
	resumable := snap.Running &&
		snap.StartedAt != nil &&
		snap.ElapsedSec >= 0 &&
		e.prof != nil && e.prof.Name == snap.WorkoutName

	if resumable {
		e.running = true
		e.paused = true
		started := *snap.StartedAt
		e.startedAt = &started
		e.elapsedSec = snap.ElapsedSec
		e.zeroPowerStreakSec = 0
		e.autoPauseSuppressedUntilSec = snap.AutoPauseSuppressedUntilSec
		e.manualResumeBlockedUntil = time.Time{}
		e.samples = make([]Sample, len(snap.Samples))
		copy(e.samples, snap.Samples)
	}
	state := e.viewStateLocked()
	e.mu.Unlock()

	if resumable {
		e.loopCmd <- loopStartTicker
		e.logger.Printf("Engine: restored '%s' at %ds (paused)", state.WorkoutName, state.ElapsedSec)
	} else {
		e.logger.Printf("Engine: restored settings (no resumable session)")
	}
	e.stateTopic.Publish(state)
	return resumable
}

// rideRecordLocked builds the completed-ride artifact. Caller must hold mu;
// e.startedAt must be non-nil.
func (e *Engine) rideRecordLocked() RideRecord {
	rec := RideRecord{
		FTP:         e.ftp,
		StartedAt:   *e.startedAt,
		EndedAt:     e.now(),
		DurationSec: e.elapsedSec,
	}
	if e.prof != nil {
		rec.WorkoutName = e.prof.Name
	}
	rec.Samples = make([]Sample, len(e.samples))
	copy(rec.Samples, e.samples)

	var powerSum, hrSum float64
	var powerN, hrN int
	for _, s := range rec.Samples {
		if s.Power != nil {
			powerSum += *s.Power
			powerN++
			if *s.Power > rec.MaxPowerWatts {
				rec.MaxPowerWatts = *s.Power
			}
		}
		if s.HeartRate != nil {
			hrSum += *s.HeartRate
			hrN++
		}
	}
	if powerN > 0 {
		rec.AvgPowerWatts = powerSum / float64(powerN)
	}
	if hrN > 0 {
		rec.AvgHeartRate = hrSum / float64(hrN)
	}
	return rec
}
