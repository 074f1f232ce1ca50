package engine

import (
	"errors"
	"time"

	"github.com/lowaak/ride-pilot/internal/profile"
)

var (
	// ErrSessionActive is returned when an operation needs an idle session.
	ErrSessionActive = errors.New("session is active - end the current workout first")
	// ErrStarting is returned when an operation is attempted mid-countdown.
	ErrStarting = errors.New("start countdown in progress")
	// ErrNoWorkout is returned when starting with no profile loaded.
	ErrNoWorkout = errors.New("no workout loaded")
	// ErrNotWorkoutMode is returned when starting outside workout mode.
	ErrNotWorkoutMode = errors.New("not in workout mode")
)

// SetProfile replaces the loaded workout profile. Rejected while a session is
// running, paused or starting. Resets the session clock, samples and counters
// and clears any persisted snapshot.
func (e *Engine) SetProfile(p *profile.Profile) error {
	e.mu.Lock()
	if e.running || e.paused || e.starting {
		e.mu.Unlock()
		return ErrSessionActive
	}
	e.prof = p
	e.elapsedSec = 0
	e.samples = nil
	e.zeroPowerStreakSec = 0
	e.autoPauseSuppressedUntilSec = 0
	e.manualResumeBlockedUntil = time.Time{}
	e.startedAt = nil
	state := e.viewStateLocked()
	e.mu.Unlock()

	if p != nil {
		e.logger.Printf("Engine: workout '%s' loaded (%ds)", p.Name, p.TotalSeconds())
	} else {
		e.logger.Printf("Engine: workout cleared")
	}
	if err := e.store.ClearSessionSnapshot(); err != nil {
		e.logger.Printf("Engine: clear snapshot failed: %v", err)
	}
	e.stateTopic.Publish(state)
	return nil
}

// StartWorkout is the start/pause/resume operation:
//   - idle: begins the start countdown (workout mode with a profile only)
//   - paused: manual resume with a fresh auto-pause grace window
//   - running: manual pause, blocking auto-resume for a wall-clock window
//   - starting: no-op until the countdown resolves
func (e *Engine) StartWorkout() error {
	e.mu.Lock()

	if e.starting {
		e.mu.Unlock()
		return nil
	}

	if e.running && e.paused {
		e.paused = false
		e.zeroPowerStreakSec = 0
		e.autoPauseSuppressedUntilSec = e.elapsedSec + autoPauseGraceSec
		e.manualResumeBlockedUntil = time.Time{}
		e.scheduleSnapshotLocked()
		state := e.viewStateLocked()
		e.mu.Unlock()

		e.logger.Printf("Engine: manual resume at %ds", state.ElapsedSec)
		e.stateTopic.Publish(state)
		return nil
	}

	if e.running {
		e.paused = true
		e.manualResumeBlockedUntil = e.now().Add(manualResumeBlock)
		e.scheduleSnapshotLocked()
		state := e.viewStateLocked()
		e.mu.Unlock()

		e.logger.Printf("Engine: manual pause at %ds", state.ElapsedSec)
		e.stateTopic.Publish(state)
		return nil
	}

	if e.mode != ModeWorkout {
		e.mu.Unlock()
		return ErrNotWorkoutMode
	}
	if e.prof == nil || len(e.prof.Segments) == 0 {
		e.mu.Unlock()
		return ErrNoWorkout
	}

	e.starting = true
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.logger.Printf("Engine: starting '%s'", state.WorkoutName)
	e.stateTopic.Publish(state)
	e.cues.RunStartCountdown(e.beginRide)
	return nil
}

// beginRide transitions starting -> running once the countdown resolves.
// A session ended mid-countdown stays idle.
func (e *Engine) beginRide() {
	e.mu.Lock()
	if !e.starting {
		e.mu.Unlock()
		return
	}
	e.starting = false
	e.running = true
	e.paused = false
	now := e.now()
	e.startedAt = &now
	e.elapsedSec = 0
	e.samples = nil
	e.zeroPowerStreakSec = 0
	e.autoPauseSuppressedUntilSec = autoPauseGraceSec
	e.manualResumeBlockedUntil = time.Time{}
	d, ok := e.desiredDirectiveLocked()
	e.scheduleSnapshotLocked()
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.loopCmd <- loopStartTicker
	if ok {
		e.dispatch(d, true)
	}
	e.logger.Printf("Engine: ride started")
	e.stateTopic.Publish(state)
}

// EndWorkout stops the control loop, writes the completed-ride artifact when
// any samples were recorded, resets the session to idle and clears the
// persisted snapshot. Safe to call at any lifecycle point, including
// mid-countdown.
func (e *Engine) EndWorkout() {
	// Stop ticking before any I/O so no further ticks race with teardown.
	e.loopCmd <- loopStopTicker

	e.mu.Lock()
	var record *RideRecord
	if len(e.samples) > 0 && e.startedAt != nil {
		r := e.rideRecordLocked()
		record = &r
	}
	e.starting = false
	e.running = false
	e.paused = false
	e.startedAt = nil
	e.elapsedSec = 0
	e.samples = nil
	e.zeroPowerStreakSec = 0
	e.autoPauseSuppressedUntilSec = 0
	e.manualResumeBlockedUntil = time.Time{}
	if e.snapshotTimer != nil {
		e.snapshotTimer.Stop()
		e.snapshotTimer = nil
	}
	state := e.viewStateLocked()
	e.mu.Unlock()

	var summary RideSummary
	if record != nil {
		if err := e.store.SaveRideRecord(*record); err != nil {
			// Teardown continues regardless.
			e.logger.Printf("Engine: ride record write failed: %v", err)
		}
		summary = RideSummary{
			WorkoutName:   record.WorkoutName,
			DurationSec:   record.DurationSec,
			SampleCount:   len(record.Samples),
			AvgPowerWatts: record.AvgPowerWatts,
		}
	}
	if err := e.store.ClearSessionSnapshot(); err != nil {
		e.logger.Printf("Engine: clear snapshot failed: %v", err)
	}

	e.logger.Printf("Engine: workout ended")
	e.endedTopic.Publish(summary)
	e.stateTopic.Publish(state)
}

// SetMode switches the control strategy. Rejected mid-countdown. The new
// mode's directive is dispatched immediately.
func (e *Engine) SetMode(m Mode) error {
	e.mu.Lock()
	if e.starting {
		e.mu.Unlock()
		return ErrStarting
	}
	e.mode = m
	d, ok := e.desiredDirectiveLocked()
	e.scheduleSnapshotLocked()
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.logger.Printf("Engine: mode set to %s", m)
	if ok {
		e.dispatch(d, true)
	}
	e.stateTopic.Publish(state)
	return nil
}

// SetFTP updates the rider's threshold power, clamped to policy bounds.
func (e *Engine) SetFTP(watts int) {
	e.mu.Lock()
	e.ftp = clampInt(watts, MinFTP, MaxFTP)
	d, ok := e.desiredDirectiveLocked()
	e.scheduleSnapshotLocked()
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.logger.Printf("Engine: FTP set to %d W", state.FTP)
	if ok {
		e.dispatch(d, true)
	}
	e.stateTopic.Publish(state)
}

// AdjustErgTarget shifts the manual ERG target by deltaWatts, clamped.
func (e *Engine) AdjustErgTarget(deltaWatts int) {
	e.mu.Lock()
	e.ergTargetWatts = clampInt(e.ergTargetWatts+deltaWatts, MinErgTargetWatts, MaxErgTargetWatts)
	d, ok := e.desiredDirectiveLocked()
	e.scheduleSnapshotLocked()
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.logger.Printf("Engine: ERG target %d W", state.ErgTargetWatts)
	if ok {
		e.dispatch(d, true)
	}
	e.stateTopic.Publish(state)
}

// AdjustResistance shifts the manual resistance level by deltaPct, clamped.
func (e *Engine) AdjustResistance(deltaPct int) {
	e.mu.Lock()
	e.resistancePercent = clampInt(e.resistancePercent+deltaPct, MinResistancePercent, MaxResistancePercent)
	d, ok := e.desiredDirectiveLocked()
	e.scheduleSnapshotLocked()
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.logger.Printf("Engine: resistance %d%%", state.ResistancePercent)
	if ok {
		e.dispatch(d, true)
	}
	e.stateTopic.Publish(state)
}

// IngestPower records a power (and optional cadence) sample from the
// telemetry source. While idle in workout mode with a loaded profile, enough
// power auto-starts the workout.
func (e *Engine) IngestPower(watts float64, cadence *float64) {
	e.mu.Lock()
	w := watts
	e.lastPower = &w
	if cadence != nil {
		c := *cadence
		e.lastCadence = &c
	}

	autoStart := false
	if !e.running && !e.paused && !e.starting && e.mode == ModeWorkout && e.elapsedSec == 0 {
		if res, ok := profile.Resolve(e.prof, 0, e.ftp); ok {
			threshold := 0.5 * float64(res.TargetWatts)
			if threshold < autoStartMinWatts {
				threshold = autoStartMinWatts
			}
			autoStart = watts >= threshold
		}
	}
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.stateTopic.Publish(state)
	if autoStart {
		e.logger.Printf("Engine: auto-start at %.0f W", watts)
		if err := e.StartWorkout(); err != nil {
			e.logger.Printf("Engine: auto-start rejected: %v", err)
		}
	}
}

// IngestHeartRate records a heart-rate sample from the telemetry source.
func (e *Engine) IngestHeartRate(bpm float64) {
	e.mu.Lock()
	v := bpm
	e.lastHeartRate = &v
	state := e.viewStateLocked()
	e.mu.Unlock()

	e.stateTopic.Publish(state)
}
