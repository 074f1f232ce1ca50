package engine

import (
	"time"

	"github.com/lowaak/ride-pilot/internal/profile"
)

// loopCommand controls the ticker inside the loop goroutine.
type loopCommand int

const (
	loopStartTicker loopCommand = iota
	loopStopTicker
)

// run is the control-loop goroutine. The ticker is active whenever a session
// is running or paused; façade operations start and stop it via loopCmd.
func (e *Engine) run() {
	defer e.wg.Done()

	// Created stopped; armed with the configured interval on session start.
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()

	for {
		select {
		case <-e.done:
			ticker.Stop()
			e.logger.Printf("Engine: control loop exiting")
			return
		case cmd := <-e.loopCmd:
			switch cmd {
			case loopStartTicker:
				ticker.Reset(e.tickInterval)
			case loopStopTicker:
				ticker.Stop()
			}
		case <-ticker.C:
			e.tick()
		}
	}
}

// tickEffects collects side effects decided under the lock so they can run
// outside it.
type tickEffects struct {
	state        ViewState
	directive    Directive
	hasDirective bool
	pausedNow    bool
	resumedNow   bool
	preCue       bool
	finalCue     bool
}

// tick advances the session by one second and applies every derived effect:
// auto-pause, dispatch, sampling, boundary cues, snapshot scheduling. A tick
// that fires while idle (a stray tick after teardown) is a heartbeat only.
func (e *Engine) tick() {
	e.mu.Lock()

	switch {
	case e.running && !e.paused:
		fx := e.advanceTickLocked()
		e.mu.Unlock()
		e.applyTickEffects(fx)
	case e.paused:
		fx := e.pausedTickLocked()
		e.mu.Unlock()
		e.applyTickEffects(fx)
	default:
		state := e.viewStateLocked()
		e.mu.Unlock()
		e.stateTopic.Publish(state)
	}
}

// advanceTickLocked handles a tick while running and unpaused. Caller must
// hold mu.
func (e *Engine) advanceTickLocked() tickEffects {
	var fx tickEffects

	e.elapsedSec++

	res, hasTarget := profile.Resolve(e.prof, e.elapsedSec, e.ftp)

	// Auto-pause: one full tick of zero power outside the grace window.
	if e.mode == ModeWorkout {
		if e.lastPower != nil && *e.lastPower <= 0 && e.elapsedSec >= e.autoPauseSuppressedUntilSec {
			e.zeroPowerStreakSec++
		} else {
			e.zeroPowerStreakSec = 0
		}
		if e.zeroPowerStreakSec >= 1 {
			e.paused = true
			fx.pausedNow = true
		}
	}

	fx.directive, fx.hasDirective = e.desiredDirectiveLocked()

	var target *int
	if hasTarget {
		w := res.TargetWatts
		target = &w
	}
	e.samples = append(e.samples, Sample{
		T:           e.elapsedSec,
		Power:       cloneFloat(e.lastPower),
		HeartRate:   cloneFloat(e.lastHeartRate),
		Cadence:     cloneFloat(e.lastCadence),
		TargetWatts: target,
	})

	if e.mode == ModeWorkout && !e.paused && hasTarget {
		fx.preCue, fx.finalCue = e.boundaryCuesLocked(res)
	}

	e.scheduleSnapshotLocked()
	fx.state = e.viewStateLocked()
	return fx
}

// pausedTickLocked handles a tick while paused: the session clock does not
// advance, only the auto-resume policy runs. Caller must hold mu.
func (e *Engine) pausedTickLocked() tickEffects {
	var fx tickEffects

	if e.mode == ModeWorkout && !e.now().Before(e.manualResumeBlockedUntil) {
		if res, ok := profile.Resolve(e.prof, e.elapsedSec, e.ftp); ok {
			if e.lastPower != nil && *e.lastPower >= resumeEffortFraction*float64(res.TargetWatts) {
				e.paused = false
				e.zeroPowerStreakSec = 0
				e.autoPauseSuppressedUntilSec = e.elapsedSec + autoPauseGraceSec
				fx.resumedNow = true
				e.scheduleSnapshotLocked()
			}
		}
	}

	fx.state = e.viewStateLocked()
	return fx
}

// boundaryCuesLocked decides the edge-triggered interval cues for the
// upcoming segment boundary. Caller must hold mu; res must be the resolution
// for the current elapsed second.
func (e *Engine) boundaryCuesLocked(res profile.Resolution) (pre, final bool) {
	next := res.SegmentIndex + 1
	if e.prof == nil || next >= len(e.prof.Segments) {
		return false, false
	}

	currentEnd := e.prof.Segments[res.SegmentIndex].EndPercent
	nextStart := e.prof.Segments[next].StartPercent
	if currentEnd == 0 {
		return false, false
	}

	diffFrac := (nextStart - currentEnd) / currentEnd
	if diffFrac < 0 {
		diffFrac = -diffFrac
	}
	secsToBoundary := res.SegmentEndSec - e.elapsedSec

	if secsToBoundary == preBoundaryLeadSec && diffFrac >= preBoundaryDiffFrac && nextStart >= preBoundaryStepUpMult*currentEnd {
		pre = true
	}
	if secsToBoundary == finalBoundaryLeadSec && diffFrac >= finalBoundaryDiffFrac {
		final = true
	}
	return pre, final
}

// applyTickEffects runs the side effects decided by a tick outside the lock,
// finishing with the state-changed notification.
func (e *Engine) applyTickEffects(fx tickEffects) {
	if fx.hasDirective {
		e.dispatch(fx.directive, false)
	}
	if fx.pausedNow {
		e.logger.Printf("Engine: auto-paused at %ds (zero power)", fx.state.ElapsedSec)
		e.cues.ShowPausedCue()
	}
	if fx.resumedNow {
		e.logger.Printf("Engine: auto-resumed at %ds", fx.state.ElapsedSec)
		e.cues.ShowResumedCue()
	}
	if fx.preCue {
		e.cues.PlayPreBoundaryCue()
	}
	if fx.finalCue {
		e.cues.PlayFinalBoundaryCue()
	}
	e.stateTopic.Publish(fx.state)
}

// scheduleSnapshotLocked arms the trailing snapshot debounce. Repeated calls
// within the window push the write out; the write captures whatever state is
// current when it fires, so the latest state always wins. Caller must hold mu.
func (e *Engine) scheduleSnapshotLocked() {
	if e.snapshotTimer != nil {
		e.snapshotTimer.Reset(snapshotDebounce)
		return
	}
	e.snapshotTimer = time.AfterFunc(snapshotDebounce, e.writeSnapshot)
}

// writeSnapshot persists the current session state. Failures are logged and
// never interrupt the session.
func (e *Engine) writeSnapshot() {
	e.mu.Lock()
	e.snapshotTimer = nil
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.store.SaveSessionSnapshot(snap); err != nil {
		e.logger.Printf("Engine: snapshot write failed: %v", err)
	}
}
