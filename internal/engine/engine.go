package engine

import (
	"log"
	"sync"
	"time"

	"github.com/lowaak/ride-pilot/internal/profile"
	"github.com/lowaak/ride-pilot/internal/pubsub"
	"github.com/lowaak/ride-pilot/internal/safego"
)

// Mode selects which control strategy drives the trainer.
type Mode int

const (
	ModeWorkout    Mode = iota // Follow the loaded workout profile
	ModeErg                    // Hold a manually set target power
	ModeResistance             // Hold a manually set resistance level
)

func (m Mode) String() string {
	switch m {
	case ModeWorkout:
		return "workout"
	case ModeErg:
		return "erg"
	case ModeResistance:
		return "resistance"
	}
	return "unknown"
}

// ModeFromString parses a mode name, defaulting to workout.
func ModeFromString(s string) Mode {
	switch s {
	case "erg":
		return ModeErg
	case "resistance":
		return ModeResistance
	}
	return ModeWorkout
}

// DirectiveKind discriminates trainer directives.
type DirectiveKind int

const (
	DirectiveErg        DirectiveKind = iota // Target power in watts
	DirectiveResistance                      // Resistance percentage
)

// Directive is the instruction forwarded to the control transport.
type Directive struct {
	Kind    DirectiveKind
	Watts   int // ERG target, DirectiveErg only
	Percent int // 0-100, DirectiveResistance only
}

// Transport forwards directives to the trainer. force bypasses any
// transport-side deduplication so mode/setting changes take effect
// immediately instead of on the next best-effort update.
type Transport interface {
	SendDirective(d Directive, force bool) error
}

// Cues are fire-and-forget audio/visual effects. RunStartCountdown must call
// onDone exactly once when the countdown finishes.
type Cues interface {
	RunStartCountdown(onDone func())
	ShowPausedCue()
	ShowResumedCue()
	PlayPreBoundaryCue()
	PlayFinalBoundaryCue()
}

// Store persists session snapshots and completed-ride records.
type Store interface {
	SaveSessionSnapshot(s Snapshot) error
	LoadSessionSnapshot() (*Snapshot, error)
	ClearSessionSnapshot() error
	SaveRideRecord(r RideRecord) error
}

// Sample is one per-second telemetry record taken while the session advances.
type Sample struct {
	T           int      `json:"t"`
	Power       *float64 `json:"power,omitempty"`
	HeartRate   *float64 `json:"heartRate,omitempty"`
	Cadence     *float64 `json:"cadence,omitempty"`
	TargetWatts *int     `json:"targetWatts,omitempty"`
}

// RideRecord is the completed-workout artifact written on EndWorkout.
type RideRecord struct {
	WorkoutName   string    `json:"workoutName"`
	FTP           int       `json:"ftp"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
	DurationSec   int       `json:"durationSec"`
	AvgPowerWatts float64   `json:"avgPowerWatts"`
	MaxPowerWatts float64   `json:"maxPowerWatts"`
	AvgHeartRate  float64   `json:"avgHeartRate"`
	Samples       []Sample  `json:"samples"`
}

// RideSummary is published to ride-ended observers.
type RideSummary struct {
	WorkoutName   string
	DurationSec   int
	SampleCount   int
	AvgPowerWatts float64
}

// ViewState is the read-only snapshot published to state observers after
// every tick and every façade operation.
type ViewState struct {
	Mode              Mode
	FTP               int
	ErgTargetWatts    int
	ResistancePercent int

	Running  bool
	Paused   bool
	Starting bool

	WorkoutName string
	TotalSec    int

	StartedAt            *time.Time
	ElapsedSec           int
	SegmentIndex         int // -1 when the resolver has no target
	IntervalRemainingSec int
	TargetWatts          int
	HasTarget            bool
	WorkoutDone          bool // past programmed content, awaiting operator end

	LastPower     *float64
	LastHeartRate *float64
	LastCadence   *float64
	SampleCount   int
}

// Policy bounds and timing constants.
const (
	DefaultFTP               = 220
	DefaultErgTargetWatts    = 100
	DefaultResistancePercent = 30

	MinFTP               = 50
	MaxFTP               = 500
	MinErgTargetWatts    = 50
	MaxErgTargetWatts    = 1500
	MinResistancePercent = 0
	MaxResistancePercent = 100

	// Grace window after start/resume before zero power can auto-pause again.
	autoPauseGraceSec = 15
	// Wall-clock window after a manual pause during which auto-resume is off.
	manualResumeBlock = 10 * time.Second
	// Demonstrated effort required to auto-resume, as a fraction of target.
	resumeEffortFraction = 0.9
	// Minimum watts to auto-start a loaded workout from idle.
	autoStartMinWatts = 75

	preBoundaryLeadSec    = 9
	preBoundaryDiffFrac   = 0.30
	preBoundaryStepUpMult = 1.2
	finalBoundaryLeadSec  = 3
	finalBoundaryDiffFrac = 0.10

	snapshotDebounce = 500 * time.Millisecond
)

// Engine owns the single session for the process lifetime: the session state,
// the 1 Hz control loop, the pause/resume policies and the persistence
// scheduling. All external interaction goes through its methods.
type Engine struct {
	transport Transport
	cues      Cues
	store     Store
	logger    *log.Logger

	now          func() time.Time
	tickInterval time.Duration

	// Session state (protected by mu)
	mu                          sync.Mutex
	prof                        *profile.Profile
	mode                        Mode
	ftp                         int
	ergTargetWatts              int
	resistancePercent           int
	running                     bool
	paused                      bool
	starting                    bool
	startedAt                   *time.Time
	elapsedSec                  int
	zeroPowerStreakSec          int
	autoPauseSuppressedUntilSec int
	manualResumeBlockedUntil    time.Time
	lastPower                   *float64
	lastHeartRate               *float64
	lastCadence                 *float64
	samples                     []Sample
	snapshotTimer               *time.Timer

	stateTopic *pubsub.Topic[ViewState]
	endedTopic *pubsub.Topic[RideSummary]

	loopCmd      chan loopCommand
	done         chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New creates an Engine and starts its control-loop goroutine. The ticker
// stays stopped until a session begins.
func New(transport Transport, cues Cues, store Store, logger *log.Logger) *Engine {
	if transport == nil {
		panic("Engine: transport cannot be nil")
	}
	if cues == nil {
		panic("Engine: cues cannot be nil")
	}
	if store == nil {
		panic("Engine: store cannot be nil")
	}
	if logger == nil {
		panic("Engine: logger cannot be nil")
	}

	e := &Engine{
		transport:         transport,
		cues:              cues,
		store:             store,
		logger:            logger,
		now:               time.Now,
		tickInterval:      time.Second,
		mode:              ModeWorkout,
		ftp:               DefaultFTP,
		ergTargetWatts:    DefaultErgTargetWatts,
		resistancePercent: DefaultResistancePercent,
		stateTopic:        pubsub.NewTopic[ViewState](true),
		endedTopic:        pubsub.NewTopic[RideSummary](false),
		loopCmd:           make(chan loopCommand, 4),
		done:              make(chan struct{}),
	}

	e.wg.Add(1)
	safego.Go(logger, func() { e.run() })

	return e
}

// Shutdown stops the control loop and waits for it to exit. Safe to call
// multiple times.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.logger.Printf("Engine: shutting down")
		close(e.done)
		e.wg.Wait()
		e.mu.Lock()
		if e.snapshotTimer != nil {
			e.snapshotTimer.Stop()
			e.snapshotTimer = nil
		}
		e.mu.Unlock()
		e.logger.Printf("Engine: shutdown complete")
	})
}

// StateChanged is the topic publishing a ViewState after every tick and
// façade operation. Sticky, so new subscribers see the current state.
func (e *Engine) StateChanged() *pubsub.Topic[ViewState] {
	return e.stateTopic
}

// RideEnded is the topic publishing a summary once per EndWorkout.
func (e *Engine) RideEnded() *pubsub.Topic[RideSummary] {
	return e.endedTopic
}

// CurrentState returns a snapshot of the session state.
func (e *Engine) CurrentState() ViewState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewStateLocked()
}

// viewStateLocked builds the observer snapshot. Caller must hold mu.
func (e *Engine) viewStateLocked() ViewState {
	vs := ViewState{
		Mode:              e.mode,
		FTP:               e.ftp,
		ErgTargetWatts:    e.ergTargetWatts,
		ResistancePercent: e.resistancePercent,
		Running:           e.running,
		Paused:            e.paused,
		Starting:          e.starting,
		StartedAt:         e.startedAt,
		ElapsedSec:        e.elapsedSec,
		SegmentIndex:      -1,
		LastPower:         e.lastPower,
		LastHeartRate:     e.lastHeartRate,
		LastCadence:       e.lastCadence,
		SampleCount:       len(e.samples),
	}
	if e.prof != nil {
		vs.WorkoutName = e.prof.Name
		vs.TotalSec = e.prof.TotalSeconds()
	}
	if res, ok := profile.Resolve(e.prof, e.elapsedSec, e.ftp); ok {
		vs.SegmentIndex = res.SegmentIndex
		vs.IntervalRemainingSec = res.SegmentEndSec - e.elapsedSec
		vs.TargetWatts = res.TargetWatts
		vs.HasTarget = true
	} else if e.running && e.prof != nil && e.elapsedSec >= vs.TotalSec {
		vs.WorkoutDone = true
	}
	return vs
}

// desiredDirectiveLocked computes the trainer directive for the current mode.
// In workout mode there is no directive until a session exists and the
// resolver has a target. Caller must hold mu.
func (e *Engine) desiredDirectiveLocked() (Directive, bool) {
	switch e.mode {
	case ModeErg:
		return Directive{Kind: DirectiveErg, Watts: e.ergTargetWatts}, true
	case ModeResistance:
		return Directive{Kind: DirectiveResistance, Percent: e.resistancePercent}, true
	}
	if e.startedAt == nil {
		return Directive{}, false
	}
	res, ok := profile.Resolve(e.prof, e.elapsedSec, e.ftp)
	if !ok {
		return Directive{}, false
	}
	return Directive{Kind: DirectiveErg, Watts: res.TargetWatts}, true
}

// dispatch forwards a directive to the transport. Failures are logged only;
// the next tick retries with a fresh directive.
func (e *Engine) dispatch(d Directive, force bool) {
	if err := e.transport.SendDirective(d, force); err != nil {
		e.logger.Printf("Engine: dispatch failed: %v", err)
	}
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
