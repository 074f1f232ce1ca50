package ui

import (
	"fmt"
	"time"

	"github.com/lowaak/ride-pilot/internal/safego"
)

// The View doubles as the engine's cue sounder: countdowns and interval
// warnings land in the status panel with terminal bells behind them.

const startCountdownSec = 3

// RunStartCountdown counts down in the status panel, then invokes onDone.
// Runs on its own goroutine so the caller is never blocked.
func (v *View) RunStartCountdown(onDone func()) {
	safego.Go(v.logger, func() {
		for i := startCountdownSec; i > 0; i-- {
			remaining := i
			v.beep()
			v.app.QueueUpdateDraw(func() {
				v.statusPanel.SetText(fmt.Sprintf("\n\n  [yellow]Starting in %d...[white]\n", remaining))
			})
			time.Sleep(time.Second)
		}
		v.beep()
		onDone()
	})
}

// ShowPausedCue flashes the paused notice.
func (v *View) ShowPausedCue() {
	v.beep()
	v.flash("[yellow]Paused[white] — pedal to resume")
}

// ShowResumedCue flashes the resumed notice.
func (v *View) ShowResumedCue() {
	v.flash("[green]Resumed[white]")
}

// PlayPreBoundaryCue warns of a big effort change coming up.
func (v *View) PlayPreBoundaryCue() {
	safego.Go(v.logger, func() {
		v.beep()
		time.Sleep(150 * time.Millisecond)
		v.beep()
	})
	v.flash("[yellow]Big change ahead[white]")
}

// PlayFinalBoundaryCue marks the last seconds before an interval change.
func (v *View) PlayFinalBoundaryCue() {
	safego.Go(v.logger, func() {
		for i := 0; i < 3; i++ {
			v.beep()
			time.Sleep(100 * time.Millisecond)
		}
	})
	v.flash("[yellow]Interval change[white]")
}

func (v *View) beep() {
	if err := v.screen.Beep(); err != nil {
		v.logger.Printf("UI: beep failed: %v", err)
	}
}

// flash writes a one-line notice into the status panel. The next state
// publish overwrites it.
func (v *View) flash(msg string) {
	v.app.QueueUpdateDraw(func() {
		v.statusPanel.SetText("\n\n  " + msg + "\n")
	})
}
