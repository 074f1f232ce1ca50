// Package ui renders the terminal dashboard: live metrics, the interval
// panel, a scrolling log pane, and the keyboard bindings that drive the
// control engine.
package ui

import (
	"fmt"
	"io"
	"log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/ride-pilot/internal/engine"
	"github.com/lowaak/ride-pilot/internal/profile"
	"github.com/lowaak/ride-pilot/internal/sim"
)

// Page names for tview.Pages
const (
	pageWorkoutSelection = "workout-selection"
	pageDashboard        = "dashboard"
)

// View is the terminal UI. It is built in two phases: NewView constructs the
// widgets, and Attach wires the engine in afterwards, because the engine
// needs the view (as its cue sounder) at construction time.
type View struct {
	logger *log.Logger
	app    *tview.Application
	screen tcell.Screen

	eng        *engine.Engine
	simTrainer *sim.Trainer // nil when riding real hardware
	catalog    []profile.Profile

	pages         *tview.Pages
	metricsPanel  *tview.TextView
	intervalPanel *tview.TextView
	statusPanel   *tview.TextView
	logView       *tview.TextView
	workoutList   *tview.List
	workoutDetail *tview.TextView
	mainFlex      *tview.Flex

	currentPage string
	unsubscribe []func()
}

// NewView builds the widget tree. Call Attach before Run.
func NewView(logger *log.Logger) (*View, error) {
	if logger == nil {
		panic("ui.View: logger cannot be nil")
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("create screen: %w", err)
	}

	v := &View{
		logger:      logger,
		app:         tview.NewApplication().SetScreen(screen),
		screen:      screen,
		currentPage: pageWorkoutSelection,
	}
	v.buildWidgets()
	return v, nil
}

func (v *View) buildWidgets() {
	v.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	v.logView.SetBorder(true).SetTitle(" Log ")
	v.logView.SetChangedFunc(func() {
		v.app.Draw()
	})

	v.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.metricsPanel.SetBorder(true).SetTitle(" Metrics ")

	v.intervalPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.intervalPanel.SetBorder(true).SetTitle(" Workout ")

	v.statusPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.statusPanel.SetBorder(true).SetTitle(" Status ")

	dashboardLeft := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(v.metricsPanel, 0, 2, true).
		AddItem(v.statusPanel, 0, 1, false)

	dashboardFlex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(dashboardLeft, 0, 1, true).
		AddItem(v.intervalPanel, 0, 1, false)

	v.workoutList = tview.NewList().
		ShowSecondaryText(true)
	v.workoutList.SetBorder(true).SetTitle(" Workouts ")

	v.workoutDetail = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.workoutDetail.SetBorder(true).SetTitle(" Details ")

	workoutFlex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(v.workoutList, 0, 1, true).
		AddItem(v.workoutDetail, 0, 1, false)

	v.pages = tview.NewPages().
		AddPage(pageWorkoutSelection, workoutFlex, true, true).
		AddPage(pageDashboard, dashboardFlex, true, false)

	v.mainFlex = tview.NewFlex().
		AddItem(v.pages, 0, 2, true).
		AddItem(v.logView, 0, 1, false)
}

// Attach wires the engine (and, when simulating, the fake trainer) into the
// view: catalog list, key bindings, and state subscriptions.
func (v *View) Attach(eng *engine.Engine, simTrainer *sim.Trainer) {
	if eng == nil {
		panic("ui.View: engine cannot be nil")
	}
	v.eng = eng
	v.simTrainer = simTrainer
	v.catalog = profile.Catalog

	for _, p := range v.catalog {
		prof := p
		v.workoutList.AddItem(prof.Name, formatMMSS(prof.TotalSeconds()), 0, nil)
	}
	v.workoutList.SetChangedFunc(func(index int, _, _ string, _ rune) {
		v.renderWorkoutDetail(index)
	})
	v.workoutList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		v.selectWorkout(index)
	})
	if len(v.catalog) > 0 {
		v.renderWorkoutDetail(0)
	}

	v.setupKeyboardHandlers()

	stateCh := make(chan engine.ViewState, 16)
	unsubState := eng.StateChanged().SubscribeChan(stateCh)
	endedCh := make(chan engine.RideSummary, 4)
	unsubEnded := eng.RideEnded().SubscribeChan(endedCh)
	v.unsubscribe = append(v.unsubscribe, unsubState, unsubEnded)

	go func() {
		for st := range stateCh {
			state := st
			v.app.QueueUpdateDraw(func() {
				v.renderState(state)
			})
		}
	}()
	go func() {
		for summary := range endedCh {
			s := summary
			v.app.QueueUpdateDraw(func() {
				v.renderSummary(s)
			})
		}
	}()

	v.renderState(eng.CurrentState())
}

// LogWriter returns a writer that appends to the log pane. Suitable as one
// branch of the application logger's MultiWriter.
func (v *View) LogWriter() io.Writer {
	return tview.ANSIWriter(v.logView)
}

// Run starts the UI event loop and blocks until Stop or a quit key.
func (v *View) Run() error {
	v.app.SetRoot(v.mainFlex, true)
	v.app.SetFocus(v.workoutList)
	return v.app.Run()
}

// Stop terminates the UI event loop.
func (v *View) Stop() {
	for _, unsub := range v.unsubscribe {
		unsub()
	}
	v.app.Stop()
}

func (v *View) switchToPage(page string) {
	if v.currentPage == page {
		return
	}
	v.currentPage = page
	v.pages.SwitchToPage(page)
	if page == pageWorkoutSelection {
		v.app.SetFocus(v.workoutList)
	} else {
		v.app.SetFocus(v.metricsPanel)
	}
}

func (v *View) selectWorkout(index int) {
	if index < 0 || index >= len(v.catalog) {
		return
	}
	prof := v.catalog[index]
	if err := v.eng.SetProfile(&prof); err != nil {
		v.logger.Printf("UI: cannot load workout: %v", err)
		return
	}
	v.logger.Printf("UI: loaded workout %q", prof.Name)
	v.switchToPage(pageDashboard)
}

func (v *View) setupKeyboardHandlers() {
	v.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			v.Stop()
			return nil
		}
		if event.Key() != tcell.KeyRune {
			return event
		}

		switch event.Rune() {
		case 'q':
			v.Stop()
			return nil
		case '1':
			v.switchToPage(pageWorkoutSelection)
			return nil
		case '2':
			v.switchToPage(pageDashboard)
			return nil
		}

		if v.currentPage != pageDashboard {
			return event
		}

		switch event.Rune() {
		case ' ':
			if err := v.eng.StartWorkout(); err != nil {
				v.logger.Printf("UI: %v", err)
			}
		case 'x':
			v.eng.EndWorkout()
		case 'm':
			v.cycleMode()
		case '+', '=':
			v.adjustUp()
		case '-':
			v.adjustDown()
		case '[':
			v.eng.SetFTP(v.eng.CurrentState().FTP - 5)
		case ']':
			v.eng.SetFTP(v.eng.CurrentState().FTP + 5)
		case 'p':
			if v.simTrainer != nil {
				v.simTrainer.TogglePedaling()
			}
		default:
			return event
		}
		return nil
	})
}

func (v *View) cycleMode() {
	var next engine.Mode
	switch v.eng.CurrentState().Mode {
	case engine.ModeWorkout:
		next = engine.ModeErg
	case engine.ModeErg:
		next = engine.ModeResistance
	default:
		next = engine.ModeWorkout
	}
	if err := v.eng.SetMode(next); err != nil {
		v.logger.Printf("UI: %v", err)
	}
}

func (v *View) adjustUp() {
	switch v.eng.CurrentState().Mode {
	case engine.ModeErg:
		v.eng.AdjustErgTarget(5)
	case engine.ModeResistance:
		v.eng.AdjustResistance(5)
	}
}

func (v *View) adjustDown() {
	switch v.eng.CurrentState().Mode {
	case engine.ModeErg:
		v.eng.AdjustErgTarget(-5)
	case engine.ModeResistance:
		v.eng.AdjustResistance(-5)
	}
}
