package ui

import (
	"fmt"

	"github.com/lowaak/ride-pilot/internal/engine"
)

func formatMMSS(totalSec int) string {
	if totalSec < 0 {
		totalSec = 0
	}
	return fmt.Sprintf("%02d:%02d", totalSec/60, totalSec%60)
}

func (v *View) renderState(st engine.ViewState) {
	v.renderMetrics(st)
	v.renderInterval(st)
	v.renderStatus(st)
}

func (v *View) renderMetrics(st engine.ViewState) {
	text := "\n"
	if st.LastPower != nil {
		text += fmt.Sprintf("  [blue]⚡[white] Power:      [yellow]%.0f[white] W\n\n", *st.LastPower)
	} else {
		text += "  [blue]⚡[white] Power:      [gray]--[white]\n\n"
	}
	if st.HasTarget {
		text += fmt.Sprintf("  [green]◎[white] Target:     [yellow]%d[white] W\n\n", st.TargetWatts)
	}
	if st.LastCadence != nil {
		text += fmt.Sprintf("  [cyan]↻[white] Cadence:    [yellow]%.0f[white] rpm\n\n", *st.LastCadence)
	}
	if st.LastHeartRate != nil {
		text += fmt.Sprintf("  [red]♥[white] Heart Rate: [yellow]%.0f[white] bpm\n\n", *st.LastHeartRate)
	}
	text += fmt.Sprintf("  [gray]FTP:[white] %d W\n", st.FTP)
	v.metricsPanel.SetText(text)
}

func (v *View) renderInterval(st engine.ViewState) {
	var text string
	switch {
	case st.WorkoutName == "":
		text = "\n  [gray]No workout loaded[white]\n\n"
		text += "  Press [yellow]1[white] to pick a workout.\n"
	case !st.Running && !st.Starting:
		text = "\n"
		text += fmt.Sprintf("  [yellow]%s[white]\n\n", st.WorkoutName)
		text += fmt.Sprintf("  [gray]Duration:[white] %s\n\n", formatMMSS(st.TotalSec))
		text += "  [green]Ready[white]\n\n"
		text += "  [gray]Press[white] [yellow]Space[white] [gray]to start, or just pedal.[white]\n"
	default:
		text = "\n"
		label := st.WorkoutName
		if st.Paused {
			label += " [gray](PAUSED)[white]"
		}
		text += fmt.Sprintf("  [yellow]%s[white]\n\n", label)
		text += fmt.Sprintf("  [gray]Elapsed:[white]   %s\n", formatMMSS(st.ElapsedSec))
		text += fmt.Sprintf("  [gray]Remaining:[white] %s\n\n", formatMMSS(st.TotalSec-st.ElapsedSec))
		if st.HasTarget {
			text += fmt.Sprintf("  [cyan]Segment %d[white]\n", st.SegmentIndex+1)
			text += fmt.Sprintf("  [gray]Target:[white]        %d W\n", st.TargetWatts)
			text += fmt.Sprintf("  [gray]Next change:[white]  %s\n", formatMMSS(st.IntervalRemainingSec))
		}
		if st.WorkoutDone {
			text += "\n  [green]Workout complete![white] Press [yellow]x[white] to finish.\n"
		}
	}
	v.intervalPanel.SetText(text)
}

func (v *View) renderStatus(st engine.ViewState) {
	text := "\n"
	text += fmt.Sprintf("  [gray]Mode:[white] [yellow]%s[white]\n\n", st.Mode)
	switch st.Mode {
	case engine.ModeErg:
		text += fmt.Sprintf("  [gray]ERG target:[white] %d W\n", st.ErgTargetWatts)
	case engine.ModeResistance:
		text += fmt.Sprintf("  [gray]Resistance:[white] %d%%\n", st.ResistancePercent)
	}
	text += "\n  [gray]Keys:[white] Space start/pause  m mode  x end\n"
	text += "  [gray]     [white] +/- adjust  [/] FTP  q quit\n"
	if v.simTrainer != nil {
		text += "  [gray]     [white] p toggle pedaling (sim)\n"
	}
	v.statusPanel.SetText(text)
}

func (v *View) renderWorkoutDetail(index int) {
	if index < 0 || index >= len(v.catalog) {
		v.workoutDetail.SetText("\n  [gray]Select a workout to view details.[white]\n")
		return
	}
	p := v.catalog[index]
	text := "\n"
	text += fmt.Sprintf("  [yellow]%s[white]\n\n", p.Name)
	text += fmt.Sprintf("  [gray]Duration:[white] %s\n", formatMMSS(p.TotalSeconds()))
	text += fmt.Sprintf("  [gray]Segments:[white] %d\n\n", len(p.Segments))
	text += "  [gray]Structure:[white]\n"
	for i, seg := range p.Segments {
		if seg.StartPercent == seg.EndPercent {
			text += fmt.Sprintf("    %d. %.0f%% FTP for %s\n", i+1, seg.StartPercent, formatMMSS(seg.Seconds()))
		} else {
			text += fmt.Sprintf("    %d. %.0f%% to %.0f%% FTP over %s\n", i+1, seg.StartPercent, seg.EndPercent, formatMMSS(seg.Seconds()))
		}
	}
	text += "\n  [green]Press Enter to load this workout[white]\n"
	v.workoutDetail.SetText(text)
}

func (v *View) renderSummary(s engine.RideSummary) {
	v.logger.Printf("UI: ride ended: %s, %s, avg %.0f W over %d samples",
		s.WorkoutName, formatMMSS(s.DurationSec), s.AvgPowerWatts, s.SampleCount)
	text := "\n  [green]Ride complete[white]\n\n"
	text += fmt.Sprintf("  [gray]Workout:[white]   %s\n", s.WorkoutName)
	text += fmt.Sprintf("  [gray]Duration:[white]  %s\n", formatMMSS(s.DurationSec))
	text += fmt.Sprintf("  [gray]Avg power:[white] %.0f W\n", s.AvgPowerWatts)
	text += "\n  Press [yellow]1[white] to pick another workout.\n"
	v.intervalPanel.SetText(text)
}
