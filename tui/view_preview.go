package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/njyeung/lipsync/player"
	"github.com/njyeung/lipsync/timeline"
)

const (
	barFill     = '█'
	barEmpty    = '─'
	barPlayhead = '│'
)

func (m Model) viewPreview() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	s := m.snapshot

	// Status line
	icon := "▶"
	if s.IsPlaying {
		icon = "❚❚"
	}
	ready := "ready"
	if !s.IsReady {
		ready = m.spinner.View() + " loading"
	}
	status := fmt.Sprintf(" %s  %s / %s   %s", icon,
		formatTime(s.LogicalTime-s.Bounds.Start), formatTime(s.Bounds.Length()), ready)
	if m.status != "" {
		status += "   " + m.status
	}
	b.WriteString(statusStyle.Render(fitWidth(status, m.width)) + "\n")

	// the canvas image is placed over these rows
	b.WriteString(strings.Repeat("\n", m.renderer.CanvasRows(m.canvasH)))

	barWidth := max(m.width-labelStyle.GetWidth()-2, 10)
	b.WriteString(strings.Repeat(" ", labelStyle.GetWidth()) + strings.Repeat("─", barWidth) + "\n")

	for i, ts := range s.Tracks {
		b.WriteString(m.trackRow(i, ts, barWidth) + "\n")
	}

	// Padding the export would use right now
	if params, err := m.renderParams(); err == nil {
		b.WriteString(statusStyle.Render(fmt.Sprintf("pad  lead %df  trail %df  @ %gfps  length %s",
			params.LeadingPadFrames, params.TrailingPadFrames, params.FPS,
			formatTime(params.TimelineDurationSeconds))) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(navStyle.Render("space: play/pause  h/l: seek 1s  ,/.: step frame  0: start") + "\n")
	b.WriteString(navStyle.Render("tab: select track  H/L: nudge track  e: export  q: quit"))

	return b.String()
}

func (m Model) trackRow(i int, ts player.TrackState, width int) string {
	label := labelStyle
	if i == m.selected {
		label = selectedLabelStyle
	}
	name := ts.Track.Kind.String()

	bar := timelineBar(width, m.snapshot.Bounds, ts.Track, m.snapshot.LogicalTime)
	style := videoBarStyle
	if ts.Track.Kind == timeline.Audio {
		style = audioBarStyle
	}
	if ts.Err != nil {
		style = failedBarStyle
	}

	detail := ""
	switch {
	case ts.Err != nil:
		detail = " failed"
	case !ts.Track.Resolved:
		detail = " ..."
	default:
		detail = fmt.Sprintf(" %s-%s", formatTime(ts.Track.Start), formatTime(ts.Track.End()))
	}
	return label.Render(name) + style.Render(bar) + statusStyle.Render(detail)
}

// timelineBar draws one track across width cells of the timeline axis b.
// Cells whose midpoint lies inside the track window are filled; the cell
// holding t is the playhead.
func timelineBar(width int, b timeline.Bounds, track timeline.Track, t float64) string {
	if width <= 0 {
		return ""
	}
	length := b.Length()
	cells := make([]rune, width)
	for i := range cells {
		cells[i] = barEmpty
		if length <= 0 {
			continue
		}
		mid := b.Start + (float64(i)+0.5)*length/float64(width)
		if timeline.Active(track, mid) {
			cells[i] = barFill
		}
	}

	if length > 0 {
		col := int(math.Floor((t - b.Start) / length * float64(width)))
		cells[min(max(col, 0), width-1)] = barPlayhead
	}
	return string(cells)
}

// fitWidth pads or truncates s to exactly width terminal cells
func fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// formatTime renders seconds as m:ss.cc
func formatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	cs := int(math.Round(seconds * 100))
	return fmt.Sprintf("%d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}
