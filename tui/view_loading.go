package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) viewLoading() string {
	if m.width == 0 || m.height == 0 {
		return fmt.Sprintf("\n\n   %s %s\n\n", m.spinner.View(), m.status)
	}

	return renderLoadingScreen(m.width, m.height, titleStyle.Render("lipsync"), m.spinner.View()+" "+m.status)
}

// renderLoadingScreen centers lines in a width x height block
func renderLoadingScreen(width, height int, lines ...string) string {
	startRow := (height - len(lines)) / 2

	var b strings.Builder
	for y := range height {
		line := ""
		if y >= startRow && y < startRow+len(lines) {
			line = lines[y-startRow]
		}
		pad := max(width-lipgloss.Width(line), 0)
		left := pad / 2
		b.WriteString(strings.Repeat(" ", left) + line + strings.Repeat(" ", pad-left))
		if y < height-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
