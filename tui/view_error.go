package tui

import (
	"fmt"
	"strings"
)

func (m Model) viewError() string {
	var b strings.Builder
	b.WriteString("\n\n   " + errorStyle.Render(m.err.Error()) + "\n\n")
	for _, src := range []struct{ label, path string }{
		{"video", m.cfg.VideoPath},
		{"audio", m.cfg.AudioPath},
	} {
		if src.path != "" {
			b.WriteString(fmt.Sprintf("   %s %s\n", labelStyle.Render(src.label), src.path))
		}
	}
	b.WriteString("\n   Press q to quit.\n")
	return b.String()
}
