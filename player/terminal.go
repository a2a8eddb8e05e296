package player

import (
	"os"

	"golang.org/x/sys/unix"
)

// GetTerminalSize returns terminal dimensions (cols, rows, widthPx, heightPx)
func GetTerminalSize() (cols, rows, widthPx, heightPx int, err error) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return int(ws.Col), int(ws.Row), int(ws.Xpixel), int(ws.Ypixel), nil
}

// FitCanvas shrinks a canvas to fit within maxW x maxH pixels, keeping its
// aspect ratio. Terminals that don't report pixel sizes get the canvas back
// unchanged.
func FitCanvas(canvasW, canvasH, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || canvasW <= 0 || canvasH <= 0 {
		return canvasW, canvasH
	}
	if canvasW <= maxW && canvasH <= maxH {
		return canvasW, canvasH
	}
	r := Letterbox(canvasW, canvasH, maxW, maxH)
	return r.Dx(), r.Dy()
}
