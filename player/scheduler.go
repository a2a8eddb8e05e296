package player

import "time"

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FrameTicker schedules callbacks at a fixed frame interval, the terminal
// stand-in for an animation-frame callback
type FrameTicker struct {
	Interval time.Duration
}

// NewFrameTicker returns a ticker for the given interval (16ms if <= 0)
func NewFrameTicker(interval time.Duration) *FrameTicker {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &FrameTicker{Interval: interval}
}

func (f *FrameTicker) Schedule(fn func()) (cancel func()) {
	t := time.AfterFunc(f.Interval, fn)
	return func() { t.Stop() }
}
