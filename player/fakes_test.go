package player

import (
	"image"
	"time"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type scheduled struct {
	fn        func()
	cancelled bool
}

// fakeScheduler only runs callbacks when the test fires them
type fakeScheduler struct {
	entries []*scheduled
}

func (s *fakeScheduler) Schedule(fn func()) func() {
	e := &scheduled{fn: fn}
	s.entries = append(s.entries, e)
	return func() { e.cancelled = true }
}

// Pending reports whether a live callback is waiting
func (s *fakeScheduler) Pending() bool {
	for _, e := range s.entries {
		if !e.cancelled && e.fn != nil {
			return true
		}
	}
	return false
}

// Fire runs every live callback scheduled so far, once
func (s *fakeScheduler) Fire() {
	entries := s.entries
	s.entries = nil
	for _, e := range entries {
		if !e.cancelled {
			e.fn()
		}
	}
}

// FireStale runs callbacks even if cancelled, like a timer that already
// fired and was waiting on the engine lock
func (s *fakeScheduler) FireStale() {
	entries := s.entries
	s.entries = nil
	for _, e := range entries {
		e.fn()
	}
}

// fakeResource free-runs on the fake clock at rate, like a media element
// with its own internal clock
type fakeResource struct {
	clock *fakeClock

	ready    bool
	err      error
	duration float64
	rate     float64

	paused bool
	muted  bool
	base   float64
	since  time.Time

	// holdSeeks leaves seeks in flight until completeSeek
	holdSeeks  bool
	seeking    bool
	seekTarget float64

	seeks, plays int
}

func newFakeResource(clock *fakeClock, duration float64) *fakeResource {
	return &fakeResource{
		clock:    clock,
		ready:    true,
		duration: duration,
		rate:     1,
		paused:   true,
	}
}

func (r *fakeResource) Ready() bool       { return r.ready }
func (r *fakeResource) Err() error        { return r.err }
func (r *fakeResource) Duration() float64 { return r.duration }
func (r *fakeResource) Paused() bool      { return r.paused }
func (r *fakeResource) Seeking() bool     { return r.seeking }
func (r *fakeResource) SetMuted(m bool)   { r.muted = m }

func (r *fakeResource) Position() float64 {
	if r.paused {
		return r.base
	}
	return r.base + r.clock.Now().Sub(r.since).Seconds()*r.rate
}

func (r *fakeResource) Play() {
	if r.paused {
		r.since = r.clock.Now()
		r.paused = false
		r.plays++
	}
}

func (r *fakeResource) Pause() {
	if !r.paused {
		r.base = r.Position()
		r.paused = true
	}
}

func (r *fakeResource) Seek(t float64) {
	r.seeks++
	if r.holdSeeks {
		r.seeking = true
		r.seekTarget = t
		return
	}
	r.base = t
	r.since = r.clock.Now()
}

func (r *fakeResource) completeSeek() {
	r.seeking = false
	r.base = r.seekTarget
	r.since = r.clock.Now()
}

// fakeVideo shows a solid frame whose shade follows its position
type fakeVideo struct {
	*fakeResource
	width, height int
	noFrame       bool
}

func newFakeVideo(clock *fakeClock, duration float64, w, h int) *fakeVideo {
	return &fakeVideo{fakeResource: newFakeResource(clock, duration), width: w, height: h}
}

func (v *fakeVideo) CurrentFrame() *Frame {
	if v.noFrame {
		return nil
	}
	shade := byte(int(v.Position()*10) % 200)
	rgb := make([]byte, v.width*v.height*3)
	for i := range rgb {
		rgb[i] = 50 + shade
	}
	return &Frame{RGB: rgb, Width: v.width, Height: v.height, PTS: v.Position()}
}

type fakeOutput struct {
	presents int
	last     *image.RGBA
}

func (o *fakeOutput) Present(canvas *image.RGBA) error {
	o.presents++
	o.last = canvas
	return nil
}
