package timeline

import (
	"fmt"
	"math"
)

// frameEpsilon keeps exact products like 6*25 from flooring to 149
const frameEpsilon = 1e-9

// Bounds is the union interval of all resolved tracks
type Bounds struct {
	Start float64
	End   float64

	// Empty is set when no resolved track exists. Start/End then describe
	// an axis of the host-supplied minimum length for display only.
	Empty bool
}

// Length returns End-Start
func (b Bounds) Length() float64 {
	return b.End - b.Start
}

// Clamp restricts t to [Start, End]
func (b Bounds) Clamp(t float64) float64 {
	return clamp(t, b.Start, b.End)
}

// ComputeBounds derives the timeline bounds. Unresolved tracks are ignored.
// With no resolved tracks the result is Empty with length minLength.
func ComputeBounds(tracks []Track, minLength float64) (Bounds, error) {
	var b Bounds
	found := false

	for _, t := range tracks {
		if !t.Resolved {
			continue
		}
		if err := t.Validate(); err != nil {
			return Bounds{}, err
		}
		if !found {
			b.Start, b.End = t.Start, t.End()
			found = true
			continue
		}
		b.Start = math.Min(b.Start, t.Start)
		b.End = math.Max(b.End, t.End())
	}

	if !found {
		return Bounds{Start: 0, End: math.Max(minLength, 0), Empty: true}, nil
	}
	return b, nil
}

// Active reports whether t falls in the track's half-open window
// [Start, Start+Duration). Unresolved tracks are never active.
func Active(track Track, t float64) bool {
	if !track.Resolved {
		return false
	}
	return t >= track.Start && t < track.End()
}

// LocalTime maps a timeline position to the track's own clock, clamped
// to [0, Duration]
func LocalTime(track Track, t float64) float64 {
	return clamp(t-track.Start, 0, track.Duration)
}

// Padding is the black/silent frame count needed to reconcile a video
// clip with the audio clip's extent
type Padding struct {
	LeadingFrames  int
	TrailingFrames int
}

// ComputePadding derives leading and trailing padding from one video and
// one audio track. Either may be nil; padding then is zero.
func ComputePadding(video, audio *Track, fps float64) (Padding, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return Padding{}, fmt.Errorf("%w: %g", ErrInvalidFPS, fps)
	}
	if video == nil || audio == nil {
		return Padding{}, nil
	}
	for _, t := range []*Track{video, audio} {
		if err := t.Validate(); err != nil {
			return Padding{}, err
		}
		if !t.Resolved {
			return Padding{}, fmt.Errorf("track %s: %w", t.ID, ErrUnresolved)
		}
	}

	return Padding{
		LeadingFrames:  framesOf(video.Start-audio.Start, fps),
		TrailingFrames: framesOf(audio.End()-video.End(), fps),
	}, nil
}

func framesOf(seconds, fps float64) int {
	n := math.Floor(seconds*fps + frameEpsilon)
	if n < 0 {
		return 0
	}
	return int(n)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
