package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// MediaKind identifies which kind of media a track carries
type MediaKind int

const (
	Video MediaKind = iota
	Audio
)

func (k MediaKind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrNegativeStart    = errors.New("track start time is negative or not finite")
	ErrNegativeDuration = errors.New("track duration is negative or not finite")
	ErrInvalidFPS       = errors.New("frame rate must be positive")
	ErrUnresolved       = errors.New("track duration is not resolved")
)

// Track is a clip placed on the timeline. Times are in seconds.
type Track struct {
	ID     string
	Kind   MediaKind
	Source string // opaque handle, usually a file path

	Start    float64
	Duration float64

	// Resolved is false until Duration is known, either supplied by the
	// caller or read from the decoded resource.
	Resolved bool
}

// NewTrack creates a track with a caller-supplied duration
func NewTrack(kind MediaKind, source string, start, duration float64) (Track, error) {
	t := Track{
		ID:       uuid.NewString(),
		Kind:     kind,
		Source:   source,
		Start:    start,
		Duration: duration,
		Resolved: true,
	}
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// NewPendingTrack creates a track whose duration will be resolved later
func NewPendingTrack(kind MediaKind, source string, start float64) (Track, error) {
	t := Track{
		ID:     uuid.NewString(),
		Kind:   kind,
		Source: source,
		Start:  start,
	}
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// Validate checks the placement invariants
func (t Track) Validate() error {
	if t.Start < 0 || !finite(t.Start) {
		return fmt.Errorf("track %s: %w (%g)", t.ID, ErrNegativeStart, t.Start)
	}
	if t.Duration < 0 || !finite(t.Duration) {
		return fmt.Errorf("track %s: %w (%g)", t.ID, ErrNegativeDuration, t.Duration)
	}
	return nil
}

// End returns Start+Duration
func (t Track) End() float64 {
	return t.Start + t.Duration
}

// WithStart returns a copy moved to a new start time
func (t Track) WithStart(start float64) (Track, error) {
	t.Start = start
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// WithDuration returns a resolved copy with the given duration
func (t Track) WithDuration(d float64) (Track, error) {
	t.Duration = d
	t.Resolved = true
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
