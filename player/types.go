package player

import (
	"errors"
	"image"
	"time"
)

// Resource is a seekable, playable media element with its own internal
// clock and buffering. The engine is the only thing that drives it.
type Resource interface {
	// Ready is true once metadata is loaded and the resource can play
	Ready() bool

	// Err returns a non-nil error once the resource has failed for good
	Err() error

	// Duration is the media length in seconds, valid once Ready
	Duration() float64

	// Position is the resource's own play position in seconds
	Position() float64

	// Paused reports whether the resource is not advancing
	Paused() bool

	Play()
	Pause()

	// Seek starts an asynchronous seek to t seconds
	Seek(t float64)

	// Seeking is true until the last Seek has completed
	Seeking() bool

	SetMuted(muted bool)
}

// VideoResource is a Resource that also exposes its most recently
// decoded frame. Video resources are always silent.
type VideoResource interface {
	Resource

	// CurrentFrame returns the last decoded frame, or nil if none yet
	CurrentFrame() *Frame
}

// Clock supplies wall-clock time to the engine
type Clock interface {
	Now() time.Time
}

// Scheduler runs fn once on the next animation frame. The returned cancel
// prevents fn from running if it has not started yet.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// Output receives every composited canvas
type Output interface {
	Present(canvas *image.RGBA) error
}

// Frame represents a decoded video frame
type Frame struct {
	RGB    []byte  // RGB24 pixel data
	Width  int     // Frame width in pixels
	Height int     // Frame height in pixels
	PTS    float64 // Presentation timestamp in seconds
}

const (
	// ResyncThreshold is the max drift between a resource and the logical
	// clock before a corrective seek is issued
	ResyncThreshold = 40 * time.Millisecond

	// Kitty image ID used for the preview canvas
	CanvasImageID = 1
)

var (
	ErrEmptyTimeline  = errors.New("timeline has no ready tracks")
	ErrUnknownTrack   = errors.New("track is not bound")
	ErrDuplicateTrack = errors.New("track is already bound")
	ErrKindMismatch   = errors.New("resource does not match track kind")
	ErrNotReady       = errors.New("resource did not become ready in time")
)
