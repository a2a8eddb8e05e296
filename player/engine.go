package player

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/njyeung/lipsync/logger"
	"github.com/njyeung/lipsync/timeline"
)

// Config sizes the canvas and tunes readiness handling
type Config struct {
	CanvasWidth  int
	CanvasHeight int

	// MinTimeline is the axis length reported when no track is ready
	MinTimeline float64

	// ReadyTimeout fails a resource that is still not ready this long
	// after being bound. Zero waits forever.
	ReadyTimeout time.Duration
}

type binding struct {
	track   timeline.Track
	res     Resource
	video   VideoResource // nil for audio tracks
	boundAt time.Time
	err     error

	// a seek was seen in flight; redraw once it lands
	seekPending bool
}

func (b *binding) schedulable() bool {
	return b.err == nil && b.track.Resolved && b.res.Ready()
}

// Engine drives every bound resource from a single logical clock. All
// commands and ticks are serialized on mu, so a tick never observes a
// half-applied mutation.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	clock Clock
	sched Scheduler
	out   Output

	canvas    *image.RGBA
	lastShown *Frame

	bindings []*binding

	playing bool
	anchor  time.Time // wall time at which offset was taken
	offset  float64   // logical time at anchor
	logical float64   // value used by the last step

	gen        uint64 // bumped on stop; stale ticks compare and bail
	cancelTick func()
	closed     bool
}

// NewEngine creates a stopped engine. out may be nil.
func NewEngine(cfg Config, clock Clock, sched Scheduler, out Output) *Engine {
	if cfg.CanvasWidth <= 0 {
		cfg.CanvasWidth = 640
	}
	if cfg.CanvasHeight <= 0 {
		cfg.CanvasHeight = 360
	}
	e := &Engine{
		cfg:    cfg,
		clock:  clock,
		sched:  sched,
		out:    out,
		canvas: image.NewRGBA(image.Rect(0, 0, cfg.CanvasWidth, cfg.CanvasHeight)),
	}
	e.anchor = clock.Now()
	return e
}

// TrackState is a read-only view of one bound track
type TrackState struct {
	Track  timeline.Track
	Ready  bool
	Active bool
	Err    error
}

// Snapshot is what the UI is allowed to read
type Snapshot struct {
	LogicalTime float64
	IsPlaying   bool
	IsReady     bool
	Bounds      timeline.Bounds
	Tracks      []TrackState
}

// Snapshot reports the current logical time and per-track state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.refreshLocked(now) && !e.playing {
		e.stepLocked(now, true)
	}

	b := e.boundsLocked()
	t := e.logicalAtLocked(now, b)

	s := Snapshot{
		LogicalTime: t,
		IsPlaying:   e.playing,
		IsReady:     !b.Empty,
		Bounds:      b,
		Tracks:      make([]TrackState, 0, len(e.bindings)),
	}
	for _, bd := range e.bindings {
		ready := bd.schedulable()
		if bd.err == nil && !ready {
			s.IsReady = false
		}
		s.Tracks = append(s.Tracks, TrackState{
			Track:  bd.track,
			Ready:  ready,
			Active: ready && timeline.Active(bd.track, t),
			Err:    bd.err,
		})
	}
	return s
}

// Canvas returns a copy of the last composited frame
func (e *Engine) Canvas() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := image.NewRGBA(e.canvas.Bounds())
	copy(cp.Pix, e.canvas.Pix)
	return cp
}

// Tracks returns the current track placements
func (e *Engine) Tracks() []timeline.Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]timeline.Track, len(e.bindings))
	for i, bd := range e.bindings {
		out[i] = bd.track
	}
	return out
}

// Play starts the tick loop from the current position, or from the start
// if the clock sits at the end of the timeline
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.playLocked(e.clock.Now())
}

func (e *Engine) playLocked(now time.Time) error {
	e.refreshLocked(now)
	b := e.boundsLocked()
	if b.Empty {
		return ErrEmptyTimeline
	}
	if e.playing {
		return nil
	}
	e.cancelTickLocked()

	cur := b.Clamp(e.offset)
	if cur >= b.End {
		cur = b.Start
	}
	e.offset = cur
	e.anchor = now
	e.playing = true
	logger.Info("playback started", logger.Float64("at", cur))

	e.stepLocked(now, true)
	if e.playing {
		e.scheduleLocked()
	}
	return nil
}

// Pause stops playback, pausing every resource before returning
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked(e.clock.Now())
	e.scheduleIdleLocked()
}

// Toggle switches between playing and stopped
func (e *Engine) Toggle() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.playing {
		e.stopLocked(now)
		e.scheduleIdleLocked()
		return nil
	}
	return e.playLocked(now)
}

// SeekTo re-anchors the logical clock at target (clamped to the timeline)
// and runs one resync and render immediately. The play state is kept.
func (e *Engine) SeekTo(target float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.seekLocked(e.clock.Now(), target)
}

// SeekBy moves the logical clock relative to its current position
func (e *Engine) SeekBy(delta float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	return e.seekLocked(now, e.logicalAtLocked(now, e.boundsLocked())+delta)
}

func (e *Engine) seekLocked(now time.Time, target float64) float64 {
	b := e.boundsLocked()
	if math.IsNaN(target) {
		target = b.Start
	}

	e.offset = b.Clamp(target)
	e.anchor = now
	logger.Debug("seek", logger.Float64("target", target), logger.Float64("logical", e.offset))

	e.stepLocked(now, true)
	return e.logical
}

// AddTrack binds a resource to a track. A video track needs a VideoResource.
func (e *Engine) AddTrack(track timeline.Track, res Resource) error {
	if err := track.Validate(); err != nil {
		return err
	}

	bd := &binding{track: track, res: res}
	if track.Kind == timeline.Video {
		v, ok := res.(VideoResource)
		if !ok {
			return fmt.Errorf("track %s: %w", track.ID, ErrKindMismatch)
		}
		bd.video = v
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, other := range e.bindings {
		if other.track.ID == track.ID {
			return fmt.Errorf("track %s: %w", track.ID, ErrDuplicateTrack)
		}
	}

	now := e.clock.Now()
	bd.boundAt = now
	if track.Kind == timeline.Audio {
		res.SetMuted(true)
	}
	e.bindings = append(e.bindings, bd)

	logger.Info("track bound",
		logger.String("id", track.ID),
		logger.String("kind", track.Kind.String()),
		logger.String("source", track.Source),
		logger.Float64("start", track.Start))

	e.mutatedLocked(now)
	return nil
}

// RemoveTrack unbinds a track and returns its resource, paused and muted,
// for the caller to release
func (e *Engine) RemoveTrack(id string) (Resource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, bd := range e.bindings {
		if bd.track.ID != id {
			continue
		}
		bd.res.SetMuted(true)
		bd.res.Pause()
		e.bindings = append(e.bindings[:i], e.bindings[i+1:]...)
		logger.Info("track removed", logger.String("id", id))

		e.mutatedLocked(e.clock.Now())
		return bd.res, nil
	}
	return nil, fmt.Errorf("track %s: %w", id, ErrUnknownTrack)
}

// MoveTrack places a track at a new start time
func (e *Engine) MoveTrack(id string, start float64) error {
	return e.updateTrack(id, func(t timeline.Track) (timeline.Track, error) {
		return t.WithStart(start)
	})
}

// ResolveTrack supplies the duration for a track added without one
func (e *Engine) ResolveTrack(id string, duration float64) error {
	return e.updateTrack(id, func(t timeline.Track) (timeline.Track, error) {
		return t.WithDuration(duration)
	})
}

func (e *Engine) updateTrack(id string, fn func(timeline.Track) (timeline.Track, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bd := e.findLocked(id)
	if bd == nil {
		return fmt.Errorf("track %s: %w", id, ErrUnknownTrack)
	}
	updated, err := fn(bd.track)
	if err != nil {
		return err
	}
	bd.track = updated

	e.mutatedLocked(e.clock.Now())
	return nil
}

// FailTrack marks a track as never-ready for the rest of the session. Its
// window renders black and silent; other tracks keep playing.
func (e *Engine) FailTrack(id string, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bd := e.findLocked(id)
	if bd == nil {
		return fmt.Errorf("track %s: %w", id, ErrUnknownTrack)
	}
	e.failLocked(bd, cause)
	e.mutatedLocked(e.clock.Now())
	return nil
}

// Close stops playback for good
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked(e.clock.Now())
	e.cancelTickLocked()
	e.closed = true
}

func (e *Engine) findLocked(id string) *binding {
	for _, bd := range e.bindings {
		if bd.track.ID == id {
			return bd
		}
	}
	return nil
}

// mutatedLocked refreshes the preview after an edit. While playing the
// next tick picks the change up.
func (e *Engine) mutatedLocked(now time.Time) {
	if !e.playing {
		e.stepLocked(now, true)
	}
}

func (e *Engine) boundsLocked() timeline.Bounds {
	tracks := make([]timeline.Track, 0, len(e.bindings))
	for _, bd := range e.bindings {
		tracks = append(tracks, bd.track)
	}
	b, err := timeline.ComputeBounds(tracks, e.cfg.MinTimeline)
	if err != nil {
		// tracks are validated on every mutation
		panic(err)
	}
	return b
}

func (e *Engine) logicalAtLocked(now time.Time, b timeline.Bounds) float64 {
	t := e.offset
	if e.playing {
		t += now.Sub(e.anchor).Seconds()
	}
	return b.Clamp(t)
}

func (e *Engine) scheduleLocked() {
	gen := e.gen
	e.cancelTick = e.sched.Schedule(func() {
		e.tick(gen)
	})
}

// scheduleIdleLocked keeps stepping while stopped until every resource has
// become ready and every active one has landed its seek
func (e *Engine) scheduleIdleLocked() {
	if e.playing || e.closed || e.cancelTick != nil || !e.unsettledLocked() {
		return
	}
	gen := e.gen
	e.cancelTick = e.sched.Schedule(func() {
		e.idleTick(gen)
	})
}

func (e *Engine) idleTick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || e.playing {
		return
	}
	e.cancelTick = nil
	e.stepLocked(e.clock.Now(), false)
}

func (e *Engine) unsettledLocked() bool {
	for _, bd := range e.bindings {
		if bd.err != nil {
			continue
		}
		if !bd.res.Ready() || bd.seekPending {
			return true
		}
		if !bd.schedulable() || !timeline.Active(bd.track, e.logical) {
			continue
		}
		if bd.res.Seeking() {
			return true
		}
		local := timeline.LocalTime(bd.track, e.logical)
		if math.Abs(bd.res.Position()-local) > ResyncThreshold.Seconds() {
			return true
		}
	}
	return false
}

func (e *Engine) cancelTickLocked() {
	e.gen++
	if e.cancelTick != nil {
		e.cancelTick()
		e.cancelTick = nil
	}
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || !e.playing {
		return
	}
	e.cancelTick = nil

	e.stepLocked(e.clock.Now(), false)
	if e.playing {
		e.scheduleLocked()
	}
}

// stepLocked is one tick: refresh readiness, sync every track against the
// same logical time, render, and stop at the end of the timeline. While
// stopped it arranges a follow-up step if anything is still settling.
func (e *Engine) stepLocked(now time.Time, force bool) {
	if e.refreshLocked(now) {
		force = true
	}

	b := e.boundsLocked()
	t := e.logicalAtLocked(now, b)
	e.logical = t

	for _, bd := range e.bindings {
		if e.syncLocked(bd, t) {
			force = true
		}
	}
	e.renderLocked(t, force)

	if e.playing && (b.Empty || t >= b.End) {
		logger.Info("playback reached end", logger.Float64("at", t))
		e.stopLocked(now)
	}
	e.scheduleIdleLocked()
}

// refreshLocked polls readiness and errors, resolving durations as they
// become known. It reports whether any track became schedulable or failed.
func (e *Engine) refreshLocked(now time.Time) bool {
	changed := false
	for _, bd := range e.bindings {
		if bd.err != nil {
			continue
		}
		was := bd.schedulable()
		e.refreshBindingLocked(bd, now)
		if bd.err != nil || bd.schedulable() != was {
			changed = true
		}
	}
	return changed
}

func (e *Engine) refreshBindingLocked(bd *binding, now time.Time) {
	if err := bd.res.Err(); err != nil {
		e.failLocked(bd, err)
		return
	}
	if !bd.res.Ready() {
		if e.cfg.ReadyTimeout > 0 && now.Sub(bd.boundAt) > e.cfg.ReadyTimeout {
			e.failLocked(bd, ErrNotReady)
		}
		return
	}
	if bd.track.Resolved {
		return
	}
	resolved, err := bd.track.WithDuration(bd.res.Duration())
	if err != nil {
		e.failLocked(bd, err)
		return
	}
	bd.track = resolved
	logger.Info("track duration resolved",
		logger.String("id", bd.track.ID),
		logger.Float64("duration", bd.track.Duration))
}

func (e *Engine) failLocked(bd *binding, cause error) {
	if bd.err != nil {
		return
	}
	bd.err = fmt.Errorf("track %s: %w", bd.track.ID, cause)
	bd.res.SetMuted(true)
	bd.res.Pause()
	logger.Warn("track failed, excluded for this session",
		logger.String("id", bd.track.ID),
		logger.String("source", bd.track.Source),
		logger.ErrorField(cause))
}

// syncLocked drives one resource toward t. It reports true when a seek seen
// in flight earlier has landed, so the caller redraws.
func (e *Engine) syncLocked(bd *binding, t float64) (landed bool) {
	if !bd.schedulable() {
		bd.seekPending = false
		return false
	}
	if bd.seekPending && !bd.res.Seeking() {
		bd.seekPending = false
		landed = true
	}
	res := bd.res
	audio := bd.track.Kind == timeline.Audio

	if !timeline.Active(bd.track, t) {
		// mute first so nothing bleeds while the pause lands
		if audio {
			res.SetMuted(true)
		}
		if !res.Paused() {
			res.Pause()
		}
		return landed
	}

	local := timeline.LocalTime(bd.track, t)
	if !res.Seeking() {
		if drift := math.Abs(res.Position() - local); drift > ResyncThreshold.Seconds() {
			logger.Debug("resync",
				logger.String("id", bd.track.ID),
				logger.Float64("position", res.Position()),
				logger.Float64("expected", local))
			res.Seek(local)
		}
	}
	if res.Seeking() {
		bd.seekPending = true
	}

	if e.playing {
		if res.Paused() {
			res.Play()
		}
	} else if !res.Paused() {
		res.Pause()
	}
	if audio {
		res.SetMuted(false)
	}
	return landed
}

func (e *Engine) renderLocked(t float64, force bool) {
	layers := make([]Layer, 0, len(e.bindings))
	for _, bd := range e.bindings {
		if bd.video != nil && bd.schedulable() {
			layers = append(layers, Layer{Track: bd.track, Source: bd.video})
		}
	}

	shown := RenderFrame(e.canvas, t, layers)
	if e.out == nil || (!force && shown == e.lastShown) {
		return
	}
	e.lastShown = shown
	if err := e.out.Present(e.canvas); err != nil {
		logger.Warn("present failed", logger.ErrorField(err))
	}
}

func (e *Engine) stopLocked(now time.Time) {
	if !e.playing {
		return
	}
	e.offset = e.logicalAtLocked(now, e.boundsLocked())
	e.anchor = now
	e.playing = false
	e.logical = e.offset

	e.cancelTickLocked()

	for _, bd := range e.bindings {
		if bd.track.Kind == timeline.Audio {
			bd.res.SetMuted(true)
		}
		if !bd.res.Paused() {
			bd.res.Pause()
		}
	}
	logger.Info("playback stopped", logger.Float64("at", e.offset))
}
