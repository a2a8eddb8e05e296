package media

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/lipsync/logger"
	"github.com/njyeung/lipsync/player"
)

const (
	// decode at most this far ahead of the playback position
	videoLookahead  = 0.5
	maxQueuedFrames = 8
	idlePoll        = 10 * time.Millisecond
)

var ErrNoVideo = errors.New("no video stream")

// VideoDecoder decodes video frames and scales to target size
type VideoDecoder struct {
	codecCtx *astiav.CodecContext
	swsCtx   *astiav.SoftwareScaleContext
	frame    *astiav.Frame
	rgbFrame *astiav.Frame

	srcWidth  int
	srcHeight int
	dstWidth  int
	dstHeight int

	timeBase astiav.Rational

	mu     sync.Mutex
	closed bool
}

// NewVideoDecoder creates a video decoder from codec parameters
func NewVideoDecoder(codecParams *astiav.CodecParameters, timeBase astiav.Rational) (*VideoDecoder, error) {
	v := &VideoDecoder{
		timeBase:  timeBase,
		srcWidth:  codecParams.Width(),
		srcHeight: codecParams.Height(),
		dstWidth:  codecParams.Width(),
		dstHeight: codecParams.Height(),
	}

	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("video codec not found: %s", codecParams.CodecID())
	}

	v.codecCtx = astiav.AllocCodecContext(codec)
	if v.codecCtx == nil {
		return nil, fmt.Errorf("failed to allocate video codec context")
	}

	if err := codecParams.ToCodecContext(v.codecCtx); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to copy video codec params: %w", err)
	}

	if err := v.codecCtx.Open(codec, nil); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to open video codec: %w", err)
	}

	v.frame = astiav.AllocFrame()
	v.rgbFrame = astiav.AllocFrame()

	return v, nil
}

// SetSize sets the output dimensions for scaling
func (v *VideoDecoder) SetSize(width, height int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if width == v.dstWidth && height == v.dstHeight && v.swsCtx != nil {
		return nil
	}

	v.dstWidth = width
	v.dstHeight = height

	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}

	return v.initSwsContext()
}

func (v *VideoDecoder) initSwsContext() error {
	if v.dstWidth == 0 || v.dstHeight == 0 {
		return nil
	}

	// source format -> RGB24 at target size
	var err error
	v.swsCtx, err = astiav.CreateSoftwareScaleContext(
		v.srcWidth, v.srcHeight, v.codecCtx.PixelFormat(),
		v.dstWidth, v.dstHeight, astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("failed to create sws context: %w", err)
	}

	v.rgbFrame.Unref()
	v.rgbFrame.SetWidth(v.dstWidth)
	v.rgbFrame.SetHeight(v.dstHeight)
	v.rgbFrame.SetPixelFormat(astiav.PixelFormatRgb24)

	if err := v.rgbFrame.AllocBuffer(1); err != nil {
		return fmt.Errorf("failed to allocate RGB frame buffer: %w", err)
	}

	return nil
}

// DecodePacket decodes a video packet and returns an RGB frame, or nil if
// the decoder needs more input
func (v *VideoDecoder) DecodePacket(pkt *astiav.Packet) (*player.Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, fmt.Errorf("video decoder closed")
	}

	if err := v.codecCtx.SendPacket(pkt); err != nil {
		return nil, fmt.Errorf("failed to send video packet: %w", err)
	}

	if err := v.codecCtx.ReceiveFrame(v.frame); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to receive video frame: %w", err)
	}
	defer v.frame.Unref()

	pts := ptsToSeconds(v.frame.Pts(), v.timeBase)

	if v.swsCtx == nil {
		if err := v.initSwsContext(); err != nil {
			return nil, err
		}
	}

	if err := v.swsCtx.ScaleFrame(v.frame, v.rgbFrame); err != nil {
		return nil, fmt.Errorf("failed to scale frame: %w", err)
	}

	rgbBytes, err := v.rgbFrame.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get RGB bytes: %w", err)
	}

	// the frame buffer is reused
	rgb := make([]byte, len(rgbBytes))
	copy(rgb, rgbBytes)

	return &player.Frame{
		RGB:    rgb,
		Width:  v.dstWidth,
		Height: v.dstHeight,
		PTS:    pts,
	}, nil
}

// SourceSize returns the original video dimensions
func (v *VideoDecoder) SourceSize() (int, int) {
	return v.srcWidth, v.srcHeight
}

// Close releases all resources
func (v *VideoDecoder) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true

	if v.frame != nil {
		v.frame.Free()
		v.frame = nil
	}
	if v.rgbFrame != nil {
		v.rgbFrame.Free()
		v.rgbFrame = nil
	}
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}
	if v.codecCtx != nil {
		v.codecCtx.Free()
		v.codecCtx = nil
	}
}

// VideoResource plays the video stream of a file against its own clock.
// It opens and decodes on a background goroutine; until that finishes
// Ready reports false. Frames are scaled once to fit maxW x maxH.
type VideoResource struct {
	path       string
	maxW, maxH int
	now        func() time.Time

	mu       sync.Mutex
	ready    bool
	err      error
	duration float64

	paused bool
	base   float64
	since  time.Time

	seeking bool
	target  float64

	current *player.Frame
	queue   []*player.Frame // decoded ahead, ascending PTS
	eof     bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ player.VideoResource = (*VideoResource)(nil)

// OpenVideo starts loading path in the background
func OpenVideo(path string, maxW, maxH int) *VideoResource {
	v := &VideoResource{
		path:   path,
		maxW:   maxW,
		maxH:   maxH,
		now:    time.Now,
		paused: true,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	v.wg.Add(1)
	go v.run()
	return v
}

func (v *VideoResource) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

func (v *VideoResource) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *VideoResource) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duration
}

func (v *VideoResource) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *VideoResource) Seeking() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seeking
}

// SetMuted is a no-op, the audio of a video file is never played
func (v *VideoResource) SetMuted(bool) {}

func (v *VideoResource) Position() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionLocked()
}

// the clock holds still while paused or seeking, like a stalled element
func (v *VideoResource) positionLocked() float64 {
	if v.paused || v.seeking {
		return v.base
	}
	p := v.base + v.now().Sub(v.since).Seconds()
	if v.duration > 0 {
		p = min(p, v.duration)
	}
	return p
}

func (v *VideoResource) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		v.since = v.now()
		v.paused = false
	}
}

func (v *VideoResource) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.paused {
		v.base = v.positionLocked()
		v.paused = true
	}
}

// Seek jumps the clock to t and asks the decoder to catch up. Seeking stays
// true until a frame at t is available.
func (v *VideoResource) Seek(t float64) {
	v.mu.Lock()
	if v.duration > 0 {
		t = min(t, v.duration)
	}
	v.base = max(t, 0)
	v.target = v.base
	v.seeking = true
	v.queue = nil
	v.mu.Unlock()

	v.signal()
}

// CurrentFrame returns the latest decoded frame at or before the current
// position. The pointer only changes when a new frame is due.
func (v *VideoResource) CurrentFrame() *player.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos := v.positionLocked()
	advanced := false
	for len(v.queue) > 0 && v.queue[0].PTS <= pos {
		v.current = v.queue[0]
		v.queue = v.queue[1:]
		advanced = true
	}
	if advanced {
		v.signal()
	}
	return v.current
}

// Close stops the decoder goroutine and frees the decoder
func (v *VideoResource) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
	})
	v.wg.Wait()
}

func (v *VideoResource) signal() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *VideoResource) fail(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
	logger.Warn("video resource failed", logger.String("path", v.path), logger.ErrorField(err))
}

func (v *VideoResource) run() {
	defer v.wg.Done()

	demuxer, err := NewDemuxer(v.path)
	if err != nil {
		v.fail(err)
		return
	}
	defer demuxer.Close()
	if !demuxer.HasVideo() {
		v.fail(ErrNoVideo)
		return
	}

	decoder, err := v.openDecoder(demuxer)
	if err != nil {
		v.fail(err)
		return
	}
	defer func() {
		if decoder != nil {
			decoder.Close()
		}
	}()

	// show the first frame while paused at zero
	first, err := v.decodeNext(demuxer, decoder)
	if err != nil && !errors.Is(err, astiav.ErrEof) {
		v.fail(err)
		return
	}

	v.mu.Lock()
	v.duration = demuxer.Duration()
	v.current = first
	v.ready = true
	v.mu.Unlock()
	logger.Debug("video ready", logger.String("path", v.path), logger.Float64("duration", demuxer.Duration()))

	for {
		select {
		case <-v.done:
			return
		default:
		}

		v.mu.Lock()
		seeking, target := v.seeking, v.target
		v.mu.Unlock()

		if seeking {
			decoder, err = v.seekTo(demuxer, decoder, target)
			if err != nil {
				v.fail(err)
				return
			}
			continue
		}

		if !v.wantMore() {
			select {
			case <-v.done:
				return
			case <-v.wake:
			case <-time.After(idlePoll):
			}
			continue
		}

		frame, err := v.decodeNext(demuxer, decoder)
		v.mu.Lock()
		switch {
		case errors.Is(err, astiav.ErrEof):
			v.eof = true
		case err != nil:
			v.mu.Unlock()
			v.fail(err)
			return
		case !v.seeking:
			// drop frames raced by a seek
			v.queue = append(v.queue, frame)
		}
		v.mu.Unlock()
	}
}

func (v *VideoResource) wantMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.eof || len(v.queue) >= maxQueuedFrames {
		return false
	}
	if len(v.queue) == 0 {
		return true
	}
	return v.queue[len(v.queue)-1].PTS < v.positionLocked()+videoLookahead
}

func (v *VideoResource) openDecoder(d *Demuxer) (*VideoDecoder, error) {
	decoder, err := NewVideoDecoder(d.VideoCodecParameters(), d.VideoTimeBase())
	if err != nil {
		return nil, err
	}
	srcW, srcH := decoder.SourceSize()
	if v.maxW > 0 && v.maxH > 0 {
		r := player.Letterbox(srcW, srcH, v.maxW, v.maxH)
		if err := decoder.SetSize(r.Dx(), r.Dy()); err != nil {
			decoder.Close()
			return nil, err
		}
	}
	return decoder, nil
}

// decodeNext reads packets until the decoder produces a video frame.
// Returns astiav.ErrEof at the end of the file.
func (v *VideoResource) decodeNext(d *Demuxer, dec *VideoDecoder) (*player.Frame, error) {
	for {
		pkt, isVideo, err := d.ReadPacket()
		if err != nil {
			return nil, err
		}
		if !isVideo {
			pkt.Free()
			continue
		}
		frame, err := dec.DecodePacket(pkt)
		pkt.Free()
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
}

// seekTo repositions the demuxer and decodes forward to target. The codec
// context is recreated so no reference frames survive the jump.
func (v *VideoResource) seekTo(d *Demuxer, dec *VideoDecoder, target float64) (*VideoDecoder, error) {
	if err := d.Seek(target); err != nil {
		return dec, err
	}
	dec.Close()
	dec, err := v.openDecoder(d)
	if err != nil {
		return nil, err
	}

	var shown *player.Frame
	eof := false
	for {
		frame, err := v.decodeNext(d, dec)
		if errors.Is(err, astiav.ErrEof) {
			eof = true
			break
		}
		if err != nil {
			return dec, err
		}
		if frame.PTS > target {
			v.mu.Lock()
			v.queue = append(v.queue[:0], frame)
			v.mu.Unlock()
			break
		}
		shown = frame
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.target != target {
		// superseded while decoding, the loop picks up the new target
		v.queue = nil
		return dec, nil
	}
	if shown != nil {
		v.current = shown
	}
	v.eof = eof
	v.seeking = false
	v.since = v.now()
	return dec, nil
}
