package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
)

// avTimeBase is FFmpeg's AV_TIME_BASE, the unit of container durations
// and stream-agnostic seek timestamps
const avTimeBase = 1_000_000

var (
	ErrNoStream      = errors.New("no audio or video stream found")
	ErrDemuxerClosed = errors.New("demuxer closed")
)

// Demuxer handles opening media and reading packets. Either stream may be
// missing but not both.
type Demuxer struct {
	formatCtx   *astiav.FormatContext
	videoStream *astiav.Stream
	audioStream *astiav.Stream
	videoIdx    int
	audioIdx    int

	// Time base for PTS conversion
	videoTimeBase astiav.Rational
	audioTimeBase astiav.Rational

	mu     sync.Mutex
	closed bool
}

// NewDemuxer opens the file at path and picks its first video and audio
// streams
func NewDemuxer(path string) (*Demuxer, error) {
	d := &Demuxer{
		videoIdx: -1,
		audioIdx: -1,
	}

	d.formatCtx = astiav.AllocFormatContext()
	if d.formatCtx == nil {
		return nil, fmt.Errorf("failed to allocate format context")
	}

	if err := d.formatCtx.OpenInput(path, nil, nil); err != nil {
		d.formatCtx.Free()
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	if err := d.formatCtx.FindStreamInfo(nil); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to find stream info: %w", err)
	}

	for _, stream := range d.formatCtx.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.videoIdx == -1 {
				d.videoIdx = stream.Index()
				d.videoStream = stream
				d.videoTimeBase = stream.TimeBase()
			}
		case astiav.MediaTypeAudio:
			if d.audioIdx == -1 {
				d.audioIdx = stream.Index()
				d.audioStream = stream
				d.audioTimeBase = stream.TimeBase()
			}
		}
	}

	if d.videoIdx == -1 && d.audioIdx == -1 {
		d.Close()
		return nil, ErrNoStream
	}

	return d, nil
}

// VideoCodecParameters returns the video codec parameters
func (d *Demuxer) VideoCodecParameters() *astiav.CodecParameters {
	if d.videoStream == nil {
		return nil
	}
	return d.videoStream.CodecParameters()
}

// AudioCodecParameters returns the audio codec parameters
func (d *Demuxer) AudioCodecParameters() *astiav.CodecParameters {
	if d.audioStream == nil {
		return nil
	}
	return d.audioStream.CodecParameters()
}

func (d *Demuxer) HasVideo() bool { return d.videoIdx != -1 }
func (d *Demuxer) HasAudio() bool { return d.audioIdx != -1 }

// VideoSize returns the coded frame size, 0x0 without a video stream
func (d *Demuxer) VideoSize() (int, int) {
	if d.videoStream == nil {
		return 0, 0
	}
	p := d.videoStream.CodecParameters()
	return p.Width(), p.Height()
}

// VideoTimeBase returns the video stream time base
func (d *Demuxer) VideoTimeBase() astiav.Rational {
	return d.videoTimeBase
}

// AudioTimeBase returns the audio stream time base
func (d *Demuxer) AudioTimeBase() astiav.Rational {
	return d.audioTimeBase
}

// Duration returns the container duration in seconds, falling back to the
// longest stream when the container doesn't carry one
func (d *Demuxer) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.formatCtx == nil {
		return 0
	}
	if us := d.formatCtx.Duration(); us > 0 {
		return float64(us) / avTimeBase
	}

	var longest float64
	for _, s := range []*astiav.Stream{d.videoStream, d.audioStream} {
		if s == nil || s.Duration() <= 0 {
			continue
		}
		longest = max(longest, ptsToSeconds(s.Duration(), s.TimeBase()))
	}
	return longest
}

// ReadPacket reads the next packet from the stream
// Returns the packet and whether it's a video packet (true) or audio packet (false)
// Returns nil, false, astiav.ErrEof when stream ends
func (d *Demuxer) ReadPacket() (*astiav.Packet, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, false, ErrDemuxerClosed
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		return nil, false, fmt.Errorf("failed to allocate packet")
	}

	if err := d.formatCtx.ReadFrame(pkt); err != nil {
		pkt.Free()
		return nil, false, err
	}

	isVideo := pkt.StreamIndex() == d.videoIdx
	return pkt, isVideo, nil
}

// IsAudio reports whether pkt belongs to the selected audio stream
func (d *Demuxer) IsAudio(pkt *astiav.Packet) bool {
	return d.audioIdx != -1 && pkt.StreamIndex() == d.audioIdx
}

// Seek moves the read position to the keyframe at or before seconds.
// Decoders must be reset afterwards.
func (d *Demuxer) Seek(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDemuxerClosed
	}
	ts := int64(max(seconds, 0) * avTimeBase)
	if err := d.formatCtx.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("failed to seek to %.3fs: %w", seconds, err)
	}
	return nil
}

func ptsToSeconds(pts int64, tb astiav.Rational) float64 {
	if tb.Den() == 0 {
		return 0
	}
	return float64(pts) * float64(tb.Num()) / float64(tb.Den())
}

// Close releases all resources
func (d *Demuxer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	if d.formatCtx != nil {
		d.formatCtx.CloseInput()
		d.formatCtx.Free()
		d.formatCtx = nil
	}
}
