package media

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/njyeung/lipsync/logger"
	"github.com/njyeung/lipsync/player"
)

const (
	// AudioSampleRate is what every source is resampled to
	AudioSampleRate = 44100

	// s16le stereo
	bytesPerSample = 4

	// keep about a second of audio decoded ahead
	audioBufferTarget = AudioSampleRate * bytesPerSample
)

var ErrNoAudio = errors.New("no audio stream")

var (
	speakerOnce sync.Once
	speakerErr  error
)

// initSpeaker opens the output device once per process
func initSpeaker() error {
	speakerOnce.Do(func() {
		sr := beep.SampleRate(AudioSampleRate)
		speakerErr = speaker.Init(sr, sr.N(50*time.Millisecond))
	})
	return speakerErr
}

// audioDecoder decodes packets and resamples them to s16 stereo
type audioDecoder struct {
	codecCtx *astiav.CodecContext
	swrCtx   *astiav.SoftwareResampleContext
	frame    *astiav.Frame
	timeBase astiav.Rational
}

func newAudioDecoder(codecParams *astiav.CodecParameters, timeBase astiav.Rational) (*audioDecoder, error) {
	a := &audioDecoder{timeBase: timeBase}

	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("audio codec not found: %s", codecParams.CodecID())
	}

	a.codecCtx = astiav.AllocCodecContext(codec)
	if a.codecCtx == nil {
		return nil, fmt.Errorf("failed to allocate audio codec context")
	}

	if err := codecParams.ToCodecContext(a.codecCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to copy audio codec params: %w", err)
	}

	if err := a.codecCtx.Open(codec, nil); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open audio codec: %w", err)
	}

	a.frame = astiav.AllocFrame()

	// configured from the first frame
	a.swrCtx = astiav.AllocSoftwareResampleContext()
	if a.swrCtx == nil {
		a.Close()
		return nil, fmt.Errorf("failed to allocate swr context")
	}

	return a, nil
}

// pcmChunk is resampled audio starting at pts seconds
type pcmChunk struct {
	pts  float64
	data []byte
}

// decodePacket returns every chunk the packet produced
func (a *audioDecoder) decodePacket(pkt *astiav.Packet) ([]pcmChunk, error) {
	if err := a.codecCtx.SendPacket(pkt); err != nil {
		return nil, fmt.Errorf("failed to send audio packet: %w", err)
	}

	var chunks []pcmChunk
	for {
		if err := a.codecCtx.ReceiveFrame(a.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				break
			}
			return chunks, fmt.Errorf("failed to receive audio frame: %w", err)
		}

		pts := ptsToSeconds(a.frame.Pts(), a.timeBase)

		outFrame := astiav.AllocFrame()
		outFrame.SetSampleFormat(astiav.SampleFormatS16)
		outFrame.SetSampleRate(AudioSampleRate)
		outFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
		outFrame.SetNbSamples(a.frame.NbSamples())

		if err := outFrame.AllocBuffer(0); err != nil {
			a.frame.Unref()
			outFrame.Free()
			continue
		}

		// frames that fail to resample are skipped
		if err := a.swrCtx.ConvertFrame(a.frame, outFrame); err != nil {
			a.frame.Unref()
			outFrame.Free()
			continue
		}

		// plane 0 holds interleaved S16
		byteSize := outFrame.NbSamples() * bytesPerSample
		plane, err := outFrame.Data().Bytes(0)
		if err == nil && len(plane) >= byteSize {
			data := make([]byte, byteSize)
			copy(data, plane[:byteSize])
			chunks = append(chunks, pcmChunk{pts: pts, data: data})
		}

		a.frame.Unref()
		outFrame.Free()
	}
	return chunks, nil
}

func (a *audioDecoder) Close() {
	if a.frame != nil {
		a.frame.Free()
		a.frame = nil
	}
	if a.swrCtx != nil {
		a.swrCtx.Free()
		a.swrCtx = nil
	}
	if a.codecCtx != nil {
		a.codecCtx.Free()
		a.codecCtx = nil
	}
}

// AudioResource plays the audio stream of a file through the shared
// speaker. Its clock advances by the samples actually handed to the device,
// so Position reflects what was heard rather than what was decoded.
type AudioResource struct {
	path string

	// guarded by mu, read by the speaker goroutine in Stream
	mu        sync.Mutex
	ready     bool
	err       error
	duration  float64
	paused    bool
	muted     bool
	seeking   bool
	target    float64
	clock     float64
	sampleBuf []byte
	eof       bool

	ctrl *beep.Ctrl

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ player.Resource = (*AudioResource)(nil)

// OpenAudio starts loading path in the background. Only the audio stream
// is used, so a video file works too.
func OpenAudio(path string) *AudioResource {
	a := &AudioResource{
		path:      path,
		paused:    true,
		muted:     true,
		sampleBuf: make([]byte, 0, audioBufferTarget),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	a.ctrl = &beep.Ctrl{Streamer: &audioStreamer{res: a}}
	a.wg.Add(1)
	go a.run()
	return a
}

// audioStreamer feeds decoded samples to the speaker
type audioStreamer struct {
	res *AudioResource
}

func (s *audioStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	a := s.res
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.paused || a.seeking {
		silence(samples)
		return len(samples), true
	}

	// sampleBuf (raw bytes from FFmpeg):
	// ┌────┬────┬────┬────┬────┬────┬────┬────┬─...
	// │ L0 │ L0 │ R0 │ R0 │ L1 │ L1 │ R1 │ R1 │
	// │ lo │ hi │ lo │ hi │ lo │ hi │ lo │ hi │
	// └────┴────┴────┴────┴────┴────┴────┴────┴─...
	played := 0
	for i := range samples {
		if len(a.sampleBuf) < bytesPerSample {
			// underrun, keep streaming silence
			silence(samples[i:])
			break
		}

		if a.muted {
			samples[i][0], samples[i][1] = 0, 0
		} else {
			const maxInt16 = float64(32767)
			left := int16(a.sampleBuf[0]) | int16(a.sampleBuf[1])<<8
			right := int16(a.sampleBuf[2]) | int16(a.sampleBuf[3])<<8
			samples[i][0] = float64(left) / maxInt16
			samples[i][1] = float64(right) / maxInt16
		}

		a.sampleBuf = a.sampleBuf[bytesPerSample:]
		played++
	}

	// muted audio still consumes samples so the clock keeps moving
	if played > 0 {
		a.clock += float64(played) / AudioSampleRate
	}
	if played < len(samples) || len(a.sampleBuf) < audioBufferTarget/2 {
		a.signal()
	}
	return len(samples), true
}

func (s *audioStreamer) Err() error {
	return nil
}

func silence(samples [][2]float64) {
	for i := range samples {
		samples[i][0] = 0
		samples[i][1] = 0
	}
}

func (a *AudioResource) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

func (a *AudioResource) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *AudioResource) Duration() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}

func (a *AudioResource) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clock
}

func (a *AudioResource) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

func (a *AudioResource) Seeking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seeking
}

func (a *AudioResource) Play() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = false
}

func (a *AudioResource) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
}

func (a *AudioResource) SetMuted(muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.muted = muted
}

// Seek drops buffered samples and moves the clock to t. The decoder
// refills from t in the background.
func (a *AudioResource) Seek(t float64) {
	a.mu.Lock()
	if a.duration > 0 {
		t = min(t, a.duration)
	}
	t = max(t, 0)
	a.clock = t
	a.target = t
	a.seeking = true
	a.sampleBuf = a.sampleBuf[:0]
	a.mu.Unlock()

	a.signal()
}

// Close detaches from the speaker and stops decoding
func (a *AudioResource) Close() {
	a.closeOnce.Do(func() {
		speaker.Lock()
		a.ctrl.Streamer = nil
		speaker.Unlock()
		close(a.done)
	})
	a.wg.Wait()
}

func (a *AudioResource) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *AudioResource) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	logger.Warn("audio resource failed", logger.String("path", a.path), logger.ErrorField(err))
}

func (a *AudioResource) run() {
	defer a.wg.Done()

	if err := initSpeaker(); err != nil {
		a.fail(fmt.Errorf("init speaker: %w", err))
		return
	}

	demuxer, err := NewDemuxer(a.path)
	if err != nil {
		a.fail(err)
		return
	}
	defer demuxer.Close()
	if !demuxer.HasAudio() {
		a.fail(ErrNoAudio)
		return
	}

	decoder, err := newAudioDecoder(demuxer.AudioCodecParameters(), demuxer.AudioTimeBase())
	if err != nil {
		a.fail(err)
		return
	}
	defer func() {
		if decoder != nil {
			decoder.Close()
		}
	}()

	a.mu.Lock()
	a.duration = demuxer.Duration()
	a.ready = true
	a.mu.Unlock()
	speaker.Play(a.ctrl)
	logger.Debug("audio ready", logger.String("path", a.path), logger.Float64("duration", demuxer.Duration()))

	for {
		select {
		case <-a.done:
			return
		default:
		}

		a.mu.Lock()
		seeking, target := a.seeking, a.target
		a.mu.Unlock()

		if seeking {
			decoder, err = a.seekTo(demuxer, decoder, target)
			if err != nil {
				a.fail(err)
				return
			}
			continue
		}

		if !a.wantMore() {
			select {
			case <-a.done:
				return
			case <-a.wake:
			case <-time.After(idlePoll):
			}
			continue
		}

		chunks, err := a.decodeNext(demuxer, decoder)
		a.mu.Lock()
		switch {
		case errors.Is(err, astiav.ErrEof):
			a.eof = true
		case err != nil:
			a.mu.Unlock()
			a.fail(err)
			return
		case !a.seeking:
			for _, c := range chunks {
				a.sampleBuf = append(a.sampleBuf, c.data...)
			}
		}
		a.mu.Unlock()
	}
}

func (a *AudioResource) wantMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.eof && len(a.sampleBuf) < audioBufferTarget
}

// decodeNext reads packets until the decoder produces samples
func (a *AudioResource) decodeNext(d *Demuxer, dec *audioDecoder) ([]pcmChunk, error) {
	for {
		pkt, _, err := d.ReadPacket()
		if err != nil {
			return nil, err
		}
		if !d.IsAudio(pkt) {
			pkt.Free()
			continue
		}
		chunks, err := dec.decodePacket(pkt)
		pkt.Free()
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			return chunks, nil
		}
	}
}

// seekTo repositions the demuxer, recreates the decoder and decodes
// forward, trimming samples that precede target
func (a *AudioResource) seekTo(d *Demuxer, dec *audioDecoder, target float64) (*audioDecoder, error) {
	if err := d.Seek(target); err != nil {
		return dec, err
	}
	dec.Close()
	dec, err := newAudioDecoder(d.AudioCodecParameters(), d.AudioTimeBase())
	if err != nil {
		return nil, err
	}

	var buf []byte
	eof := false
	for len(buf) == 0 {
		chunks, err := a.decodeNext(d, dec)
		if errors.Is(err, astiav.ErrEof) {
			eof = true
			break
		}
		if err != nil {
			return dec, err
		}
		for _, c := range chunks {
			buf = append(buf, trimBefore(c, target)...)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.target != target {
		return dec, nil
	}
	a.sampleBuf = append(a.sampleBuf[:0], buf...)
	a.eof = eof
	a.seeking = false
	return dec, nil
}

// trimBefore drops the part of c that plays before t
func trimBefore(c pcmChunk, t float64) []byte {
	if c.pts >= t {
		return c.data
	}
	skip := int((t-c.pts)*AudioSampleRate) * bytesPerSample
	if skip >= len(c.data) {
		return nil
	}
	return c.data[skip:]
}
