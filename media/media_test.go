package media

import (
	"math"
	"testing"
	"time"

	"github.com/njyeung/lipsync/player"
)

func pcm(samples int, v int16) []byte {
	b := make([]byte, samples*bytesPerSample)
	for i := 0; i < len(b); i += 2 {
		b[i] = byte(v)
		b[i+1] = byte(v >> 8)
	}
	return b
}

func newTestAudio(buf []byte) *AudioResource {
	return &AudioResource{
		ready:     true,
		duration:  10,
		sampleBuf: buf,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func TestTrimBefore(t *testing.T) {
	data := pcm(AudioSampleRate, 1) // one second

	tests := []struct {
		name string
		pts  float64
		t    float64
		want int
	}{
		{"chunk after target", 2, 1, len(data)},
		{"chunk at target", 1, 1, len(data)},
		{"half trimmed", 1, 1.5, len(data) / 2},
		{"entirely before", 0, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trimBefore(pcmChunk{pts: tt.pts, data: data}, tt.t)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
			if len(got)%bytesPerSample != 0 {
				t.Errorf("trim split a sample: %d bytes", len(got))
			}
		})
	}
}

func TestStreamerClock(t *testing.T) {
	a := newTestAudio(pcm(4410, 16384))
	s := &audioStreamer{res: a}
	out := make([][2]float64, 441)

	// paused: silence, clock holds
	a.paused = true
	s.Stream(out)
	if a.Position() != 0 {
		t.Fatalf("clock advanced while paused: %g", a.Position())
	}

	a.Play()
	n, ok := s.Stream(out)
	if n != len(out) || !ok {
		t.Fatalf("Stream = %d, %v", n, ok)
	}
	if math.Abs(a.Position()-0.01) > 1e-12 {
		t.Errorf("clock = %g, want 0.01", a.Position())
	}
	if math.Abs(out[0][0]-16384.0/32767) > 1e-9 {
		t.Errorf("sample = %g", out[0][0])
	}

	// muted: silent output but the clock keeps moving
	a.SetMuted(true)
	s.Stream(out)
	if out[0][0] != 0 || out[0][1] != 0 {
		t.Error("muted stream produced sound")
	}
	if math.Abs(a.Position()-0.02) > 1e-12 {
		t.Errorf("clock = %g, want 0.02", a.Position())
	}
}

func TestStreamerUnderrun(t *testing.T) {
	a := newTestAudio(pcm(100, 1000))
	a.Play()
	s := &audioStreamer{res: a}
	out := make([][2]float64, 441)
	for i := range out {
		out[i] = [2]float64{1, 1}
	}

	n, ok := s.Stream(out)
	if n != len(out) || !ok {
		t.Fatalf("underrun ended the stream: %d, %v", n, ok)
	}
	if out[200] != [2]float64{0, 0} {
		t.Errorf("underrun not filled with silence: %v", out[200])
	}
	if want := 100.0 / AudioSampleRate; math.Abs(a.Position()-want) > 1e-12 {
		t.Errorf("clock = %g, want %g", a.Position(), want)
	}
	select {
	case <-a.wake:
	default:
		t.Error("underrun did not wake the decoder")
	}
}

func TestAudioSeek(t *testing.T) {
	a := newTestAudio(pcm(4410, 1))
	a.Seek(3)

	if !a.Seeking() || a.Position() != 3 {
		t.Fatalf("seeking=%v position=%g", a.Seeking(), a.Position())
	}
	if len(a.sampleBuf) != 0 {
		t.Error("seek kept stale samples")
	}

	a.Seek(50)
	if a.Position() != 10 {
		t.Errorf("seek past the end = %g, want 10", a.Position())
	}
}

func TestVideoCurrentFrame(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &player.Frame{PTS: 0}
	v := &VideoResource{
		now:      func() time.Time { return now },
		ready:    true,
		duration: 10,
		paused:   true,
		current:  first,
		queue: []*player.Frame{
			{PTS: 0.04}, {PTS: 0.08}, {PTS: 0.12},
		},
		wake: make(chan struct{}, 1),
	}

	if got := v.CurrentFrame(); got != first {
		t.Fatal("frame advanced while paused at zero")
	}

	v.Play()
	now = now.Add(90 * time.Millisecond)
	got := v.CurrentFrame()
	if got.PTS != 0.08 {
		t.Errorf("frame PTS = %g, want 0.08", got.PTS)
	}
	if again := v.CurrentFrame(); again != got {
		t.Error("same position returned a different frame")
	}
	if len(v.queue) != 1 {
		t.Errorf("queue = %d, want 1", len(v.queue))
	}

	v.Seek(5)
	if !v.Seeking() || v.Position() != 5 {
		t.Errorf("seeking=%v position=%g", v.Seeking(), v.Position())
	}
	now = now.Add(time.Second)
	if v.Position() != 5 {
		t.Error("clock moved while seeking")
	}
}
