package timeline

import (
	"errors"
	"math"
	"testing"
)

func mustTrack(t *testing.T, kind MediaKind, start, duration float64) Track {
	t.Helper()
	tr, err := NewTrack(kind, "", start, duration)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestComputeBounds(t *testing.T) {
	tests := []struct {
		name   string
		tracks []Track
		want   Bounds
	}{
		{
			name:   "no tracks uses minimum length",
			tracks: nil,
			want:   Bounds{Start: 0, End: 10, Empty: true},
		},
		{
			name: "single track",
			tracks: []Track{
				{Start: 2, Duration: 3, Resolved: true},
			},
			want: Bounds{Start: 2, End: 5},
		},
		{
			name: "disjoint tracks",
			tracks: []Track{
				{Start: 7, Duration: 1, Resolved: true},
				{Start: 1, Duration: 2, Resolved: true},
			},
			want: Bounds{Start: 1, End: 8},
		},
		{
			name: "unresolved tracks are excluded",
			tracks: []Track{
				{Start: 0, Duration: 100},
				{Start: 4, Duration: 2, Resolved: true},
			},
			want: Bounds{Start: 4, End: 6},
		},
		{
			name: "only unresolved tracks",
			tracks: []Track{
				{Start: 3},
			},
			want: Bounds{Start: 0, End: 10, Empty: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeBounds(tt.tracks, 10)
			if err != nil {
				t.Fatalf("ComputeBounds() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputeBounds() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeBoundsMatchesExtremes(t *testing.T) {
	tracks := []Track{
		{Start: 3.25, Duration: 1.5, Resolved: true},
		{Start: 0.5, Duration: 0.25, Resolved: true},
		{Start: 9, Duration: 0, Resolved: true},
		{Start: 2, Duration: 12.75, Resolved: true},
	}

	got, err := ComputeBounds(tracks, 0)
	if err != nil {
		t.Fatal(err)
	}

	minStart, maxEnd := math.Inf(1), math.Inf(-1)
	for _, tr := range tracks {
		minStart = math.Min(minStart, tr.Start)
		maxEnd = math.Max(maxEnd, tr.End())
	}
	if got.Start != minStart || got.End != maxEnd {
		t.Errorf("bounds = [%g, %g], want [%g, %g]", got.Start, got.End, minStart, maxEnd)
	}
}

func TestComputeBoundsRejectsNegative(t *testing.T) {
	_, err := ComputeBounds([]Track{{Start: -1, Duration: 2, Resolved: true}}, 0)
	if !errors.Is(err, ErrNegativeStart) {
		t.Errorf("error = %v, want ErrNegativeStart", err)
	}
}

func TestActive(t *testing.T) {
	tr := Track{Start: 2, Duration: 3, Resolved: true}

	tests := []struct {
		t    float64
		want bool
	}{
		{1.999, false},
		{2, true},
		{4.999, true},
		{5, false},
		{6, false},
	}
	for _, tt := range tests {
		if got := Active(tr, tt.t); got != tt.want {
			t.Errorf("Active(t=%g) = %v, want %v", tt.t, got, tt.want)
		}
	}

	if Active(Track{Start: 2, Duration: 3}, 3) {
		t.Error("unresolved track reported active")
	}
}

func TestLocalTime(t *testing.T) {
	tr := Track{Start: 2, Duration: 3, Resolved: true}

	tests := []struct {
		t, want float64
	}{
		{0, 0},
		{2, 0},
		{3.5, 1.5},
		{9, 3},
	}
	for _, tt := range tests {
		if got := LocalTime(tr, tt.t); got != tt.want {
			t.Errorf("LocalTime(%g) = %g, want %g", tt.t, got, tt.want)
		}
	}
}

func TestComputePadding(t *testing.T) {
	tests := []struct {
		name    string
		video   *Track
		audio   *Track
		fps     float64
		want    Padding
		wantErr error
	}{
		{
			name:  "video first, audio runs long",
			video: &Track{Start: 0, Duration: 6, Resolved: true},
			audio: &Track{Start: 2, Duration: 10, Resolved: true},
			fps:   25,
			want:  Padding{LeadingFrames: 0, TrailingFrames: 150},
		},
		{
			name:  "audio first and shorter",
			video: &Track{Start: 3, Duration: 5, Resolved: true},
			audio: &Track{Start: 0, Duration: 4, Resolved: true},
			fps:   25,
			want:  Padding{LeadingFrames: 75, TrailingFrames: 0},
		},
		{
			name:  "identical extents",
			video: &Track{Start: 1.5, Duration: 4.2, Resolved: true},
			audio: &Track{Start: 1.5, Duration: 4.2, Resolved: true},
			fps:   30,
			want:  Padding{},
		},
		{
			name:  "fractional frames floor",
			video: &Track{Start: 0.05, Duration: 1, Resolved: true},
			audio: &Track{Start: 0, Duration: 1.05, Resolved: true},
			fps:   24,
			want:  Padding{LeadingFrames: 1, TrailingFrames: 0},
		},
		{
			name:  "video only",
			video: &Track{Start: 0, Duration: 6, Resolved: true},
			fps:   25,
			want:  Padding{},
		},
		{
			name:  "audio only",
			audio: &Track{Start: 0, Duration: 6, Resolved: true},
			fps:   25,
			want:  Padding{},
		},
		{
			name:    "zero fps",
			video:   &Track{Start: 0, Duration: 6, Resolved: true},
			audio:   &Track{Start: 0, Duration: 6, Resolved: true},
			fps:     0,
			wantErr: ErrInvalidFPS,
		},
		{
			name:    "negative duration",
			video:   &Track{Start: 0, Duration: -1, Resolved: true},
			audio:   &Track{Start: 0, Duration: 6, Resolved: true},
			fps:     25,
			wantErr: ErrNegativeDuration,
		},
		{
			name:    "unresolved audio",
			video:   &Track{Start: 0, Duration: 6, Resolved: true},
			audio:   &Track{Start: 0},
			fps:     25,
			wantErr: ErrUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputePadding(tt.video, tt.audio, tt.fps)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ComputePadding() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputePadding() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputePadding() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPaddingAsAudioStartMoves(t *testing.T) {
	video := &Track{Start: 5, Duration: 4, Resolved: true}
	prev := Padding{LeadingFrames: math.MaxInt, TrailingFrames: -1}

	for start := 0.0; start <= 8; start += 0.1 {
		audio := &Track{Start: start, Duration: 3, Resolved: true}
		got, err := ComputePadding(video, audio, 25)
		if err != nil {
			t.Fatal(err)
		}
		if got.LeadingFrames > prev.LeadingFrames {
			t.Fatalf("audio start %g: leading grew from %d to %d", start, prev.LeadingFrames, got.LeadingFrames)
		}
		if got.TrailingFrames < prev.TrailingFrames {
			t.Fatalf("audio start %g: trailing shrank from %d to %d", start, prev.TrailingFrames, got.TrailingFrames)
		}
		if start >= video.Start && got.LeadingFrames != 0 {
			t.Fatalf("audio start %g: leading = %d after video start", start, got.LeadingFrames)
		}
		prev = got
	}
}
