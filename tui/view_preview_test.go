package tui

import (
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/njyeung/lipsync/timeline"
)

func TestTimelineBar(t *testing.T) {
	bounds := timeline.Bounds{Start: 0, End: 10}
	mk := func(start, dur float64) timeline.Track {
		tr, err := timeline.NewTrack(timeline.Video, "v.mp4", start, dur)
		if err != nil {
			t.Fatal(err)
		}
		return tr
	}

	tests := []struct {
		name   string
		width  int
		bounds timeline.Bounds
		track  timeline.Track
		t      float64
		want   string
	}{
		{"full", 10, bounds, mk(0, 10), 0, "│█████████"},
		{"middle window", 10, bounds, mk(3, 4), 9.5, "───████──│"},
		{"playhead at end", 5, bounds, mk(0, 4), 10, "██──│"},
		{"empty axis", 4, timeline.Bounds{Empty: true}, mk(0, 1), 0, "────"},
		{"offset axis", 4, timeline.Bounds{Start: 2, End: 6}, mk(2, 2), 5, "██─│"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timelineBar(tt.width, tt.bounds, tt.track, tt.t)
			if got != tt.want {
				t.Errorf("timelineBar() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00.00"},
		{3.2, "0:03.20"},
		{61.25, "1:01.25"},
		{-1, "0:00.00"},
	}
	for _, tt := range tests {
		if got := formatTime(tt.in); got != tt.want {
			t.Errorf("formatTime(%g) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFitWidth(t *testing.T) {
	if got := fitWidth("abc", 6); got != "abc   " {
		t.Errorf("pad = %q", got)
	}
	got := fitWidth("▶ a long status line", 8)
	if w := runewidth.StringWidth(got); w != 8 {
		t.Errorf("truncated width = %d, want 8 (%q)", w, got)
	}
	if fitWidth("x", 0) != "" {
		t.Error("zero width should be empty")
	}
}

func TestPickTracks(t *testing.T) {
	a1, _ := timeline.NewTrack(timeline.Audio, "a1.wav", 0, 1)
	v1, _ := timeline.NewTrack(timeline.Video, "v1.mp4", 0, 1)
	a2, _ := timeline.NewTrack(timeline.Audio, "a2.wav", 0, 1)

	video, audio := pickTracks([]timeline.Track{a1, v1, a2})
	if video == nil || video.Source != "v1.mp4" {
		t.Errorf("video = %+v", video)
	}
	if audio == nil || audio.Source != "a1.wav" {
		t.Errorf("audio = %+v", audio)
	}

	video, audio = pickTracks(nil)
	if video != nil || audio != nil {
		t.Error("expected no tracks")
	}
}
