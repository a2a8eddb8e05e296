package timeline

import "math"

// RenderParams is handed once to the render-request builder at submission
// time. It is never stored.
type RenderParams struct {
	LeadingPadFrames        int     `json:"leadingPadFrames"`
	TrailingPadFrames       int     `json:"trailingPadFrames"`
	TimelineDurationSeconds float64 `json:"timelineDurationSeconds"`

	FPS    float64 `json:"fps"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`

	VideoSource string `json:"videoSource,omitempty"`
	AudioSource string `json:"audioSource,omitempty"`

	// Audio window expressed in the video clip's local time
	AudioStartTime float64 `json:"audioStartTime"`
	AudioEndTime   float64 `json:"audioEndTime"`
}

// BuildRenderParams derives the export for the current video/audio pair.
// Unresolved tracks are treated as absent.
func BuildRenderParams(video, audio *Track, fps float64, width, height int) (RenderParams, error) {
	if video != nil && !video.Resolved {
		video = nil
	}
	if audio != nil && !audio.Resolved {
		audio = nil
	}

	pad, err := ComputePadding(video, audio, fps)
	if err != nil {
		return RenderParams{}, err
	}

	var tracks []Track
	for _, t := range []*Track{video, audio} {
		if t != nil {
			tracks = append(tracks, *t)
		}
	}
	bounds, err := ComputeBounds(tracks, 0)
	if err != nil {
		return RenderParams{}, err
	}

	p := RenderParams{
		LeadingPadFrames:  pad.LeadingFrames,
		TrailingPadFrames: pad.TrailingFrames,
		FPS:               fps,
		Width:             width,
		Height:            height,
	}
	if !bounds.Empty {
		p.TimelineDurationSeconds = bounds.Length()
	}
	if video != nil {
		p.VideoSource = video.Source
	}
	if audio != nil {
		p.AudioSource = audio.Source
		origin := 0.0
		if video != nil {
			origin = video.Start
		}
		p.AudioStartTime = math.Max(audio.Start-origin, 0)
		p.AudioEndTime = math.Max(audio.End()-origin, 0)
	}
	return p, nil
}
