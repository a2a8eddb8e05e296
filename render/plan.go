package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/njyeung/lipsync/timeline"
)

var ErrNothingToRender = errors.New("no video or audio source")

// Segment kinds in a concat plan
const (
	KindBlack = "black"
	KindVideo = "video"
	KindAudio = "audio"
)

// Segment is one input of the downstream concat graph. Black segments are
// generated padding measured in frames; clip segments play a source whole.
type Segment struct {
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
	Frames int    `json:"frames,omitempty"`
}

// Plan lays out the concat inputs for p. With both sources present the
// video clip is framed by black padding so it covers the audio window.
// With only one kind present the sole clip is listed twice, since the
// concat graph always takes two inputs.
func Plan(p timeline.RenderParams) ([]Segment, error) {
	switch {
	case p.VideoSource != "" && p.AudioSource != "":
		segs := make([]Segment, 0, 3)
		if p.LeadingPadFrames > 0 {
			segs = append(segs, Segment{Kind: KindBlack, Frames: p.LeadingPadFrames})
		}
		segs = append(segs, Segment{Kind: KindVideo, Source: p.VideoSource})
		if p.TrailingPadFrames > 0 {
			segs = append(segs, Segment{Kind: KindBlack, Frames: p.TrailingPadFrames})
		}
		return segs, nil

	case p.VideoSource != "":
		clip := Segment{Kind: KindVideo, Source: p.VideoSource}
		return []Segment{clip, clip}, nil

	case p.AudioSource != "":
		clip := Segment{Kind: KindAudio, Source: p.AudioSource}
		return []Segment{clip, clip}, nil
	}
	return nil, ErrNothingToRender
}

// Request is what gets handed to the render pipeline
type Request struct {
	ID       string                `json:"id"`
	Params   timeline.RenderParams `json:"params"`
	Segments []Segment             `json:"segments"`
}

// NewRequest plans p and tags it with a fresh ID
func NewRequest(p timeline.RenderParams) (Request, error) {
	segs, err := Plan(p)
	if err != nil {
		return Request{}, err
	}
	return Request{
		ID:       uuid.NewString(),
		Params:   p,
		Segments: segs,
	}, nil
}

// Submitter hands a render request to whatever builds the output
type Submitter interface {
	Submit(ctx context.Context, req Request) error
}

// JSONSubmitter writes each request as a JSON document
type JSONSubmitter struct {
	W      io.Writer
	Indent bool
}

func (s JSONSubmitter) Submit(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(s.W)
	if s.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("encode render request %s: %w", req.ID, err)
	}
	return nil
}
