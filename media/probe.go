package media

import "fmt"

// Info describes a media file without decoding it
type Info struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	HasVideo bool    `json:"hasVideo"`
	HasAudio bool    `json:"hasAudio"`
}

// Probe reads container metadata for path
func Probe(path string) (Info, error) {
	d, err := NewDemuxer(path)
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", path, err)
	}
	defer d.Close()

	info := Info{
		Path:     path,
		Duration: d.Duration(),
		HasVideo: d.HasVideo(),
		HasAudio: d.HasAudio(),
	}
	info.Width, info.Height = d.VideoSize()
	return info, nil
}
