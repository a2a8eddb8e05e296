package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/njyeung/lipsync/render"
	"github.com/njyeung/lipsync/timeline"
)

type padOptions struct {
	videoStart, videoDuration float64
	audioStart, audioDuration float64
	fps                       float64
	videoSource, audioSource  string
}

func newPadCmd(root *rootOptions) *cobra.Command {
	o := &padOptions{}

	c := &cobra.Command{
		Use:   "pad",
		Short: "Print the render parameters for a clip placement",
		Long: `Computes leading and trailing black padding (in frames) that makes the video
clip cover the audio clip, and prints the render request as JSON. Omit the
flags of a kind to leave it off the timeline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setup(true); err != nil {
				return err
			}
			fps := o.fps
			if !cmd.Flags().Changed("fps") {
				fps = float64(root.settings.FPS)
			}

			flags := cmd.Flags()
			hasVideo := flags.Changed("video-start") || flags.Changed("video-duration")
			hasAudio := flags.Changed("audio-start") || flags.Changed("audio-duration")
			if !hasVideo && !hasAudio {
				return errors.New("give the video and/or audio placement")
			}

			var video, audio *timeline.Track
			if hasVideo {
				t, err := timeline.NewTrack(timeline.Video, o.videoSource, o.videoStart, o.videoDuration)
				if err != nil {
					return err
				}
				video = &t
			}
			if hasAudio {
				t, err := timeline.NewTrack(timeline.Audio, o.audioSource, o.audioStart, o.audioDuration)
				if err != nil {
					return err
				}
				audio = &t
			}

			params, err := timeline.BuildRenderParams(video, audio, fps,
				root.settings.CanvasWidth, root.settings.CanvasHeight)
			if err != nil {
				return err
			}
			req, err := render.NewRequest(params)
			if err != nil {
				return err
			}

			sub := render.JSONSubmitter{W: cmd.OutOrStdout(), Indent: true}
			return sub.Submit(cmd.Context(), req)
		},
	}

	f := c.Flags()
	f.Float64Var(&o.videoStart, "video-start", 0, "Video start, seconds")
	f.Float64Var(&o.videoDuration, "video-duration", 0, "Video duration, seconds")
	f.Float64Var(&o.audioStart, "audio-start", 0, "Audio start, seconds")
	f.Float64Var(&o.audioDuration, "audio-duration", 0, "Audio duration, seconds")
	f.Float64Var(&o.fps, "fps", 0, "Frame rate (defaults to the configured fps)")
	f.StringVar(&o.videoSource, "video", "video", "Video source name written to the request")
	f.StringVar(&o.audioSource, "audio", "audio", "Audio source name written to the request")
	return c
}
