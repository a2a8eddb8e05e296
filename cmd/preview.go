package cmd

import (
	"errors"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/njyeung/lipsync/logger"
	"github.com/njyeung/lipsync/player"
	"github.com/njyeung/lipsync/tui"
)

func newPreviewCmd(root *rootOptions) *cobra.Command {
	var cfg tui.Config

	c := &cobra.Command{
		Use:   "preview",
		Short: "Preview the video and audio clips in sync",
		Long: `Opens the clips, places them on the timeline at the given start times and
starts the interactive preview. Either clip may be omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.VideoPath == "" && cfg.AudioPath == "" {
				return errors.New("at least one of --video or --audio is required")
			}
			if err := root.setup(false); err != nil {
				return err
			}

			// must run before bubbletea takes stdin
			if root.settings.UseShm && !player.ShmSupported() {
				logger.Warn("shared memory transfer not supported by this terminal, using inline frames")
				root.settings.UseShm = false
			}

			cfg.Settings = root.settings
			cfg.ExportDir = filepath.Join(root.configDir, "exports")

			m, err := tui.NewModel(cfg, os.Stdout)
			if err != nil {
				return err
			}
			logger.Info("preview starting",
				logger.String("video", cfg.VideoPath),
				logger.String("audio", cfg.AudioPath))

			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	c.Flags().StringVar(&cfg.VideoPath, "video", "", "Video clip")
	c.Flags().StringVar(&cfg.AudioPath, "audio", "", "Audio clip")
	c.Flags().Float64Var(&cfg.VideoStart, "video-start", 0, "Video start on the timeline, seconds")
	c.Flags().Float64Var(&cfg.AudioStart, "audio-start", 0, "Audio start on the timeline, seconds")
	return c
}
