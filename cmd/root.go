package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/njyeung/lipsync/config"
	"github.com/njyeung/lipsync/logger"
)

// options shared by every subcommand
type rootOptions struct {
	configDir string
	settings  config.Settings
}

// NewRootCmd builds the lipsync command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "lipsync",
		Short: "Line up a video and an audio clip and preview them in sync",
		Long: `lipsync places one video clip and one audio clip on a shared timeline,
plays them back in lock-step in the terminal, and exports the padding a
renderer needs to make the video cover the audio.`,
		SilenceUsage: true,
	}

	home, _ := os.UserHomeDir()
	root.PersistentFlags().StringVar(&opts.configDir, "config", filepath.Join(home, ".lipsync"), "Config directory")

	root.AddCommand(newPreviewCmd(opts))
	root.AddCommand(newPadCmd(opts))
	root.AddCommand(newProbeCmd(opts))
	return root
}

// setup loads settings and starts the logger. console is off while the TUI
// owns the terminal.
func (o *rootOptions) setup(console bool) error {
	s, err := config.Load(o.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.settings = s

	return logger.InitLogger(logger.Config{
		Level:      logger.ParseLevel(s.LogLevel),
		OutputPath: s.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		Console:    console,
	})
}

// Execute runs the root command
func Execute() {
	defer logger.Sync()
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
