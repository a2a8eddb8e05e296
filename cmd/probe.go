package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/njyeung/lipsync/backend"
	"github.com/njyeung/lipsync/logger"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	var prober string

	c := &cobra.Command{
		Use:   "probe FILE...",
		Short: "Print duration and stream info for media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setup(true); err != nil {
				return err
			}
			if prober == "" {
				prober = root.settings.Prober
			}

			p, err := backend.NewProber(prober)
			if err != nil {
				return err
			}
			defer p.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				ctx, cancel := context.WithTimeout(cmd.Context(), backend.ProbeTimeout)
				info, err := p.Probe(ctx, path)
				cancel()
				if err != nil {
					logger.Error("probe failed", logger.String("path", path), logger.ErrorField(err))
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				if err := enc.Encode(info); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be probed", failed, len(args))
			}
			return nil
		},
	}

	c.Flags().StringVar(&prober, "prober", "", "Prober to use: ffmpeg or chrome (defaults to the configured one)")
	return c
}
