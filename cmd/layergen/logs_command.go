package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"layerforge/internal/layer"
	"layerforge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		runID  string
		only   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show layerforge.log, optionally for one run or layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Paths.LogDir == "" {
				return errors.New("paths.log_dir is not configured")
			}
			filter := logs.Filter{RunID: runID}
			if only != "" {
				l, err := layer.Parse(only)
				if err != nil {
					return fmt.Errorf("--layer: %w", err)
				}
				filter.Layer = string(l)
			}
			path := filepath.Join(cfg.Paths.LogDir, "layerforge.log")
			out := cmd.OutOrStdout()

			opts := logs.TailOptions{Offset: -1, Limit: lines, Filter: filter}
			for {
				result, err := logs.Tail(cmd.Context(), path, opts)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 2 * time.Second, Filter: filter}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&runID, "run", "", "Only lines of this run id (prefix allowed)")
	cmd.Flags().StringVar(&only, "layer", "", "Only lines of this layer (name or prefix)")
	return cmd
}
