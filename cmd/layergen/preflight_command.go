package main

import (
	"errors"

	"github.com/spf13/cobra"

	"layerforge/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var (
		live  bool
		route string
	)

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, LLM routes, and interpreters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			con := newConsole(cmd.OutOrStdout())
			con.header("Preflight")
			if ctx.configPath != "" {
				con.status("Config", toneInfo, ctx.configPath)
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Live: live, Route: route})
			for _, r := range results {
				t := toneOK
				if !r.Passed {
					t = toneError
				}
				con.status(r.Name, t, r.Detail)
			}
			if preflight.Failed(results) {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Send one short completion to every route")
	cmd.Flags().StringVar(&route, "route", "", "Check only the named route")
	return cmd
}
