package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"layerforge/internal/grimoire"
	"layerforge/internal/logging"
)

func newGrimoiresCommand(ctx *commandContext) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "grimoires",
		Short: "List the available prompt templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			roles := grimoire.Roles()
			if role != "" {
				if !slices.Contains(roles, grimoire.Role(role)) {
					return fmt.Errorf("unknown grimoire role %q", role)
				}
				roles = []grimoire.Role{grimoire.Role(role)}
			}
			resolver, err := grimoire.NewResolver(cfg.Paths.GrimoireDir, logging.NewNop())
			if err != nil {
				return err
			}
			defer resolver.Close()

			var rows [][]string
			for _, r := range roles {
				templates, err := resolver.Catalogue(r)
				if err != nil {
					return fmt.Errorf("list %s grimoires: %w", r, err)
				}
				for _, tpl := range templates {
					source := tpl.Path
					if tpl.Embedded {
						source = "embedded"
					}
					rows = append(rows, []string{string(tpl.Role), tpl.Name, tpl.Description, source})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Role", "Name", "Description", "Source"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Limit to one role: compiler, formatter, or architect")
	return cmd
}
