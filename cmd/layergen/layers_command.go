package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"layerforge/internal/layer"
)

func newLayersCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "layers",
		Short:       "List the pipeline layers in order",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			all := layer.All()
			rows := make([][]string, 0, len(all))
			for _, l := range all {
				rows = append(rows, []string{
					strconv.FormatFloat(l.Level(), 'f', -1, 64),
					string(l),
					l.Label(),
					string(l.Kind()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Level", "Layer", "Label", "Kind"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
