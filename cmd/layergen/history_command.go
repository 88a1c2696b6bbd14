package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"layerforge/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs, or the layers and generations of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				if len(args) == 1 {
					return showRun(cmd, store, args[0], asJSON)
				}
				return listRuns(cmd, store, limit, asJSON)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of tables")
	return cmd
}

func listRuns(cmd *cobra.Command, store *ledger.Store, limit int, asJSON bool) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.Name,
			run.StartLayer + " → " + run.EndLayer,
			string(run.Status),
			strconv.Itoa(run.LLMCalls),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Duration().Round(time.Second).String(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Name", "Layers", "Status", "Calls", "Started", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	))
	return nil
}

type runDetail struct {
	Run         *ledger.Run         `json:"run"`
	Layers      []ledger.LayerRun   `json:"layers"`
	Generations []ledger.Generation `json:"generations"`
	Usage       []ledger.Usage      `json:"usage"`
}

func loadRunDetail(ctx context.Context, store *ledger.Store, id string) (runDetail, error) {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return runDetail{}, err
	}
	if run == nil {
		return runDetail{}, fmt.Errorf("run %s not found", id)
	}
	detail := runDetail{Run: run}
	if detail.Layers, err = store.LayerRuns(ctx, run.ID); err != nil {
		return runDetail{}, err
	}
	if detail.Generations, err = store.Generations(ctx, run.ID); err != nil {
		return runDetail{}, err
	}
	if detail.Usage, err = store.Usage(ctx, run.ID); err != nil {
		return runDetail{}, err
	}
	return detail, nil
}

func showRun(cmd *cobra.Command, store *ledger.Store, id string, asJSON bool) error {
	detail, err := loadRunDetail(cmd.Context(), store, id)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), detail)
	}
	renderRunDetail(cmd.OutOrStdout(), detail)
	return nil
}

func renderRunDetail(out io.Writer, d runDetail) {
	run := d.Run
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Name)
	fmt.Fprintf(out, "  Status: %s\n", run.Status)
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:  %s\n", run.ErrorMessage)
	}
	fmt.Fprintf(out, "  Layers: %s → %s (%s)\n", run.StartLayer, run.EndLayer, run.Mode)
	fmt.Fprintf(out, "  Model:  %s\n", run.Model)
	fmt.Fprintf(out, "  Calls:  %d, score %d, %s\n", run.LLMCalls, run.Score, run.Duration().Round(time.Millisecond))

	if len(d.Layers) > 0 {
		rows := make([][]string, 0, len(d.Layers))
		for _, lr := range d.Layers {
			rows = append(rows, []string{lr.Layer, string(lr.Status), strconv.Itoa(lr.Targets), strconv.Itoa(lr.LLMCalls), lr.ErrorMessage})
		}
		fmt.Fprintln(out, renderTable([]string{"Layer", "Status", "Targets", "Calls", "Error"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
	}
	if len(d.Generations) > 0 {
		rows := make([][]string, 0, len(d.Generations))
		for _, g := range d.Generations {
			rows = append(rows, []string{g.Layer, g.Target, g.Decision, g.Reason, strconv.Itoa(g.Score), strconv.Itoa(g.LLMCalls)})
		}
		fmt.Fprintln(out, renderTable([]string{"Layer", "Target", "Decision", "Reason", "Score", "Calls"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
	}
	if len(d.Usage) > 0 {
		rows := make([][]string, 0, len(d.Usage))
		for _, u := range d.Usage {
			rows = append(rows, []string{u.Model, strconv.Itoa(u.Requests), strconv.Itoa(u.Failures), strconv.Itoa(u.InputTokens), strconv.Itoa(u.OutputTokens)})
		}
		fmt.Fprintln(out, renderTable([]string{"Model", "Requests", "Failures", "Input tokens", "Output tokens"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
