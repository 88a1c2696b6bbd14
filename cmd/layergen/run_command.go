package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"layerforge/internal/layer"
	"layerforge/internal/ledger"
	"layerforge/internal/logging"
	"layerforge/internal/router"
	"layerforge/internal/workflow"
)

type runFlags struct {
	prompt      string
	compiler    string
	formatter   string
	architect   string
	model       string
	name        string
	language    string
	startLayer  string
	endLayer    string
	intent      string
	mode        string
	concurrency int
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Run the layer pipeline on an input file or text",
		Long: "Run the layer pipeline from the start layer to the end layer.\n\n" +
			"The input may be a path to a request document or the request text itself.\n" +
			"Resuming from a later layer only needs --name when earlier outputs exist.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args)
			if err != nil {
				return err
			}
			return executeRun(cmd, ctx, req, flags.concurrency)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.prompt, "prompt", "p", "", "Instruction folded into the first layer")
	f.StringVar(&flags.compiler, "compiler", "", "Compiler grimoire for the first layer")
	f.StringVar(&flags.formatter, "formatter", "", "Formatter grimoire for document layers")
	f.StringVar(&flags.architect, "architect", "", "Architect grimoire for the requirement layer")
	f.StringVarP(&flags.model, "model", "m", "", "Main model or route name")
	f.StringVarP(&flags.name, "name", "n", "", "Run name (defaults to one derived from the input)")
	f.StringVarP(&flags.language, "language", "l", "", "Natural language of generated documents")
	f.StringVarP(&flags.startLayer, "start-layer", "s", "", "First layer to run (name or prefix such as 4_)")
	f.StringVarP(&flags.endLayer, "end-layer", "e", "", "Last layer to run (name or prefix)")
	f.StringVar(&flags.intent, "intent", "", "Intent folded into every layer's prompt")
	f.StringVar(&flags.mode, "mode", "", "Prompt mode: "+joinModes())
	f.IntVar(&flags.concurrency, "concurrency", 0, "Fan-out concurrency (defaults to workflow.max_concurrency)")

	return cmd
}

func (f runFlags) request(args []string) (workflow.Request, error) {
	req := workflow.Request{
		Prompt:    f.prompt,
		Name:      f.name,
		Compiler:  f.compiler,
		Formatter: f.formatter,
		Architect: f.architect,
		Model:     f.model,
		Language:  f.language,
		Intent:    f.intent,
	}
	if len(args) > 0 {
		req.Input = args[0]
	}
	if strings.TrimSpace(f.startLayer) != "" {
		l, err := layer.Parse(f.startLayer)
		if err != nil {
			return req, fmt.Errorf("--start-layer: %w", err)
		}
		req.StartLayer = l
	}
	if strings.TrimSpace(f.endLayer) != "" {
		l, err := layer.Parse(f.endLayer)
		if err != nil {
			return req, fmt.Errorf("--end-layer: %w", err)
		}
		req.EndLayer = l
	}
	mode, err := layer.ParseMode(f.mode)
	if err != nil {
		return req, fmt.Errorf("--mode: %w", err)
	}
	req.Mode = mode
	return req, nil
}

func executeRun(cmd *cobra.Command, ctx *commandContext, req workflow.Request, concurrency int) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	stats := router.NewStats()
	completer, closeCompleter, err := completerFactory(cfg, stats, logger)
	if err != nil {
		return err
	}
	defer closeCompleter()

	store, err := ledger.Open(cfg.Layout().LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	progress := newProgressPrinter(cmd.ErrOrStderr())
	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithLedger(store),
		workflow.WithStats(stats),
		workflow.WithProgress(progress.update),
	}
	if concurrency > 0 {
		opts = append(opts, workflow.WithConcurrency(concurrency))
	}
	orch, err := workflow.New(cfg, completer, opts...)
	if err != nil {
		return err
	}
	defer orch.Close()

	summary, runErr := orch.Run(cmd.Context(), req)
	progress.finish()
	if runErr != nil {
		logger.Debug("run returned error", logging.Error(runErr))
	}
	renderSummary(out, summary)
	return runErr
}

func renderSummary(out io.Writer, summary workflow.Summary) {
	if len(summary.History) > 0 {
		fmt.Fprintln(out, "History:")
		for _, tag := range summary.History {
			fmt.Fprintf(out, "  %s\n", tag)
		}
	}
	if len(summary.Layers) > 0 {
		rows := make([][]string, 0, len(summary.Layers))
		for _, ls := range summary.Layers {
			rows = append(rows, []string{
				string(ls.Layer),
				string(ls.Status),
				strconv.Itoa(ls.Targets),
				strconv.Itoa(ls.Failed),
				strconv.Itoa(ls.Calls),
				ls.Duration.Round(time.Millisecond).String(),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Layer", "Status", "Targets", "Failed", "Calls", "Duration"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
	}
	if len(summary.Usage) > 0 {
		fmt.Fprintln(out, renderUsageTable(summary.Usage))
	}
	if summary.RunID != "" {
		newConsole(out).status(
			fmt.Sprintf("Run %s (%s)", summary.RunID, summary.Name),
			runStatusTone(summary.Status),
			fmt.Sprintf("%s, %d LLM calls, score %d, %s",
				summary.Status, summary.Calls, summary.Score, summary.Duration.Round(time.Millisecond)),
		)
	}
}

func renderUsageTable(usage []router.ModelUsage) string {
	rows := make([][]string, 0, len(usage)+1)
	var total router.ModelUsage
	for _, u := range usage {
		rows = append(rows, usageRow(u.Model, u))
		total.Requests += u.Requests
		total.Failures += u.Failures
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
	}
	if len(usage) > 1 {
		rows = append(rows, usageRow("total", total))
	}
	return renderTable(
		[]string{"Model", "Requests", "Failures", "Input tokens", "Output tokens"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func usageRow(label string, u router.ModelUsage) []string {
	return []string{
		label,
		strconv.Itoa(u.Requests),
		strconv.Itoa(u.Failures),
		strconv.Itoa(u.InputTokens),
		strconv.Itoa(u.OutputTokens),
	}
}

func joinModes() string {
	modes := layer.Modes()
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}
