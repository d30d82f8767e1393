package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
	"github.com/couchcryptid/quake-catalog-loader/internal/reader"
	"github.com/couchcryptid/quake-catalog-loader/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a catalog file and assemble one product per event",
	Long: `Read events from a JSON-lines or ISC catalog file, associate them with
existing catalog origins when the product type needs it, render QuakeML
documents into the output folder and optionally send them with PDL.

Events whose document already exists in the output folder are skipped.`,
	RunE: runRun,
}

var (
	runInput         string
	runFormat        string
	runStart         string
	runEnd           string
	runCadence       string
	runPolicy        string
	runRenderOrphans bool
	runDispatch      bool
	runTrump         bool
	runClear         bool
	runReportFile    string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "catalog file to load (required)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", string(reader.FormatJSONLines), "input format (jsonl|isc)")
	runCmd.Flags().StringVar(&runStart, "start", "", "skip events before this time ("+state.TimeLayout+" or RFC3339)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "skip events after this time")
	runCmd.Flags().StringVar(&runCadence, "cadence", "", "run cadence (reviewed|preliminary); resumes from and updates the state file")
	runCmd.Flags().StringVarP(&runPolicy, "policy", "p", "", "ambiguity resolution (interactive|none|closest|reject); overrides RESOLUTION_POLICY")
	runCmd.Flags().BoolVar(&runRenderOrphans, "render-orphans", false, "render events with no catalog match")
	runCmd.Flags().BoolVar(&runDispatch, "dispatch", false, "send rendered documents with PDL")
	runCmd.Flags().BoolVar(&runTrump, "trump", false, "mark dispatched products as preferred")
	runCmd.Flags().BoolVar(&runClear, "clear", false, "delete previously rendered documents before the run")
	runCmd.Flags().StringVar(&runReportFile, "report", "", "write per-event reports as JSON lines to this file")
	_ = runCmd.MarkFlagRequired("input")
}

func runRun(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if flags.Changed("policy") {
		cfg.ResolutionPolicy = runPolicy
	}
	if flags.Changed("render-orphans") {
		cfg.RenderOrphans = runRenderOrphans
	}
	if flags.Changed("dispatch") {
		cfg.DispatchEnabled = runDispatch
	}
	if flags.Changed("trump") {
		cfg.DispatchTrump = runTrump
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, err := reader.ParseFormat(runFormat)
	if err != nil {
		return err
	}
	window, err := parseWindow(runStart, runEnd)
	if err != nil {
		return err
	}

	var (
		cadence state.Cadence
		marks   *state.File
	)
	if runCadence != "" {
		if cadence, err = state.ParseCadence(runCadence); err != nil {
			return err
		}
		if marks, err = state.Open(cfg.StateFile); err != nil {
			return err
		}
		if window.Start.IsZero() {
			last, ok, err := marks.Last(cadence)
			if err != nil {
				return err
			}
			if ok {
				window.Start = last
			}
		}
	}

	// Prompts and the summary own stdout.
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	flushTraces, err := startTracing(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer flushTraces()

	policy, err := resolutionPolicy(cfg, os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	engine, store, err := buildEngine(cfg, flagFolder, policy, logger, metrics)
	if err != nil {
		return err
	}
	if runClear {
		n, err := store.Clear()
		if err != nil {
			return fmt.Errorf("clear output folder: %w", err)
		}
		logger.Info("cleared output folder", "dir", store.Dir(), "removed", n)
	}

	in, err := os.Open(runInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := domain.Now()
	run, runErr := engine.RunBatch(ctx, uuid.NewString(), reader.Read(in, format, window))

	if runReportFile != "" {
		if err := writeReports(runReportFile, run.Reports()); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	printSummary(cmd.OutOrStdout(), run.Summary(), store.Dir())

	if runErr != nil {
		return runErr
	}
	if marks != nil {
		mark := window.End
		if mark.IsZero() {
			mark = started
		}
		marks.SetLast(cadence, mark)
		if err := marks.Save(); err != nil {
			return err
		}
		logger.Info("state updated", "cadence", cadence, "last", mark.Format(state.TimeLayout))
	}
	return nil
}

func parseWindow(start, end string) (reader.Window, error) {
	var w reader.Window
	var err error
	if w.Start, err = parseTime(start); err != nil {
		return w, fmt.Errorf("invalid --start: %w", err)
	}
	if w.End, err = parseTime(end); err != nil {
		return w, fmt.Errorf("invalid --end: %w", err)
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return w, errors.New("--end is before --start")
	}
	return w, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(state.TimeLayout, s, time.UTC)
}

func writeReports(path string, reports []domain.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return fmt.Errorf("write reports: %w", err)
		}
	}
	return f.Close()
}

func printSummary(w io.Writer, s domain.Summary, dir string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "output\t%s\n", dir)
	fmt.Fprintf(tw, "elapsed\t%s\n", s.Finished.Sub(s.Started).Round(time.Millisecond))
	for _, o := range s.Outcomes() {
		fmt.Fprintf(tw, "%s\t%d\n", o, s.ByOutcome[o])
	}
	fmt.Fprintf(tw, "total\t%d (%d failed)\n", s.Total, s.Failed)
	tw.Flush()
}

