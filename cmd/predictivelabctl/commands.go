package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"predictivelab/internal/lab"
	"predictivelab/internal/model"
	"predictivelab/internal/stats"
	"predictivelab/internal/tui"
	labapi "predictivelab/pkg/predictivelab"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		req       labapi.RunRequest
		precision int
		noise     int
		load      int
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one preset headlessly and store the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			controls, err := controlsFromFlags(cmd, precision, noise, load)
			if err != nil {
				return err
			}
			req.Controls = controls

			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			run, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), run)
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Preset, "preset", "", "Preset to start from (default from config)")
	cmd.Flags().StringVar(&req.Mode, "mode", "", "Override mode: healthy|depressed")
	cmd.Flags().IntVar(&precision, "precision", 0, "Override sensory precision control [0,100]")
	cmd.Flags().IntVar(&noise, "noise", 0, "Override noise control [0,100]")
	cmd.Flags().IntVar(&load, "load", 0, "Override allostatic load control [0,100]")
	cmd.Flags().Float64Var(&req.Seconds, "seconds", 10, "Simulated duration in seconds")
	cmd.Flags().Float64Var(&req.Dt, "dt", 0, "Synthetic frame spacing in seconds, at most lab.max_dt (default first-frame dt)")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "Random seed (0 = config seed or time based)")
	cmd.Flags().Float64SliceVar(&req.PerturbAt, "perturb-at", nil, "Simulation times (s) at which to inject a perturbation")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the run record as JSON")
	return cmd
}

// controlsFromFlags returns nil when no control flag was set. Unset controls
// keep the preset's values.
func controlsFromFlags(cmd *cobra.Command, precision, noise, load int) (*model.Controls, error) {
	flags := cmd.Flags()
	if !flags.Changed("precision") && !flags.Changed("noise") && !flags.Changed("load") {
		return nil, nil
	}
	if !flags.Changed("precision") || !flags.Changed("noise") || !flags.Changed("load") {
		return nil, errors.New("--precision, --noise and --load must be given together")
	}
	return &model.Controls{Precision: precision, Noise: noise, Load: load}, nil
}

func newSweepCmd(a *app) *cobra.Command {
	var (
		req     labapi.SweepRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every preset (or a chosen set) in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Sweep(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			out := cmd.OutOrStdout()
			for _, run := range runs {
				fmt.Fprintf(out, "preset=%s run_id=%s mean_error=%.4f mean_confidence=%.4f final_balance=%.4f final_state=%q\n",
					run.Preset, run.ID, run.Summary.MeanError, run.Summary.MeanConfidence, run.Summary.FinalBalance, run.FinalState)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&req.Presets, "presets", nil, "Presets to run (default all)")
	cmd.Flags().Float64Var(&req.Seconds, "seconds", 10, "Simulated duration in seconds")
	cmd.Flags().Float64Var(&req.Dt, "dt", 0, "Synthetic frame spacing in seconds")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "Random seed shared by every run")
	cmd.Flags().Float64SliceVar(&req.PerturbAt, "perturb-at", nil, "Simulation times (s) at which to inject a perturbation")
	cmd.Flags().IntVar(&req.Workers, "workers", 0, "Parallel runs (0 = one per preset)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit run records as JSON")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), labapi.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "run_id=%s created_at=%s preset=%s mode=%s ticks=%d mean_error=%.4f final_state=%q\n",
					run.ID, run.CreatedAtUTC, run.Preset, run.Mode, run.Ticks, run.Summary.MeanError, run.FinalState)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit runs as JSON")
	return cmd
}

func newTraceCmd(a *app) *cobra.Command {
	var (
		req     labapi.TraceRequest
		plot    bool
		csvOut  bool
		width   int
		jsonOut bool
		fromDir string
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the signal trace of a stored or exported run",
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := a.loadTrace(cmd.Context(), req, fromDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case jsonOut:
				return writeJSON(out, samples)
			case csvOut:
				return stats.WriteCSV(out, samples)
			case plot:
				fmt.Fprintln(out, plotTrace(samples, width))
				return nil
			}
			for _, s := range samples {
				fmt.Fprintf(out, "tick=%d t=%.3f error=%s confidence=%s balance=%s regime=%q\n",
					s.Tick, s.Time, lab.Percent(s.Error), lab.Percent(s.Confidence), lab.Percent(s.Balance), s.Regime)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "Run id")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "Use the most recent run")
	cmd.Flags().BoolVar(&plot, "plot", false, "Plot confidence and error as an ASCII chart")
	cmd.Flags().IntVar(&width, "width", 80, "Plot width in columns")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "Emit the trace as CSV")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the trace as JSON")
	cmd.Flags().StringVar(&fromDir, "from", "", "Read the trace from an exported run directory instead of the store")
	return cmd
}

func (a *app) loadTrace(ctx context.Context, req labapi.TraceRequest, fromDir string) ([]model.SignalSample, error) {
	if fromDir != "" {
		if req.RunID != "" || req.Latest {
			return nil, errors.New("use either --from or a stored run")
		}
		run, samples, err := stats.ReadRunArtifacts(fromDir)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("loaded exported run", zap.String("run_id", run.ID), zap.Int("samples", len(samples)))
		return samples, nil
	}
	client, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Trace(ctx, req)
}

func plotTrace(samples []model.SignalSample, width int) string {
	if len(samples) < 2 {
		return "trace too short to plot"
	}
	conf := make([]float64, len(samples))
	errs := make([]float64, len(samples))
	for i, s := range samples {
		conf[i] = s.Confidence
		errs[i] = s.Error
	}
	return asciigraph.PlotMany(
		[][]float64{conf, errs},
		asciigraph.Height(12),
		asciigraph.Width(max(20, width)),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(1),
		asciigraph.Precision(2),
		asciigraph.SeriesColors(asciigraph.SkyBlue, asciigraph.SandyBrown),
		asciigraph.Caption(fmt.Sprintf("confidence / error over %.1fs", samples[len(samples)-1].Time)),
	)
}

func newExportCmd(a *app) *cobra.Command {
	var req labapi.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write run.json and signals.csv for a stored run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.RunID != "" && req.Latest {
				return errors.New("use either --run-id or --latest, not both")
			}
			if req.RunID == "" && !req.Latest {
				return errors.New("export requires --run-id or --latest")
			}
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "Run id")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "Export the most recent run")
	cmd.Flags().StringVar(&req.OutDir, "out", "exports", "Export output directory")
	return cmd
}

func newPresetsCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List known presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := a.cfg.Registry()
			if err != nil {
				return err
			}
			type presetItem struct {
				Name      string `json:"name"`
				Mode      string `json:"mode"`
				Precision int    `json:"precision"`
				Noise     int    `json:"noise"`
				Load      int    `json:"load"`
				Guide     string `json:"guide,omitempty"`
			}
			items := make([]presetItem, 0, len(registry.Names()))
			for _, name := range registry.Names() {
				p, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				items = append(items, presetItem{
					Name:      p.Name,
					Mode:      string(p.Mode),
					Precision: p.Controls.Precision,
					Noise:     p.Controls.Noise,
					Load:      p.Controls.Load,
					Guide:     p.Guide,
				})
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s mode=%-9s precision=%3d noise=%3d load=%3d  %s\n",
					item.Name, item.Mode, item.Precision, item.Noise, item.Load, item.Guide)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit presets as JSON")
	return cmd
}

func newLiveCmd(a *app) *cobra.Command {
	var req labapi.LiveRequest
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run the lab in real time, optionally steered by a control file",
		Long: `live runs the lab at the configured frame cadence until interrupted or
--duration elapses. With --controls, the YAML file is watched and applied on
every save:

  preset: overload
  mode: depressed
  precision: 60
  noise: 40
  load: 55
  perturb: 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Live(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ticks=%d t=%.2fs error=%s confidence=%s balance=%s final_state=%q\n",
				summary.Ticks, summary.Time, lab.Percent(summary.Final.Error), lab.Percent(summary.Final.Confidence),
				lab.Percent(summary.Final.Balance), summary.FinalState)
			if summary.RunID != "" {
				fmt.Fprintf(out, "recorded run_id=%s\n", summary.RunID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Preset, "preset", "", "Initial preset (default from config)")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "Random seed (0 = config seed or time based)")
	cmd.Flags().StringVar(&req.ControlFile, "controls", "", "YAML control file to watch")
	cmd.Flags().DurationVar(&req.Duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	cmd.Flags().DurationVar(&req.SampleEvery, "sample-every", time.Second, "Debug log cadence for signal samples")
	cmd.Flags().BoolVar(&req.Record, "record", false, "Store the session as a run when it ends")
	return cmd
}

func newTUICmd(a *app) *cobra.Command {
	var (
		presetName string
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal lab",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := a.cfg.Registry()
			if err != nil {
				return err
			}
			if presetName == "" {
				presetName = a.cfg.Lab.InitialPreset
			}
			if seed == 0 {
				seed = a.cfg.Lab.Seed
			}
			// The alternate screen owns stderr; only log when sent to a file.
			logger := a.logger
			if a.logFile == "" {
				logger = zap.NewNop()
			}
			session, err := lab.NewSession(lab.Options{
				Registry:      registry,
				InitialPreset: presetName,
				HistorySize:   a.cfg.Lab.HistorySize,
				Seed:          seed,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), session, tui.Options{
				FrameInterval: a.cfg.GetFrameInterval(),
				MaxDt:         a.cfg.Lab.MaxDt,
				FirstDt:       a.cfg.Lab.FirstDt,
				Logger:        logger,
			})
		},
	}
	cmd.Flags().StringVar(&presetName, "preset", "", "Initial preset (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 = config seed or time based)")
	return cmd
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func printRun(w io.Writer, run model.RunRecord) {
	fmt.Fprintf(w, "run_id=%s preset=%s mode=%s seed=%d ticks=%d\n", run.ID, run.Preset, run.Mode, run.Seed, run.Ticks)
	fmt.Fprintf(w, "controls precision=%d noise=%d load=%d\n", run.Controls.Precision, run.Controls.Noise, run.Controls.Load)
	fmt.Fprintf(w, "mean_error=%.4f peak_error=%.4f mean_confidence=%.4f mean_balance=%.4f final_balance=%.4f\n",
		run.Summary.MeanError, run.Summary.PeakError, run.Summary.MeanConfidence, run.Summary.MeanBalance, run.Summary.FinalBalance)
	for i, at := range run.Perturbs {
		recovery := "not recovered"
		if i < len(run.Summary.RecoverySeconds) && run.Summary.RecoverySeconds[i] != stats.NotRecovered {
			recovery = fmt.Sprintf("%.2fs", run.Summary.RecoverySeconds[i])
		}
		fmt.Fprintf(w, "perturbation t=%.2fs recovery=%s\n", at, recovery)
	}
	for _, regime := range lab.Regimes() {
		if share, ok := run.Summary.RegimeOccupancy[regime.Key]; ok && share > 0 {
			fmt.Fprintf(w, "occupancy %q=%.3f\n", regime.Key, share)
		}
	}
	fmt.Fprintf(w, "final_state=%q\n", run.FinalState)
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective config to --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
			}
			if err := a.cfg.Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	cmd.AddCommand(initCmd)
	return cmd
}
