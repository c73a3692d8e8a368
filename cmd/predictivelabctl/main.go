package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"predictivelab/internal/config"
	"predictivelab/internal/logging"
	labapi "predictivelab/pkg/predictivelab"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app carries the global flags and what PersistentPreRunE builds from them.
type app struct {
	verbose    bool
	configPath string
	storeKind  string
	dbPath     string
	logFile    string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "predictivelabctl",
		Short: "Predictive lab: a stochastic predictive-processing simulation",
		Long: `predictivelabctl runs the predictive lab, a small stochastic model of
prediction error, confidence and allostatic balance under three controls
(precision, noise, load) and two modes (healthy, depressed).

Headless runs are persisted with their full signal trace; "live" and "tui"
drive the model in real time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "predictivelab.yaml", "Config file (missing file means defaults)")
	root.PersistentFlags().StringVar(&a.storeKind, "store", "", "Run store backend: memory|sqlite (overrides config)")
	root.PersistentFlags().StringVar(&a.dbPath, "db-path", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Write logs to this file instead of stderr")

	root.AddCommand(
		newRunCmd(a),
		newSweepCmd(a),
		newRunsCmd(a),
		newTraceCmd(a),
		newExportCmd(a),
		newPresetsCmd(a),
		newLiveCmd(a),
		newTUICmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.storeKind != "" {
		cfg.Store.Kind = a.storeKind
	}
	if a.dbPath != "" {
		cfg.Store.Path = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	opts := logging.Options{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON, Verbose: a.verbose}
	if a.logFile != "" {
		opts.OutputPaths = []string{a.logFile}
	}
	logger, err := logging.New(opts)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) client(ctx context.Context) (*labapi.Client, error) {
	return labapi.New(ctx, labapi.Options{
		StoreKind: a.cfg.Store.Kind,
		DBPath:    a.cfg.Store.Path,
		Config:    a.cfg,
		Logger:    a.logger,
	})
}
