package predictivelab

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"predictivelab/internal/config"
	"predictivelab/internal/lab"
	"predictivelab/internal/model"
	"predictivelab/internal/preset"
	"predictivelab/internal/scheduler"
	"predictivelab/internal/stats"
	"predictivelab/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultRunSeconds = 10.0
	defaultRunsLimit  = 20
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	// Config supplies lab tuning and extra presets; nil means config.Default().
	Config *config.Config
	Logger *zap.Logger
}

type Client struct {
	store    storage.Store
	cfg      *config.Config
	registry *preset.Registry
	logger   *zap.Logger

	exportsDir string
}

type RunRequest struct {
	Preset string
	// Mode and Controls are manual overrides applied after the preset, which
	// leaves the run without an active preset.
	Mode     string
	Controls *model.Controls
	Seconds  float64
	// Dt is the spacing of the synthetic frame clock, at most the lab max dt;
	// 0 means the first-frame dt.
	Dt        float64
	Seed      int64
	PerturbAt []float64
}

type SweepRequest struct {
	Presets   []string
	Seconds   float64
	Dt        float64
	Seed      int64
	PerturbAt []float64
	// Workers bounds parallel runs; 0 runs every preset at once.
	Workers int
}

type RunsRequest struct {
	Limit int
}

type TraceRequest struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = cfg.Store.Kind
	}
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, fmt.Errorf("init %s store: %w", storeKind, err)
	}

	return &Client{
		store:      store,
		cfg:        cfg,
		registry:   registry,
		logger:     logger,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Presets returns every preset the client knows, built-ins first.
func (c *Client) Presets() []preset.Preset {
	names := c.registry.Names()
	out := make([]preset.Preset, 0, len(names))
	for _, name := range names {
		p, err := c.registry.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Run simulates req headlessly on a synthetic frame clock, then persists the
// run record and its full signal trace.
func (c *Client) Run(ctx context.Context, req RunRequest) (model.RunRecord, error) {
	if req.Preset == "" {
		req.Preset = c.cfg.Lab.InitialPreset
	}
	if req.Seconds <= 0 {
		req.Seconds = defaultRunSeconds
	}
	if req.Dt <= 0 {
		req.Dt = c.cfg.Lab.FirstDt
	}
	if req.Seed == 0 {
		req.Seed = c.cfg.Lab.Seed
	}
	if math.IsNaN(req.Seconds) || math.IsInf(req.Seconds, 0) {
		return model.RunRecord{}, fmt.Errorf("run length must be finite, got %v", req.Seconds)
	}
	if math.IsNaN(req.Dt) || req.Dt > c.cfg.Lab.MaxDt {
		return model.RunRecord{}, fmt.Errorf("dt must be in (0, %v], got %v", c.cfg.Lab.MaxDt, req.Dt)
	}
	frame := time.Duration(math.Round(req.Dt * float64(time.Second)))
	if frame < time.Microsecond {
		return model.RunRecord{}, fmt.Errorf("dt must be at least 1µs, got %v", req.Dt)
	}
	for _, at := range req.PerturbAt {
		if at < 0 || math.IsNaN(at) || at >= req.Seconds {
			return model.RunRecord{}, fmt.Errorf("perturbation time must be in [0, %v), got %v", req.Seconds, at)
		}
	}

	session, err := c.newSession(req.Preset, req.Seed)
	if err != nil {
		return model.RunRecord{}, err
	}
	if req.Mode != "" {
		if err := session.SetMode(model.Mode(req.Mode)); err != nil {
			return model.RunRecord{}, err
		}
	}
	if req.Controls != nil {
		session.SetControls(*req.Controls)
	}

	samples := make([]model.SignalSample, 0, int(math.Ceil(req.Seconds/req.Dt)))
	sched := scheduler.New(func(dt float64) {
		signals := session.Step(dt)
		samples = append(samples, model.SignalSample{
			Tick:    session.Ticks(),
			Time:    session.Time(),
			Regime:  session.Regime().Key,
			Signals: signals,
		})
	}, scheduler.Options{
		MaxDt:        c.cfg.Lab.MaxDt,
		FirstDt:      c.cfg.Lab.FirstDt,
		Visible:      true,
		Intersecting: true,
	})
	sched.Sync()

	schedule := append([]float64(nil), req.PerturbAt...)
	sort.Float64s(schedule)
	injected := make([]float64, 0, len(schedule))

	clock := time.Unix(0, 0)
	// A shock scheduled inside the last frame still lands, one frame past Seconds.
	for i := 0; session.Time() < req.Seconds-1e-9 || len(schedule) > 0; i++ {
		if i%600 == 0 {
			if err := ctx.Err(); err != nil {
				return model.RunRecord{}, err
			}
		}
		for len(schedule) > 0 && session.Time() >= schedule[0]-1e-9 {
			session.Perturb()
			injected = append(injected, session.Time())
			schedule = schedule[1:]
		}
		clock = clock.Add(frame)
		sched.Frame(sched.Token(), clock)
	}

	snap := session.Snapshot()
	run := storage.Stamp(model.RunRecord{
		ID:           uuid.NewString(),
		CreatedAtUTC: time.Now().UTC().Format(storage.TimestampLayout),
		Preset:       snap.Preset,
		Mode:         snap.Mode,
		Controls:     snap.Controls,
		Seed:         session.Seed(),
		Ticks:        snap.Ticks,
		Dt:           req.Dt,
		Perturbs:     injected,
		Summary:      stats.Summarize(samples, injected),
		Final:        snap.Signals,
		FinalState:   snap.Regime.Key,
	})
	if err := c.persist(ctx, run, samples); err != nil {
		return model.RunRecord{}, err
	}
	c.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("preset", run.Preset),
		zap.Int("ticks", run.Ticks),
		zap.String("final_state", run.FinalState),
		zap.Float64("mean_error", run.Summary.MeanError),
	)
	return run, nil
}

// Sweep runs every requested preset in parallel with identical settings.
// Results follow the order of req.Presets.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) ([]model.RunRecord, error) {
	presets := req.Presets
	if len(presets) == 0 {
		presets = c.registry.Names()
	}
	for _, name := range presets {
		if _, err := c.registry.Lookup(name); err != nil {
			return nil, err
		}
	}

	results := make([]model.RunRecord, len(presets))
	g, gctx := errgroup.WithContext(ctx)
	if req.Workers > 0 {
		g.SetLimit(req.Workers)
	}
	for i, name := range presets {
		g.Go(func() error {
			run, err := c.Run(gctx, RunRequest{
				Preset:    name,
				Seconds:   req.Seconds,
				Dt:        req.Dt,
				Seed:      req.Seed,
				PerturbAt: req.PerturbAt,
			})
			if err != nil {
				return fmt.Errorf("sweep %s: %w", name, err)
			}
			results[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	return c.store.ListRuns(ctx, req.Limit)
}

func (c *Client) Trace(ctx context.Context, req TraceRequest) ([]model.SignalSample, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	samples, ok, err := c.store.GetTrace(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: trace for %s", storage.ErrRunNotFound, runID)
	}
	return samples, nil
}

// Export writes run.json and signals.csv for one run under OutDir/<run id>.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
	}
	samples, _, err := c.store.GetTrace(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	dir, err := stats.WriteRunArtifacts(req.OutDir, run, samples)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if runID != "" {
		return runID, nil
	}
	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs stored", storage.ErrRunNotFound)
	}
	return runs[0].ID, nil
}

func (c *Client) newSession(presetName string, seed int64) (*lab.Session, error) {
	return lab.NewSession(lab.Options{
		Registry:      c.registry,
		InitialPreset: presetName,
		HistorySize:   c.cfg.Lab.HistorySize,
		Seed:          seed,
		Logger:        c.logger,
	})
}

func (c *Client) persist(ctx context.Context, run model.RunRecord, samples []model.SignalSample) error {
	if err := c.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := c.store.SaveTrace(ctx, run.ID, samples); err != nil {
		return fmt.Errorf("save trace %s: %w", run.ID, err)
	}
	return nil
}
