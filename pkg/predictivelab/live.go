package predictivelab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"predictivelab/internal/controlfile"
	"predictivelab/internal/model"
	"predictivelab/internal/platform"
	"predictivelab/internal/scheduler"
	"predictivelab/internal/stats"
	"predictivelab/internal/storage"
)

const (
	labLoopTask       = "lab-loop"
	controlsWatchTask = "controls-watch"

	defaultSampleEvery = time.Second
)

type LiveRequest struct {
	Preset string
	Seed   int64
	// ControlFile, when set, is watched and applied to the running session.
	ControlFile string
	// Duration bounds the session; 0 runs until ctx is cancelled.
	Duration time.Duration
	// SampleEvery is the wall-clock cadence of debug signal logs.
	SampleEvery time.Duration
	// Record persists the trace as a run when the session ends.
	Record bool
	// Frames overrides the realtime ticker, mainly for tests.
	Frames scheduler.FrameSource
}

type LiveSummary struct {
	RunID      string
	Ticks      int
	Time       float64
	Final      model.Signals
	FinalState string
	Tasks      []platform.TaskStatus
}

// Live runs a realtime session until ctx ends or Duration elapses. The frame
// loop and the control file watcher run as supervised tasks; a task that keeps
// failing ends the session with an error.
func (c *Client) Live(ctx context.Context, req LiveRequest) (LiveSummary, error) {
	if req.Preset == "" {
		req.Preset = c.cfg.Lab.InitialPreset
	}
	if req.Seed == 0 {
		req.Seed = c.cfg.Lab.Seed
	}
	if req.SampleEvery <= 0 {
		req.SampleEvery = defaultSampleEvery
	}

	session, err := c.newSession(req.Preset, req.Seed)
	if err != nil {
		return LiveSummary{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if req.Duration > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, req.Duration)
		defer cancelTimeout()
	}

	var (
		samples    []model.SignalSample
		perturbs   []float64
		lastLogged time.Time
	)
	sched := scheduler.New(func(dt float64) { session.Step(dt) }, scheduler.Options{
		MaxDt:        c.cfg.Lab.MaxDt,
		FirstDt:      c.cfg.Lab.FirstDt,
		Visible:      true,
		Intersecting: true,
	})
	driver := scheduler.NewDriver(sched, scheduler.DriverOptions{
		Interval: c.cfg.GetFrameInterval(),
		Frames:   req.Frames,
		Logger:   c.logger,
		OnFrame: func() {
			signals := session.Signals()
			if req.Record {
				samples = append(samples, model.SignalSample{
					Tick:    session.Ticks(),
					Time:    session.Time(),
					Regime:  session.Regime().Key,
					Signals: signals,
				})
			}
			if now := time.Now(); now.Sub(lastLogged) >= req.SampleEvery {
				lastLogged = now
				c.logger.Debug("lab sample",
					zap.Float64("t", session.Time()),
					zap.String("regime", session.Regime().Key),
					zap.Float64("error", signals.Error),
					zap.Float64("confidence", signals.Confidence),
					zap.Float64("balance", signals.Balance),
				)
			}
		},
	})

	var (
		failure  error
		failOnce sync.Once
		failed   = make(chan struct{})
	)
	supervisor := platform.NewSupervisor(platform.Policy{MaxRestarts: 3}, platform.Hooks{
		OnFailure: func(name string, err error, restarts int) {
			failOnce.Do(func() {
				failure = fmt.Errorf("%s failed after %d restarts: %w", name, restarts, err)
				close(failed)
			})
			cancel()
		},
	}, c.logger)

	if err := supervisor.Start(runCtx, platform.TaskSpec{
		Name:    labLoopTask,
		Restart: platform.RestartTransient,
		Run:     driver.Run,
	}); err != nil {
		return LiveSummary{}, err
	}
	if req.ControlFile != "" {
		watcher := controlfile.NewWatcher(req.ControlFile, func(cmd controlfile.Command) error {
			var applyErr error
			if err := driver.Do(runCtx, func() {
				before := len(perturbs)
				for range cmd.Perturb {
					perturbs = append(perturbs, session.Time())
				}
				if applyErr = cmd.Apply(session); applyErr != nil {
					perturbs = perturbs[:before]
				}
			}); err != nil {
				return err
			}
			return applyErr
		}, controlfile.Options{LoadExisting: true, Logger: c.logger})
		if err := supervisor.Start(runCtx, platform.TaskSpec{
			Name:    controlsWatchTask,
			Restart: platform.RestartPermanent,
			Run:     watcher.Run,
		}); err != nil {
			supervisor.StopAll()
			return LiveSummary{}, err
		}
	}

	<-runCtx.Done()
	supervisor.StopAll()

	summary := LiveSummary{
		Ticks:      session.Ticks(),
		Time:       session.Time(),
		Final:      session.Signals(),
		FinalState: session.Regime().Key,
		Tasks:      supervisor.Status(),
	}
	select {
	case <-failed:
		return summary, failure
	default:
	}

	if req.Record && len(samples) > 0 {
		snap := session.Snapshot()
		run := storage.Stamp(model.RunRecord{
			ID:           uuid.NewString(),
			CreatedAtUTC: time.Now().UTC().Format(storage.TimestampLayout),
			Preset:       snap.Preset,
			Mode:         snap.Mode,
			Controls:     snap.Controls,
			Seed:         session.Seed(),
			Ticks:        snap.Ticks,
			Dt:           c.cfg.GetFrameInterval().Seconds(),
			Perturbs:     perturbs,
			Summary:      stats.Summarize(samples, perturbs),
			Final:        snap.Signals,
			FinalState:   snap.Regime.Key,
		})
		if err := c.persist(context.WithoutCancel(ctx), run, samples); err != nil {
			return summary, err
		}
		summary.RunID = run.ID
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return summary, err
	}
	return summary, nil
}
