package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultFrameInterval approximates a 60 Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameSource starts a stream of frame timestamps. stop releases it.
type FrameSource func(interval time.Duration) (frames <-chan time.Time, stop func())

// TickerFrames is the FrameSource backed by time.Ticker.
func TickerFrames(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

type DriverOptions struct {
	Interval time.Duration
	Frames   FrameSource
	// OnFrame runs on the loop goroutine after every stepped frame.
	OnFrame func()
	Logger  *zap.Logger
}

// Driver hosts a Scheduler on one goroutine. Input events are queued with Post
// or Do and run between frames, so the simulation is never touched
// concurrently. The frame source only exists while the scheduler is running.
type Driver struct {
	sched    *Scheduler
	interval time.Duration
	frames   FrameSource
	onFrame  func()
	logger   *zap.Logger
	events   chan func()
}

func NewDriver(sched *Scheduler, opts DriverOptions) *Driver {
	if opts.Interval <= 0 {
		opts.Interval = DefaultFrameInterval
	}
	if opts.Frames == nil {
		opts.Frames = TickerFrames
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Driver{
		sched:    sched,
		interval: opts.Interval,
		frames:   opts.Frames,
		onFrame:  opts.OnFrame,
		logger:   opts.Logger,
		events:   make(chan func(), 64),
	}
}

// Post queues fn for the loop goroutine without waiting for it to run.
func (d *Driver) Post(ctx context.Context, fn func()) error {
	select {
	case d.events <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (d *Driver) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := d.Post(ctx, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) SetVisible(ctx context.Context, visible bool) error {
	return d.Post(ctx, func() { d.sched.SetVisible(visible) })
}

func (d *Driver) SetIntersecting(ctx context.Context, intersecting bool) error {
	return d.Post(ctx, func() { d.sched.SetIntersecting(intersecting) })
}

// Run owns the scheduler until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	var (
		frames <-chan time.Time
		stop   func()
		token  Token
	)
	release := func() {
		if stop != nil {
			stop()
		}
		frames, stop = nil, nil
	}
	defer release()

	reconcile := func() {
		switch {
		case d.sched.Running() && frames == nil:
			frames, stop = d.frames(d.interval)
			token = d.sched.Token()
			d.logger.Info("frame loop started", zap.Duration("interval", d.interval))
		case !d.sched.Running() && frames != nil:
			release()
			d.logger.Info("frame loop stopped", zap.Int("frames", d.sched.Frames()))
		case d.sched.Running() && token != d.sched.Token():
			token = d.sched.Token()
		}
	}

	d.sched.Sync()
	reconcile()
	for {
		select {
		case <-ctx.Done():
			d.sched.Stop()
			return ctx.Err()
		case fn := <-d.events:
			fn()
			reconcile()
		case now := <-frames:
			if d.sched.Frame(token, now) && d.onFrame != nil {
				d.onFrame()
			}
		}
	}
}
