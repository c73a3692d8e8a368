// Package scheduler drives the lab at the host's frame cadence and gates the
// loop on page visibility and viewport intersection.
package scheduler

import (
	"math"
	"time"
)

const (
	DefaultMaxDt   = 0.05
	DefaultFirstDt = 1.0 / 60
)

type Transition int

const (
	Unchanged Transition = iota
	Started
	Stopped
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unchanged"
	}
}

// Token identifies one run of the loop. Every start and stop issues a new
// token, so frames scheduled by an earlier run are ignored.
type Token uint64

// StepFunc advances the simulation by dt seconds.
type StepFunc func(dt float64)

type Options struct {
	MaxDt        float64
	FirstDt      float64
	Visible      bool
	Intersecting bool
}

// Scheduler is the visible x intersecting -> running state machine. It owns
// no goroutines; a host delivers frames through Frame.
type Scheduler struct {
	step    StepFunc
	maxDt   float64
	firstDt float64

	visible      bool
	intersecting bool
	running      bool
	token        Token
	last         time.Time
	hasLast      bool
	frames       int
}

func New(step StepFunc, opts Options) *Scheduler {
	if opts.MaxDt <= 0 {
		opts.MaxDt = DefaultMaxDt
	}
	if opts.FirstDt <= 0 {
		opts.FirstDt = DefaultFirstDt
	}
	return &Scheduler{
		step:         step,
		maxDt:        opts.MaxDt,
		firstDt:      opts.FirstDt,
		visible:      opts.Visible,
		intersecting: opts.Intersecting,
	}
}

func (s *Scheduler) SetVisible(visible bool) Transition {
	s.visible = visible
	return s.Sync()
}

func (s *Scheduler) SetIntersecting(intersecting bool) Transition {
	s.intersecting = intersecting
	return s.Sync()
}

// Sync starts the loop when both gates are open and stops it otherwise.
// It is idempotent.
func (s *Scheduler) Sync() Transition {
	if s.visible && s.intersecting {
		return s.Start()
	}
	return s.Stop()
}

func (s *Scheduler) Start() Transition {
	if s.running {
		return Unchanged
	}
	s.running = true
	s.token++
	s.hasLast = false
	return Started
}

// Stop halts the loop and forgets the last timestamp so the next start does
// not see a stale delta.
func (s *Scheduler) Stop() Transition {
	if !s.running {
		return Unchanged
	}
	s.running = false
	s.token++
	s.hasLast = false
	return Stopped
}

// Frame steps the simulation once if token belongs to the current run.
func (s *Scheduler) Frame(token Token, now time.Time) bool {
	if !s.running || token != s.token {
		return false
	}
	dt := s.firstDt
	if s.hasLast {
		dt = math.Max(0, math.Min(now.Sub(s.last).Seconds(), s.maxDt))
	}
	s.last = now
	s.hasLast = true
	s.frames++
	s.step(dt)
	return true
}

func (s *Scheduler) Running() bool { return s.running }
func (s *Scheduler) Token() Token { return s.token }
func (s *Scheduler) Visible() bool { return s.visible }
func (s *Scheduler) Intersecting() bool { return s.intersecting }
func (s *Scheduler) Frames() int { return s.frames }
