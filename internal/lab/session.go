package lab

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"predictivelab/internal/history"
	"predictivelab/internal/model"
	"predictivelab/internal/preset"
	"predictivelab/internal/stochastic"
)

type Options struct {
	Registry      *preset.Registry
	InitialPreset string
	HistorySize   int
	// Seed feeds the default random sources; 0 picks a time-based seed.
	Seed    int64
	Normal  stochastic.Normal
	Uniform stochastic.Uniform
	Logger  *zap.Logger
}

// Session owns one running simulation: latent state, controls, preset
// bookkeeping, pointer field and trend history. It is single-owner; callers
// serialise access (see scheduler.Driver and the tui host).
type Session struct {
	logger   *zap.Logger
	registry *preset.Registry
	normal   stochastic.Normal
	uniform  stochastic.Uniform
	seed     int64

	state    State
	controls model.Controls
	mode     model.Mode
	active   preset.Active
	guide    string
	pointer  model.Pointer
	history  *history.Buffer
	signals  model.Signals
	regime   Regime
	time     float64
	ticks    int
}

// Snapshot is a read-only copy of the session for renderers.
type Snapshot struct {
	Controls   model.Controls
	Mode       model.Mode
	Preset     string
	Guide      string
	Regime     Regime
	Signals    model.Signals
	Pointer    model.Pointer
	Time       float64
	Ticks      int
	Errors     []float64
	Confidence []float64
}

func NewSession(opts Options) (*Session, error) {
	registry := opts.Registry
	if registry == nil {
		registry = preset.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	normal, uniform := opts.Normal, opts.Uniform
	if normal == nil || uniform == nil {
		seededNormal, rng := stochastic.NewSeeded(seed)
		if normal == nil {
			normal = seededNormal
		}
		if uniform == nil {
			uniform = rng
		}
	}
	initial := opts.InitialPreset
	if initial == "" {
		initial = preset.Baseline
	}

	s := &Session{
		logger:   logger,
		registry: registry,
		normal:   normal,
		uniform:  uniform,
		seed:     seed,
		history:  history.New(opts.HistorySize),
	}
	if err := s.ApplyPreset(initial); err != nil {
		return nil, fmt.Errorf("apply initial preset: %w", err)
	}
	return s, nil
}

// ApplyPreset sets mode and controls from the named preset, marks it active,
// and resets the model and history.
func (s *Session) ApplyPreset(name string) error {
	p, err := s.registry.Lookup(name)
	if err != nil {
		return err
	}
	s.mode = p.Mode
	s.controls = p.Controls
	s.active = preset.Named(p.Name)
	s.guide = p.Guide
	s.reset()
	s.logger.Debug("preset applied",
		zap.String("preset", p.Name),
		zap.String("mode", string(p.Mode)),
		zap.Int("precision", p.Controls.Precision),
		zap.Int("noise", p.Controls.Noise),
		zap.Int("load", p.Controls.Load),
	)
	return nil
}

func (s *Session) reset() {
	s.state.Reset(s.normal)
	s.history.Reset()
	s.signals = model.Signals{}
	s.regime = DescribeState(s.mode, s.signals)
}

// SetControls is a manual edit: values are clamped, the active preset is
// cleared and guidance is recomputed from the new values.
func (s *Session) SetControls(c model.Controls) {
	s.controls = c.Clamped()
	s.active = preset.None()
	s.guide = GuideForControls(s.controls)
}

func (s *Session) SetControl(kind model.ControlKind, value int) error {
	next := s.controls
	switch kind {
	case model.ControlPrecision:
		next.Precision = value
	case model.ControlNoise:
		next.Noise = value
	case model.ControlLoad:
		next.Load = value
	default:
		return fmt.Errorf("unknown control: %s", kind)
	}
	s.SetControls(next)
	return nil
}

// AdjustControl nudges one control by delta.
func (s *Session) AdjustControl(kind model.ControlKind, delta int) error {
	current := 0
	switch kind {
	case model.ControlPrecision:
		current = s.controls.Precision
	case model.ControlNoise:
		current = s.controls.Noise
	case model.ControlLoad:
		current = s.controls.Load
	}
	return s.SetControl(kind, current+delta)
}

// SetMode is a manual mode toggle; it clears the active preset.
func (s *Session) SetMode(mode model.Mode) error {
	mode, err := model.ParseMode(string(mode))
	if err != nil {
		return err
	}
	s.mode = mode
	s.active = preset.None()
	s.guide = GuideForMode(mode)
	s.logger.Debug("mode selected", zap.String("mode", string(mode)))
	return nil
}

// Perturb injects a shock from the perturb control.
func (s *Session) Perturb() float64 {
	shock := Inject(&s.state, s.pointer, ButtonMultiplier, s.uniform)
	s.guide = GuidePerturbation
	s.logger.Debug("perturbation injected", zap.Float64("shock", shock), zap.String("source", "button"))
	return shock
}

func (s *Session) PointerMove(x, y, width, height float64) {
	MovePointer(&s.pointer, x, y, width, height)
}

// PointerDown injects a stronger shock biased by where the widget was pressed.
func (s *Session) PointerDown(x, y, width, height float64) float64 {
	MovePointer(&s.pointer, x, y, width, height)
	s.pointer.Strength = 1
	shock := Inject(&s.state, s.pointer, PointerMultiplier, s.uniform)
	s.guide = GuideLocalPerturbation
	s.logger.Debug("perturbation injected", zap.Float64("shock", shock), zap.String("source", "pointer"))
	return shock
}

func (s *Session) PointerLeave() {
	s.pointer.Active = false
}

// Step runs one atomic tick. dt is clamped to [0, MaxDt].
func (s *Session) Step(dt float64) model.Signals {
	dt = clamp(dt, 0, MaxDt)
	s.time += dt
	DecayPointer(&s.pointer, dt)
	s.signals = Step(&s.state, s.controls, s.mode, s.normal, dt)
	s.regime = DescribeState(s.mode, s.signals)
	s.history.Push(s.signals.Error, s.signals.Confidence)
	s.ticks++
	return s.signals
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Controls:   s.controls,
		Mode:       s.mode,
		Preset:     s.active.String(),
		Guide:      s.guide,
		Regime:     s.regime,
		Signals:    s.signals,
		Pointer:    s.pointer,
		Time:       s.time,
		Ticks:      s.ticks,
		Errors:     s.history.Errors(),
		Confidence: s.history.Confidence(),
	}
}

func (s *Session) Controls() model.Controls { return s.controls }
func (s *Session) Mode() model.Mode { return s.mode }
func (s *Session) ActivePreset() preset.Active { return s.active }
func (s *Session) Guide() string { return s.guide }
func (s *Session) Regime() Regime { return s.regime }
func (s *Session) Signals() model.Signals { return s.signals }
func (s *Session) State() State { return s.state }
func (s *Session) Pointer() model.Pointer { return s.pointer }
func (s *Session) History() *history.Buffer { return s.history }
func (s *Session) Seed() int64 { return s.seed }
func (s *Session) Time() float64 { return s.time }
func (s *Session) Ticks() int { return s.ticks }
func (s *Session) Registry() *preset.Registry { return s.registry }
