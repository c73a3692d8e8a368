// Package tui renders a lab session in the terminal and feeds it input.
//
// Terminal focus stands in for page visibility and the panel being shown at a
// usable size stands in for viewport intersection; both gate the frame loop.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"predictivelab/internal/lab"
	"predictivelab/internal/model"
	"predictivelab/internal/preset"
	"predictivelab/internal/scheduler"
)

const (
	minWidth  = 60
	minHeight = 22

	smallStep = 1
	largeStep = 10
)

var controlOrder = []model.ControlKind{model.ControlPrecision, model.ControlNoise, model.ControlLoad}

type frameMsg struct {
	token scheduler.Token
	at    time.Time
}

type Options struct {
	FrameInterval time.Duration
	MaxDt         float64
	FirstDt       float64
	Logger        *zap.Logger
}

type Model struct {
	session  *lab.Session
	sched    *scheduler.Scheduler
	interval time.Duration
	logger   *zap.Logger

	keys      keyMap
	help      help.Model
	selected  int
	width     int
	height    int
	sized     bool
	collapsed bool
}

func NewModel(session *lab.Session, opts Options) *Model {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = scheduler.DefaultFrameInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Model{
		session: session,
		sched: scheduler.New(func(dt float64) { session.Step(dt) }, scheduler.Options{
			MaxDt:   opts.MaxDt,
			FirstDt: opts.FirstDt,
			Visible: true,
		}),
		interval: opts.FrameInterval,
		logger:   opts.Logger,
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
}

// Run starts a full-screen program until the user quits or ctx ends.
func Run(ctx context.Context, session *lab.Session, opts Options) error {
	m := NewModel(session, opts)
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithReportFocus(),
	)
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		if m.sched.Frame(msg.token, msg.at) {
			return m, m.nextFrame(msg.token)
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height, m.sized = msg.Width, msg.Height, true
		m.help.Width = msg.Width
		return m, m.syncIntersection()
	case tea.FocusMsg:
		return m, m.transition(m.sched.SetVisible(true))
	case tea.BlurMsg:
		return m, m.transition(m.sched.SetVisible(false))
	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		m.selected = (m.selected + 1) % len(controlOrder)
	case key.Matches(msg, m.keys.Decrease):
		m.adjust(-smallStep)
	case key.Matches(msg, m.keys.Increase):
		m.adjust(smallStep)
	case key.Matches(msg, m.keys.DecreaseMore):
		m.adjust(-largeStep)
	case key.Matches(msg, m.keys.IncreaseMore):
		m.adjust(largeStep)
	case key.Matches(msg, m.keys.Healthy):
		_ = m.session.SetMode(model.ModeHealthy)
	case key.Matches(msg, m.keys.Depressed):
		_ = m.session.SetMode(model.ModeDepressed)
	case key.Matches(msg, m.keys.Baseline):
		m.applyPreset(preset.Baseline)
	case key.Matches(msg, m.keys.Overload):
		m.applyPreset(preset.Overload)
	case key.Matches(msg, m.keys.Recovery):
		m.applyPreset(preset.Recovery)
	case key.Matches(msg, m.keys.Perturb):
		m.session.Perturb()
	case key.Matches(msg, m.keys.Collapse):
		m.collapsed = !m.collapsed
		return m, m.syncIntersection()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	if m.collapsed || !m.sized {
		return
	}
	x, y := float64(msg.X), float64(msg.Y)
	w, h := float64(m.width), float64(m.height)
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		m.session.PointerDown(x, y, w, h)
	case msg.Action == tea.MouseActionMotion:
		m.session.PointerMove(x, y, w, h)
	}
}

func (m *Model) adjust(delta int) {
	if err := m.session.AdjustControl(controlOrder[m.selected], delta); err != nil {
		m.logger.Warn("adjust control", zap.Error(err))
	}
}

func (m *Model) applyPreset(name string) {
	if err := m.session.ApplyPreset(name); err != nil {
		m.logger.Warn("apply preset", zap.String("preset", name), zap.Error(err))
	}
}

func (m *Model) syncIntersection() tea.Cmd {
	fits := m.sized && m.width >= minWidth && m.height >= minHeight
	return m.transition(m.sched.SetIntersecting(fits && !m.collapsed))
}

func (m *Model) transition(t scheduler.Transition) tea.Cmd {
	if t != scheduler.Unchanged {
		m.logger.Debug("frame loop transition", zap.Stringer("transition", t))
	}
	if t == scheduler.Started {
		return m.nextFrame(m.sched.Token())
	}
	return nil
}

func (m *Model) nextFrame(token scheduler.Token) tea.Cmd {
	return tea.Tick(m.interval, func(at time.Time) tea.Msg {
		return frameMsg{token: token, at: at}
	})
}
