package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"predictivelab/internal/lab"
	"predictivelab/internal/model"
)

const (
	barWidth    = 24
	chartHeight = 8
)

var (
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Width(12)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	guideStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("180")).Italic(true)
	regimeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

func (m *Model) View() string {
	snap := m.session.Snapshot()

	var b strings.Builder
	b.WriteString(headerStyle.Render("PREDICTIVE LAB"))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.status(snap)))
	b.WriteString("\n\n")

	if m.collapsed {
		b.WriteString(statusStyle.Render("panel collapsed, press c to expand"))
		b.WriteString("\n\n")
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}
	if m.sized && (m.width < minWidth || m.height < minHeight) {
		b.WriteString(statusStyle.Render(fmt.Sprintf("terminal too small (need %dx%d)", minWidth, minHeight)))
		return b.String()
	}

	controls := m.renderControls(snap)
	readouts := renderReadouts(snap)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(controls), " ", panelStyle.Render(readouts)))
	b.WriteString("\n")
	b.WriteString(regimeStyle.Render(snap.Regime.Text))
	b.WriteString("\n")
	b.WriteString(guideStyle.Render(snap.Guide))
	b.WriteString("\n\n")
	b.WriteString(renderHistory(snap, m.chartWidth()))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) status(snap lab.Snapshot) string {
	state := "paused"
	if m.sched.Running() {
		state = "running"
	}
	return fmt.Sprintf("%s · mode %s · preset %s · t=%.1fs", state, snap.Mode, snap.Preset, snap.Time)
}

func (m *Model) renderControls(snap lab.Snapshot) string {
	values := map[model.ControlKind]int{
		model.ControlPrecision: snap.Controls.Precision,
		model.ControlNoise:     snap.Controls.Noise,
		model.ControlLoad:      snap.Controls.Load,
	}
	lines := make([]string, 0, len(controlOrder))
	for i, kind := range controlOrder {
		style := labelStyle
		if i == m.selected {
			style = selectedStyle
		}
		v := values[kind]
		lines = append(lines, style.Render(string(kind))+valueStyle.Render(fmt.Sprintf("%s %3d", bar(float64(v)/100), v)))
	}
	return strings.Join(lines, "\n")
}

func renderReadouts(snap lab.Snapshot) string {
	rows := []struct {
		label string
		value float64
	}{
		{"confidence", snap.Signals.Confidence},
		{"error", snap.Signals.Error},
		{"balance", snap.Signals.Balance},
		{"precision", snap.Signals.Precision},
		{"load", snap.Signals.Load},
		{"pointer", pointerField(snap.Pointer)},
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, labelStyle.Render(row.label)+valueStyle.Render(fmt.Sprintf("%5s", lab.Percent(row.value))))
	}
	return strings.Join(lines, "\n")
}

// pointerField is the pointer field strength at the centre of the widget.
func pointerField(p model.Pointer) float64 {
	if !p.Known || !p.Active {
		return 0
	}
	return lab.PointerInfluenceAt(p, p.Width/2, p.Height/2, max(p.Width, p.Height)/2)
}

func renderHistory(snap lab.Snapshot, width int) string {
	if len(snap.Errors) < 2 {
		return statusStyle.Render("collecting history…")
	}
	return asciigraph.PlotMany(
		[][]float64{snap.Confidence, snap.Errors},
		asciigraph.Height(chartHeight),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(1),
		asciigraph.Precision(2),
		asciigraph.SeriesColors(asciigraph.SkyBlue, asciigraph.SandyBrown),
		asciigraph.Caption("confidence / error"),
	)
}

func (m *Model) chartWidth() int {
	if !m.sized {
		return 60
	}
	return max(20, m.width-10)
}

func bar(fraction float64) string {
	fraction = min(1, max(0, fraction))
	filled := int(fraction*barWidth + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
