package preset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"predictivelab/internal/model"
)

var ErrUnknownPreset = errors.New("unknown preset")

const (
	Baseline = "baseline"
	Overload = "overload"
	Recovery = "recovery"
)

// Preset is an immutable bundle applied atomically to a session.
type Preset struct {
	Name     string
	Mode     model.Mode
	Controls model.Controls
	Guide    string
}

// Registry is a fixed name -> preset mapping.
type Registry struct {
	presets map[string]Preset
	order   []string
}

func builtins() []Preset {
	return []Preset{
		{
			Name:     Baseline,
			Mode:     model.ModeHealthy,
			Controls: model.Controls{Precision: 74, Noise: 38, Load: 41},
			Guide:    "Baseline preset: balanced inference with moderate physiological pressure.",
		},
		{
			Name:     Overload,
			Mode:     model.ModeDepressed,
			Controls: model.Controls{Precision: 46, Noise: 74, Load: 78},
			Guide:    "Overload preset: rigid model with high noise and high allostatic burden.",
		},
		{
			Name:     Recovery,
			Mode:     model.ModeHealthy,
			Controls: model.Controls{Precision: 82, Noise: 27, Load: 31},
			Guide:    "Recovery preset: stronger precision and lower load to support adaptive updating.",
		},
	}
}

// Default returns the three built-in presets.
func Default() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// NewRegistry returns the built-ins merged with extra presets. An extra preset
// with a built-in name replaces it.
func NewRegistry(extra []Preset) (*Registry, error) {
	r := &Registry{presets: make(map[string]Preset)}
	for _, p := range builtins() {
		r.add(p)
	}
	for _, p := range extra {
		p.Name = normalizeName(p.Name)
		if p.Name == "" {
			return nil, errors.New("preset name is required")
		}
		mode, err := model.ParseMode(string(p.Mode))
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
		p.Mode = mode
		p.Controls = p.Controls.Clamped()
		r.add(p)
	}
	return r, nil
}

func (r *Registry) add(p Preset) {
	if _, exists := r.presets[p.Name]; !exists {
		r.order = append(r.order, p.Name)
	}
	r.presets[p.Name] = p
}

func (r *Registry) Lookup(name string) (Preset, error) {
	p, ok := r.presets[normalizeName(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return p, nil
}

// Names returns built-ins in their declared order followed by extras sorted by name.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	if len(out) > 3 {
		sort.Strings(out[3:])
	}
	return out
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// Active records which preset, if any, the current controls came from.
// The zero value is None.
type Active struct {
	name string
}

func None() Active {
	return Active{}
}

func Named(name string) Active {
	return Active{name: name}
}

func (a Active) IsNone() bool {
	return a.name == ""
}

// Name returns the preset name, or "" when no preset is active.
func (a Active) Name() string {
	return a.name
}

func (a Active) String() string {
	if a.IsNone() {
		return "custom"
	}
	return a.name
}
