// Package controlfile drives a live session from a YAML file on disk.
//
// A control file looks like:
//
//	preset: recovery
//	mode: depressed
//	precision: 60
//	noise: 40
//	load: 55
//	perturb: 1
//
// Every key is optional.
package controlfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"predictivelab/internal/lab"
	"predictivelab/internal/model"
)

// MaxPerturb bounds the perturbations one control file may request.
const MaxPerturb = 100

// Command is one decoded control file.
type Command struct {
	Preset    string `yaml:"preset,omitempty"`
	Mode      string `yaml:"mode,omitempty"`
	Precision *int   `yaml:"precision,omitempty"`
	Noise     *int   `yaml:"noise,omitempty"`
	Load      *int   `yaml:"load,omitempty"`
	// Perturb is the number of button perturbations to inject.
	Perturb int `yaml:"perturb,omitempty"`
}

func Parse(data []byte) (Command, error) {
	var cmd Command
	if err := yaml.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("parse control file: %w", err)
	}
	if cmd.Mode != "" {
		if _, err := model.ParseMode(cmd.Mode); err != nil {
			return Command{}, err
		}
	}
	if cmd.Perturb < 0 || cmd.Perturb > MaxPerturb {
		return Command{}, fmt.Errorf("perturb must be in [0, %d], got %d", MaxPerturb, cmd.Perturb)
	}
	return cmd, nil
}

// IsEmpty reports whether the command would leave a session untouched.
func (c Command) IsEmpty() bool {
	return c.Preset == "" && c.Mode == "" && c.Precision == nil && c.Noise == nil && c.Load == nil && c.Perturb == 0
}

// Apply runs the command against s: preset first, then the manual mode and
// control edits, then perturbations. Manual edits after a preset clear it.
func (c Command) Apply(s *lab.Session) error {
	if c.Perturb < 0 || c.Perturb > MaxPerturb {
		return fmt.Errorf("perturb must be in [0, %d], got %d", MaxPerturb, c.Perturb)
	}
	if c.Preset != "" {
		if err := s.ApplyPreset(c.Preset); err != nil {
			return err
		}
	}
	if c.Mode != "" {
		if err := s.SetMode(model.Mode(c.Mode)); err != nil {
			return err
		}
	}
	if c.Precision != nil || c.Noise != nil || c.Load != nil {
		next := s.Controls()
		if c.Precision != nil {
			next.Precision = *c.Precision
		}
		if c.Noise != nil {
			next.Noise = *c.Noise
		}
		if c.Load != nil {
			next.Load = *c.Load
		}
		s.SetControls(next)
	}
	for range c.Perturb {
		s.Perturb()
	}
	return nil
}
