package controlfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictivelab/internal/lab"
	"predictivelab/internal/model"
	"predictivelab/internal/preset"
	"predictivelab/internal/stochastic"
)

func newSession(t *testing.T) *lab.Session {
	t.Helper()
	s, err := lab.NewSession(lab.Options{
		Normal:  stochastic.Zero{},
		Uniform: &stochastic.Fixed{Values: []float64{0.7}},
	})
	require.NoError(t, err)
	return s
}

func TestParse(t *testing.T) {
	cmd, err := Parse([]byte("preset: overload\nnoise: 12\nperturb: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "overload", cmd.Preset)
	require.NotNil(t, cmd.Noise)
	assert.Equal(t, 12, *cmd.Noise)
	assert.Nil(t, cmd.Precision)
	assert.Equal(t, 2, cmd.Perturb)
	assert.False(t, cmd.IsEmpty())

	capped, err := Parse([]byte("perturb: 100\n"))
	require.NoError(t, err)
	assert.Equal(t, MaxPerturb, capped.Perturb)

	empty, err := Parse([]byte("# nothing yet\n"))
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{"mode: manic\n", "perturb: -1\n", "perturb: 101\n", "perturb: 1000000000\n", "precision: [1, 2]\n"} {
		_, err := Parse([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestApplyPresetKeepsItActive(t *testing.T) {
	s := newSession(t)
	cmd, err := Parse([]byte("preset: overload\nperturb: 1\n"))
	require.NoError(t, err)

	require.NoError(t, cmd.Apply(s))
	assert.Equal(t, preset.Named(preset.Overload), s.ActivePreset())
	assert.Equal(t, model.ModeDepressed, s.Mode())
}

func TestApplyModeAfterPresetClearsIt(t *testing.T) {
	s := newSession(t)
	cmd, err := Parse([]byte("preset: overload\nmode: Depressed\n"))
	require.NoError(t, err)

	require.NoError(t, cmd.Apply(s))
	assert.True(t, s.ActivePreset().IsNone())
	assert.Equal(t, model.ModeDepressed, s.Mode())
	assert.Equal(t, model.Controls{Precision: 46, Noise: 74, Load: 78}, s.Controls())
}

func TestApplyManualEditsClearPreset(t *testing.T) {
	s := newSession(t)
	cmd, err := Parse([]byte("preset: recovery\nload: 150\n"))
	require.NoError(t, err)

	require.NoError(t, cmd.Apply(s))
	assert.True(t, s.ActivePreset().IsNone())
	assert.Equal(t, model.Controls{Precision: 82, Noise: 27, Load: 100}, s.Controls())
	assert.Equal(t, model.ModeHealthy, s.Mode())
}

func TestApplyPerturbs(t *testing.T) {
	s := newSession(t)
	require.NoError(t, Command{Perturb: 2}.Apply(s))
	assert.Equal(t, lab.GuidePerturbation, s.Guide())
	assert.Greater(t, s.State().ExternalShock, 0.0)
}

func TestApplyUnknownPreset(t *testing.T) {
	s := newSession(t)
	require.ErrorIs(t, Command{Preset: "nope"}.Apply(s), preset.ErrUnknownPreset)
}

func TestApplyRejectsOversizedPerturb(t *testing.T) {
	s := newSession(t)
	require.Error(t, Command{Perturb: MaxPerturb + 1}.Apply(s))
	assert.Zero(t, s.State().ExternalShock)
}
