package stochastic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalSourceReturnsCachedPair(t *testing.T) {
	uniform := &Fixed{Values: []float64{0.25, 0.125}}
	source := NewNormalSource(uniform)

	first := source.Next()
	second := source.Next()

	magnitude := math.Sqrt(-2 * math.Log(0.25))
	angle := 2 * math.Pi * 0.125
	require.InDelta(t, magnitude*math.Cos(angle), first, 1e-12)
	require.InDelta(t, magnitude*math.Sin(angle), second, 1e-12)
	require.Equal(t, 2, uniform.next, "second call must not consume uniform draws")

	source.Next()
	require.Equal(t, 4, uniform.next)
}

func TestNormalSourceRejectsZeroUniforms(t *testing.T) {
	uniform := &Fixed{Values: []float64{0, 0, 0.5, 0, 0.25}}
	source := NewNormalSource(uniform)

	got := source.Next()
	require.False(t, math.IsInf(got, 0))
	require.False(t, math.IsNaN(got))
	require.Equal(t, 5, uniform.next)

	magnitude := math.Sqrt(-2 * math.Log(0.5))
	require.InDelta(t, magnitude*math.Cos(2*math.Pi*0.25), got, 1e-12)
}

func TestNormalSourceMoments(t *testing.T) {
	source, _ := NewSeeded(7)
	const n = 200000
	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		v := source.Next()
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	require.InDelta(t, 0, mean, 0.02)
	require.InDelta(t, 1, variance, 0.02)
}

func TestZeroAlwaysZero(t *testing.T) {
	var z Zero
	for i := 0; i < 3; i++ {
		if z.Next() != 0 {
			t.Fatal("expected zero")
		}
	}
}
