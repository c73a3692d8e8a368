package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	dts []float64
}

func (r *recorder) step(dt float64) { r.dts = append(r.dts, dt) }

func TestSchedulerRunsOnlyWhenVisibleAndIntersecting(t *testing.T) {
	tests := []struct {
		visible, intersecting bool
		running               bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{true, true, true},
	}
	for _, tc := range tests {
		s := New(func(float64) {}, Options{})
		s.SetVisible(tc.visible)
		s.SetIntersecting(tc.intersecting)
		assert.Equal(t, tc.running, s.Running(), "visible=%v intersecting=%v", tc.visible, tc.intersecting)
	}
}

func TestSchedulerSyncIsIdempotent(t *testing.T) {
	s := New(func(float64) {}, Options{Visible: true, Intersecting: true})
	require.Equal(t, Started, s.Sync())
	token := s.Token()
	require.Equal(t, Unchanged, s.Sync())
	require.Equal(t, Unchanged, s.Start())
	require.Equal(t, token, s.Token(), "no duplicate loop on repeated start")

	require.Equal(t, Stopped, s.SetVisible(false))
	require.Equal(t, Unchanged, s.SetVisible(false))
	require.Equal(t, Unchanged, s.Stop())
}

func TestSchedulerFrameDt(t *testing.T) {
	rec := &recorder{}
	s := New(rec.step, Options{Visible: true, Intersecting: true})
	s.Sync()
	token := s.Token()
	base := time.Unix(100, 0)

	require.True(t, s.Frame(token, base))
	require.True(t, s.Frame(token, base.Add(20*time.Millisecond)))
	require.True(t, s.Frame(token, base.Add(2*time.Second)))
	require.True(t, s.Frame(token, base.Add(time.Second)))

	require.Len(t, rec.dts, 4)
	assert.InDelta(t, 1.0/60, rec.dts[0], 1e-12)
	assert.InDelta(t, 0.02, rec.dts[1], 1e-9)
	assert.InDelta(t, DefaultMaxDt, rec.dts[2], 1e-12)
	assert.Zero(t, rec.dts[3], "clock going backwards clamps to zero")
	assert.Equal(t, 4, s.Frames())
}

func TestSchedulerStopForgetsLastTimestamp(t *testing.T) {
	rec := &recorder{}
	s := New(rec.step, Options{Visible: true, Intersecting: true})
	s.Sync()
	base := time.Unix(100, 0)
	s.Frame(s.Token(), base)

	s.SetIntersecting(false)
	s.SetIntersecting(true)
	require.True(t, s.Frame(s.Token(), base.Add(time.Hour)))
	assert.InDelta(t, 1.0/60, rec.dts[1], 1e-12)
}

func TestSchedulerIgnoresStaleTokens(t *testing.T) {
	rec := &recorder{}
	s := New(rec.step, Options{Visible: true, Intersecting: true})
	s.Sync()
	stale := s.Token()
	s.SetVisible(false)
	assert.False(t, s.Frame(stale, time.Now()), "stopped scheduler must not step")
	s.SetVisible(true)
	assert.False(t, s.Frame(stale, time.Now()), "frame from earlier run must be dropped")
	assert.True(t, s.Frame(s.Token(), time.Now()))
	assert.Len(t, rec.dts, 1)
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}
