package stabilizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

var (
	t0    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame = transform.Space(transform.KindFrame, 640, 480)
)

func result(q geometry.Quad, at time.Duration) *detection.Result {
	return &detection.Result{Quad: q, Space: frame, Timestamp: t0.Add(at)}
}

func quadA() geometry.Quad { return geometry.RectQuad(100, 100, 300, 200) }

func TestUpdate_Hysteresis(t *testing.T) {
	s := New(DefaultOptions())
	a := quadA()

	steps := []struct {
		in *detection.Result
		at time.Duration
	}{
		{result(a, 0), 0},
		{nil, 100 * time.Millisecond},
		{nil, 200 * time.Millisecond},
		{result(a, 240*time.Millisecond), 240 * time.Millisecond},
	}

	for i, step := range steps {
		got := s.Update(step.in, true, t0.Add(step.at))
		require.NotNil(t, got, "step %d flickered to nil", i)
		assert.True(t, got.Quad.ApproxEqual(a, 1e-9), "step %d: got %v", i, got.Quad)
	}
	assert.Equal(t, StateConfirmed, s.State())
}

func TestUpdate_Expiry(t *testing.T) {
	s := New(DefaultOptions())

	require.NotNil(t, s.Update(result(quadA(), 0), true, t0))
	assert.Nil(t, s.Update(nil, true, t0.Add(300*time.Millisecond)))
	assert.Equal(t, StateEmpty, s.State())
}

func TestUpdate_HoldingState(t *testing.T) {
	s := New(DefaultOptions())

	s.Update(result(quadA(), 0), true, t0)
	s.Update(nil, true, t0.Add(50*time.Millisecond))
	assert.Equal(t, StateHolding, s.State())

	// Hold is measured from the last good detection, not the last miss.
	assert.NotNil(t, s.Update(nil, true, t0.Add(249*time.Millisecond)))
	assert.Nil(t, s.Update(nil, true, t0.Add(250*time.Millisecond)))
}

func TestUpdate_Smoothing(t *testing.T) {
	s := New(DefaultOptions())
	a := geometry.RectQuad(0, 0, 100, 100)
	b := geometry.RectQuad(100, 100, 100, 100)

	s.Update(result(a, 0), true, t0)
	got := s.Update(result(b, 10*time.Millisecond), true, t0.Add(10*time.Millisecond))
	require.NotNil(t, got)

	want := a.Lerp(b, 0.35)
	assert.True(t, got.Quad.ApproxEqual(want, 1e-9), "got %v, want %v", got.Quad, want)
	assert.InDelta(t, 35, got.Quad[0].X, 1e-9)
}

func TestUpdate_SpaceChangeAdoptsOutright(t *testing.T) {
	s := New(DefaultOptions())
	a := geometry.RectQuad(0, 0, 100, 100)
	b := geometry.RectQuad(50, 50, 100, 100)

	s.Update(result(a, 0), true, t0)

	other := &detection.Result{
		Quad:      b,
		Space:     transform.Space(transform.KindFrame, 1280, 720),
		Timestamp: t0.Add(10 * time.Millisecond),
	}
	got := s.Update(other, true, t0.Add(10*time.Millisecond))
	require.NotNil(t, got)
	assert.Equal(t, b, got.Quad)
	assert.Equal(t, other.Space, got.Space)
}

func TestUpdate_DisableResets(t *testing.T) {
	s := New(DefaultOptions())

	s.Update(result(quadA(), 0), true, t0)
	assert.Nil(t, s.Update(result(quadA(), 10*time.Millisecond), false, t0.Add(10*time.Millisecond)))
	assert.Equal(t, StateEmpty, s.State())
	assert.Nil(t, s.Current())

	// After a reset the next detection is adopted without smoothing.
	b := geometry.RectQuad(0, 0, 50, 50)
	got := s.Update(result(b, 5*time.Millisecond), true, t0.Add(20*time.Millisecond))
	require.NotNil(t, got)
	assert.Equal(t, b, got.Quad)
}

func TestUpdate_DropsStaleResults(t *testing.T) {
	s := New(DefaultOptions())
	a := geometry.RectQuad(0, 0, 100, 100)
	stale := geometry.RectQuad(500, 500, 10, 10)

	s.Update(result(a, 100*time.Millisecond), true, t0.Add(100*time.Millisecond))
	got := s.Update(result(stale, 50*time.Millisecond), true, t0.Add(110*time.Millisecond))
	require.NotNil(t, got)
	assert.Equal(t, a, got.Quad)
}

func TestUpdate_ReturnsCopy(t *testing.T) {
	s := New(DefaultOptions())

	got := s.Update(result(quadA(), 0), true, t0)
	got.Quad[0].X = -1

	assert.Equal(t, quadA(), s.Current().Quad)
}

func TestNew_InvalidOptionsFallBack(t *testing.T) {
	s := New(Options{Alpha: 0, Hold: -time.Second})
	assert.Equal(t, DefaultOptions(), s.opts)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "holding", StateHolding.String())
	assert.Equal(t, "confirmed", StateConfirmed.String())
}
