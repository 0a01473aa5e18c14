package scanner

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/rectify"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

// createDocumentImage draws a filled white page on a dark background
func createDocumentImage(width, height int, page image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{20, 20, 20, 255}
			if image.Pt(x, y).In(page) {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func documentFrame() Frame {
	return Frame{Image: createDocumentImage(400, 400, image.Rect(40, 100, 360, 300))}
}

func newTestSession(t *testing.T, k imaging.Kernels, opts Options) *Session {
	t.Helper()
	if k == nil {
		k = imaging.NewGoKernels()
	}
	det, err := detection.NewDetector(k, detection.DefaultOptions(), nil)
	require.NoError(t, err)
	return New(det, rectify.New(k, nil), opts, nil)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitIdle blocks until the in-flight frame has been released.
func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.inFlight.Load() }, 5*time.Second, time.Millisecond)
}

func TestSession_DetectsAndNotifies(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	ctx := waitCtx(t)
	s.Start(ctx)

	type change struct {
		quad  *geometry.Quad
		space transform.PixelSpace
	}
	changes := make(chan change, 4)
	s.OnStableQuadChanged(func(q *geometry.Quad, space transform.PixelSpace) {
		changes <- change{q, space}
	})

	require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))

	select {
	case c := <-changes:
		require.NotNil(t, c.quad)
		assert.Equal(t, transform.Space(transform.KindFrame, 400, 400), c.space)
		assert.InDelta(t, 40, c.quad[geometry.TopLeft].X, 16)
		assert.InDelta(t, 100, c.quad[geometry.TopLeft].Y, 16)
	case <-ctx.Done():
		t.Fatal("no stable quad reported")
	}

	snap := s.Stable()
	require.NotNil(t, snap.Result)
	assert.Equal(t, "confirmed", snap.State)
	assert.Equal(t, uint64(1), snap.Seq)
}

func TestSession_DisableResets(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	ctx := waitCtx(t)
	s.Start(ctx)

	var (
		mu    sync.Mutex
		calls []*geometry.Quad
	)
	s.OnStableQuadChanged(func(q *geometry.Quad, _ transform.PixelSpace) {
		mu.Lock()
		calls = append(calls, q)
		mu.Unlock()
	})

	require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))
	snap, err := s.WaitForUpdate(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, snap.Result)

	s.SetDetectionEnabled(false)
	snap, err = s.WaitForUpdate(ctx, snap.Seq)
	require.NoError(t, err)
	assert.Nil(t, snap.Result)
	assert.Equal(t, "empty", snap.State)
	assert.False(t, s.DetectionEnabled())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 2
	}, 5*time.Second, time.Millisecond)
	mu.Lock()
	assert.NotNil(t, calls[0])
	assert.Nil(t, calls[1])
	mu.Unlock()

	assert.Equal(t, Disabled, s.SubmitFrame(documentFrame()))
	assert.Equal(t, uint64(1), s.Stats().Disabled)
}

// blockingKernels parks the first pipeline stage until released.
type blockingKernels struct {
	*imaging.GoKernels
	release chan struct{}
}

func (k blockingKernels) Resize(img image.Image, w, h int) (image.Image, error) {
	<-k.release
	return k.GoKernels.Resize(img, w, h)
}

func TestSession_DropsFramesWhileBusy(t *testing.T) {
	k := blockingKernels{imaging.NewGoKernels(), make(chan struct{})}
	opts := DefaultOptions()
	opts.Rate = 1000
	opts.Burst = 10
	s := newTestSession(t, k, opts)

	require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))
	assert.Equal(t, Busy, s.SubmitFrame(documentFrame()))
	assert.Equal(t, Busy, s.SubmitFrame(documentFrame()))

	close(k.release)
	waitIdle(t, s)
	assert.Equal(t, Accepted, s.SubmitFrame(documentFrame()))

	stats := s.Stats()
	assert.Equal(t, uint64(4), stats.Submitted)
	assert.Equal(t, uint64(2), stats.Busy)
}

func TestSession_Throttles(t *testing.T) {
	opts := DefaultOptions()
	opts.Rate = 0.01
	s := newTestSession(t, nil, opts)

	require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))
	waitIdle(t, s)
	assert.Equal(t, Throttled, s.SubmitFrame(documentFrame()))
	assert.Equal(t, uint64(1), s.Stats().Throttled)
}

func TestSession_PublishReplacesStale(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	first := &detection.Result{Quad: geometry.RectQuad(0, 0, 10, 10)}
	second := &detection.Result{Quad: geometry.RectQuad(5, 5, 10, 10)}

	s.publish(outcome{result: first})
	s.publish(outcome{result: second})

	got := <-s.results
	assert.Same(t, second, got.result)
	assert.Equal(t, uint64(1), s.Stats().Stale)
}

func TestSession_DropsResultsFromBeforeDisable(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	ctx := waitCtx(t)

	s.publish(outcome{result: &detection.Result{Quad: geometry.RectQuad(0, 0, 10, 10)}, gen: 0})
	s.SetDetectionEnabled(false)
	s.SetDetectionEnabled(true)
	s.publish(outcome{result: &detection.Result{Quad: geometry.RectQuad(0, 0, 10, 10)}, gen: 0})

	s.Start(ctx)
	// Only the reset is applied; the outcome tagged with the old generation is skipped.
	snap, err := s.WaitForUpdate(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, snap.Result)
	require.Eventually(t, func() bool { return s.Stats().Stale >= 1 }, 5*time.Second, time.Millisecond)
	assert.Nil(t, s.Stable().Result)
}

func TestSession_ReenableKeepsNewDetection(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := newTestSession(t, nil, DefaultOptions())
		ctx := waitCtx(t)

		var (
			mu   sync.Mutex
			last *geometry.Quad
		)
		s.OnStableQuadChanged(func(q *geometry.Quad, _ transform.PixelSpace) {
			mu.Lock()
			last = q
			mu.Unlock()
		})

		s.SetDetectionEnabled(false)
		s.SetDetectionEnabled(true)
		require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))
		waitIdle(t, s)

		s.Start(ctx)
		// The queued reset is applied first, then the fresh detection.
		snap, err := s.WaitForUpdate(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, snap.Result, "run %d: detection wiped by stale reset", i)
		assert.Equal(t, uint64(2), snap.Seq)

		mu.Lock()
		assert.NotNil(t, last, "run %d: last notification should carry the quad", i)
		mu.Unlock()
	}
}

func TestSession_RequestCropInProgress(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	img := createDocumentImage(100, 100, image.Rect(10, 10, 90, 60))
	q := geometry.RectQuad(10, 10, 80, 50)

	require.True(t, s.crop.TryAcquire(1))
	_, err := s.RequestCrop(context.Background(), img, q, rectify.Options{})
	assert.ErrorIs(t, err, ErrCropInProgress)
	s.crop.Release(1)

	res, err := s.RequestCrop(context.Background(), img, q, rectify.Options{Format: "png"})
	require.NoError(t, err)
	assert.Equal(t, 80, res.Width)
	assert.Equal(t, 50, res.Height)
}

func TestSession_RequestCropPropagatesErrors(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	_, err := s.RequestCrop(context.Background(), nil, geometry.RectQuad(0, 0, 10, 10), rectify.Options{})
	assert.ErrorIs(t, err, rectify.ErrSourceUnreadable)

	// The semaphore is released after a failure.
	assert.True(t, s.crop.TryAcquire(1))
}

// fakeSource replays frames then reports io.EOF.
type fakeSource struct {
	mu       sync.Mutex
	frames   []Frame
	still    image.Image
	stillErr error
}

func (f *fakeSource) NextFrame(ctx context.Context) (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return Frame{}, io.EOF
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func (f *fakeSource) CaptureStill(ctx context.Context) (image.Image, error) {
	return f.still, f.stillErr
}

func TestSession_RunUntilEOF(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	src := &fakeSource{frames: []Frame{documentFrame(), documentFrame(), documentFrame()}}

	err := s.Run(waitCtx(t), src)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Stats().Submitted)
	assert.False(t, s.started.Load(), "consumer started by Run stops with it")
}

// failingSource reports a device error.
type failingSource struct{}

func (failingSource) NextFrame(context.Context) (Frame, error) {
	return Frame{}, errors.New("camera permission denied")
}

func (failingSource) CaptureStill(context.Context) (image.Image, error) {
	return nil, errors.New("camera permission denied")
}

func TestSession_RunSourceFailure(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	err := s.Run(waitCtx(t), failingSource{})
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestSession_Capture(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	ctx := waitCtx(t)

	_, err := s.Capture(ctx, &fakeSource{}, rectify.Options{})
	assert.ErrorIs(t, err, ErrNoDocument)

	s.Start(ctx)
	require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))
	snap, err := s.WaitForUpdate(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, snap.Result)

	_, err = s.Capture(ctx, failingSource{}, rectify.Options{})
	assert.ErrorIs(t, err, ErrCaptureUnavailable)

	// The still has twice the frame's resolution.
	still := createDocumentImage(800, 800, image.Rect(80, 200, 720, 600))
	res, err := s.Capture(ctx, &fakeSource{still: still}, rectify.Options{Format: "png"})
	require.NoError(t, err)
	assert.InDelta(t, 640, res.Width, 48)
	assert.InDelta(t, 400, res.Height, 48)
}

func TestSession_RenderOverlay(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	ctx := waitCtx(t)
	preview := createDocumentImage(200, 200, image.Rect(20, 50, 180, 150))

	plain, err := s.RenderOverlay(preview, transform.FitContain)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{20, 20, 20, 255}, plain.NRGBAAt(0, 0))

	s.Start(ctx)
	require.Equal(t, Accepted, s.SubmitFrame(documentFrame()))
	_, err = s.WaitForUpdate(ctx, 0)
	require.NoError(t, err)

	marked, err := s.RenderOverlay(preview, transform.FitContain)
	require.NoError(t, err)

	green := color.NRGBA{0, 255, 0, 255}
	found := false
	for x := 0; x < 200 && !found; x++ {
		for y := 0; y < 200; y++ {
			if marked.NRGBAAt(x, y) == green {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "outline should be drawn in the preview")
}

func TestSession_MapQuad(t *testing.T) {
	s := newTestSession(t, nil, DefaultOptions())
	got, err := s.MapQuad(geometry.RectQuad(0, 0, 10, 10),
		transform.Space(transform.KindFrame, 100, 100),
		transform.Space(transform.KindPreview, 200, 200),
		transform.FitContain)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(geometry.RectQuad(0, 0, 20, 20), 1e-9))
}
