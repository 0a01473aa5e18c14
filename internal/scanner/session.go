// Package scanner runs the live document-scanning pipeline: frames are
// throttled and analysed off the caller's goroutine, results cross a
// bounded channel to a single consumer that owns the stabilizer, and
// crop requests are serialised so only one runs at a time.
//
// # Concurrency
//
//	SubmitFrame ──(rate limit, one in flight)──▶ worker goroutine
//	worker ──(chan, cap 1, stale entry replaced)──▶ consumer goroutine
//	consumer ──▶ Stabilizer.Update ──▶ snapshot + OnStableQuadChanged
//
// No lock is held across a channel operation or a callback.
package scanner

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/rectify"
	"github.com/ironsheep/docscan-mcp/internal/stabilizer"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

var (
	// ErrCropInProgress is returned when a crop is requested while another
	// one is still running.
	ErrCropInProgress = errors.New("crop already in progress")

	// ErrCaptureUnavailable wraps failures from the capture device, such as
	// a denied permission or a disconnected camera.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrNoDocument is returned by Capture when no stable quad exists.
	ErrNoDocument = errors.New("no document detected")
)

// Default throttle settings.
const (
	DefaultRate  = 8.0
	DefaultBurst = 1
)

// Options configures a Session.
type Options struct {
	// Rate is the maximum number of frames analysed per second.
	Rate float64

	// Burst is the limiter's bucket size.
	Burst int

	// Stabilizer tunes smoothing and hold.
	Stabilizer stabilizer.Options

	// Mapper converts quads between pixel spaces.
	Mapper transform.Mapper

	// Overlay draws the stable quad on previews. Nil selects the outline
	// renderer.
	Overlay imaging.OverlayRenderer
}

// DefaultOptions returns 8 frames/s, burst 1 and the default stabilizer.
func DefaultOptions() Options {
	return Options{
		Rate:       DefaultRate,
		Burst:      DefaultBurst,
		Stabilizer: stabilizer.DefaultOptions(),
		Mapper:     transform.DefaultMapper,
	}
}

// Submission is the fate of a submitted frame.
type Submission int

const (
	// Accepted means the frame was handed to the analysis worker.
	Accepted Submission = iota
	// Disabled means detection is switched off.
	Disabled
	// Busy means a previous frame is still being analysed.
	Busy
	// Throttled means the frame arrived faster than the configured rate.
	Throttled
)

func (s Submission) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Disabled:
		return "disabled"
	case Busy:
		return "busy"
	case Throttled:
		return "throttled"
	}
	return "unknown"
}

// Snapshot is the consumer's latest view of the stable quad.
type Snapshot struct {
	// Result is the stable quad, or nil when no document is present.
	Result *detection.Result `json:"result"`

	// State is the stabilizer phase.
	State string `json:"state"`

	// Seq counts the outcomes the consumer has processed.
	Seq uint64 `json:"seq"`
}

// Stats counts frames by outcome.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Analyzed  uint64 `json:"analyzed"`
	Throttled uint64 `json:"throttled"`
	Busy      uint64 `json:"busy"`
	Disabled  uint64 `json:"disabled"`
	Stale     uint64 `json:"stale"`
}

// outcome is one analysed frame on its way to the consumer.
type outcome struct {
	result *detection.Result
	at     time.Time
	gen    uint64
}

// Session is one live scanning session.
type Session struct {
	detector  *detection.Detector
	rectifier *rectify.Rectifier
	opts      Options
	log       logrus.FieldLogger
	now       func() time.Time

	limiter  *rate.Limiter
	inFlight atomic.Bool
	enabled  atomic.Bool
	gen      atomic.Uint64
	started  atomic.Bool
	crop     *semaphore.Weighted

	results chan outcome
	resets  chan struct{}

	// Owned by the consumer goroutine.
	stab      *stabilizer.Stabilizer
	lastSpace transform.PixelSpace

	mu       sync.RWMutex
	snapshot Snapshot
	updated  chan struct{}
	onChange func(*geometry.Quad, transform.PixelSpace)

	submitted, analyzed, throttled, busy, disabled, stale atomic.Uint64
}

// New creates a Session with detection enabled. The consumer does not run
// until Start or Run is called.
func New(det *detection.Detector, rect *rectify.Rectifier, opts Options, log logrus.FieldLogger) *Session {
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.Overlay == nil {
		opts.Overlay, _ = imaging.NewOverlayRenderer(imaging.OverlayOutline, "", 0)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Session{
		detector:  det,
		rectifier: rect,
		opts:      opts,
		log:       log.WithField("component", "scanner"),
		now:       time.Now,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		crop:      semaphore.NewWeighted(1),
		results:   make(chan outcome, 1),
		resets:    make(chan struct{}, 1),
		stab:      stabilizer.New(opts.Stabilizer),
		updated:   make(chan struct{}),
	}
	s.snapshot.State = stabilizer.StateEmpty.String()
	s.enabled.Store(true)
	return s
}

// Start launches the consumer goroutine. It stops when ctx is done.
// Calling Start more than once has no effect.
func (s *Session) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.consume(ctx)
}

// SetDetectionEnabled switches frame analysis on or off. Switching off
// discards pending results, resets the stabilizer and reports a nil quad
// to OnStableQuadChanged.
func (s *Session) SetDetectionEnabled(enabled bool) {
	if s.enabled.Swap(enabled) == enabled {
		return
	}
	if enabled {
		s.log.Debug("detection enabled")
		return
	}

	s.gen.Add(1)
	select {
	case <-s.results:
	default:
	}
	select {
	case s.resets <- struct{}{}:
	default:
	}
	s.log.Debug("detection disabled")
}

// DetectionEnabled reports whether frames are being analysed.
func (s *Session) DetectionEnabled() bool {
	return s.enabled.Load()
}

// OnStableQuadChanged registers fn to receive the stable quad whenever it
// changes, together with the pixel space it is expressed in. fn runs on
// the consumer goroutine and receives nil when the document is lost.
func (s *Session) OnStableQuadChanged(fn func(*geometry.Quad, transform.PixelSpace)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// MapQuad converts q between pixel spaces with the session's Mapper.
func (s *Session) MapQuad(q geometry.Quad, from, to transform.PixelSpace, fit transform.FitMode) (geometry.Quad, error) {
	return s.opts.Mapper.MapQuad(q, from, to, fit)
}

// SubmitFrame offers a frame for analysis without blocking. Frames are
// dropped while detection is disabled, while a previous frame is still in
// flight, or when they exceed the rate limit.
func (s *Session) SubmitFrame(f Frame) Submission {
	s.submitted.Add(1)

	if !s.enabled.Load() {
		s.disabled.Add(1)
		return Disabled
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.busy.Add(1)
		return Busy
	}
	if !s.limiter.Allow() {
		s.inFlight.Store(false)
		s.throttled.Add(1)
		return Throttled
	}

	go s.analyze(f, s.gen.Load())
	return Accepted
}

func (s *Session) analyze(f Frame, gen uint64) {
	defer s.inFlight.Store(false)

	ts := f.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	var res *detection.Result
	if f.Image != nil {
		res = s.detector.Detect(f.Image, ts)
	} else {
		res = s.detector.DetectRaw(f.Pixels, f.Width, f.Height, f.Channels, ts)
	}
	s.analyzed.Add(1)

	s.publish(outcome{result: res, at: ts, gen: gen})
}

// publish sends o, replacing any result the consumer has not picked up.
func (s *Session) publish(o outcome) {
	for {
		select {
		case s.results <- o:
			return
		default:
		}
		select {
		case <-s.results:
			s.stale.Add(1)
		default:
		}
	}
}

func (s *Session) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resets:
			s.apply(nil, false, s.now())
		case o := <-s.results:
			// A reset queued before this result was produced must land first.
			select {
			case <-s.resets:
				s.apply(nil, false, s.now())
			default:
			}
			if o.gen != s.gen.Load() {
				s.stale.Add(1)
				continue
			}
			s.apply(o.result, s.enabled.Load(), o.at)
		}
	}
}

// apply runs one stabilizer step and notifies observers when the stable
// quad changed. Called only from the consumer goroutine.
func (s *Session) apply(res *detection.Result, enabled bool, now time.Time) {
	before := s.stab.Current()
	stable := s.stab.Update(res, enabled, now)
	if stable != nil {
		s.lastSpace = stable.Space
	}

	s.mu.Lock()
	s.snapshot = Snapshot{Result: stable, State: s.stab.State().String(), Seq: s.snapshot.Seq + 1}
	close(s.updated)
	s.updated = make(chan struct{})
	fn := s.onChange
	s.mu.Unlock()

	if fn == nil || sameResult(before, stable) {
		return
	}
	if stable == nil {
		fn(nil, s.lastSpace)
		return
	}
	q := stable.Quad
	fn(&q, stable.Space)
}

func sameResult(a, b *detection.Result) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Quad == b.Quad && a.Space.Same(b.Space)
}

// Stable returns the latest snapshot.
func (s *Session) Stable() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// WaitForUpdate blocks until the consumer has processed an outcome after
// seq, or ctx is done.
func (s *Session) WaitForUpdate(ctx context.Context, seq uint64) (Snapshot, error) {
	for {
		s.mu.RLock()
		snap := s.snapshot
		ch := s.updated
		s.mu.RUnlock()

		if snap.Seq > seq {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ch:
		}
	}
}

// Stats returns the frame counters.
func (s *Session) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Analyzed:  s.analyzed.Load(),
		Throttled: s.throttled.Load(),
		Busy:      s.busy.Load(),
		Disabled:  s.disabled.Load(),
		Stale:     s.stale.Load(),
	}
}

// RenderOverlay draws the stable quad onto a copy of preview, mapping it
// from frame space into the preview's pixel space under fit. With no
// stable quad the copy is returned unmarked.
func (s *Session) RenderOverlay(preview image.Image, fit transform.FitMode) (*image.NRGBA, error) {
	snap := s.Stable()
	b := preview.Bounds()
	if snap.Result == nil {
		none, _ := imaging.NewOverlayRenderer(imaging.OverlayNone, "", 0)
		return imaging.RenderOverlayImage(preview, geometry.Quad{}, none), nil
	}

	view := transform.Space(transform.KindPreview, float64(b.Dx()), float64(b.Dy()))
	q, err := s.MapQuad(snap.Result.Quad, snap.Result.Space, view, fit)
	if err != nil {
		return nil, err
	}
	return imaging.RenderOverlayImage(preview, q, s.opts.Overlay), nil
}
