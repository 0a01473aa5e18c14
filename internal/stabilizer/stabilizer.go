// Package stabilizer smooths per-frame document detections into a steady
// quad that does not flicker when a few frames miss the page.
//
// A Stabilizer is a small state machine:
//
//	Empty     --detection-->          Confirmed
//	Confirmed --detection-->          Confirmed (corners eased toward the new quad)
//	Confirmed --miss within hold-->   Holding
//	Holding   --detection-->          Confirmed
//	Holding   --miss after hold-->    Empty
//	any       --disabled-->           Empty
//
// A Stabilizer is not safe for concurrent use. The scanner package gives
// one goroutine exclusive ownership of it.
package stabilizer

import (
	"fmt"
	"time"

	"github.com/ironsheep/docscan-mcp/internal/detection"
)

// State is the observable phase of a Stabilizer.
type State int

const (
	// StateEmpty means no document is present.
	StateEmpty State = iota
	// StateHolding means recent frames missed but the last quad is still shown.
	StateHolding
	// StateConfirmed means the latest frame produced a detection.
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHolding:
		return "holding"
	case StateConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Defaults for Options.
const (
	DefaultAlpha = 0.35
	DefaultHold  = 250 * time.Millisecond
)

// Options tunes smoothing and hysteresis.
type Options struct {
	// Alpha is the per-update weight of a new detection, in (0, 1].
	Alpha float64

	// Hold is how long the last good quad survives missed frames.
	Hold time.Duration
}

// DefaultOptions returns alpha 0.35 and a 250ms hold window.
func DefaultOptions() Options {
	return Options{Alpha: DefaultAlpha, Hold: DefaultHold}
}

// Stabilizer tracks the stable quad across a stream of detections.
type Stabilizer struct {
	opts Options

	current    *detection.Result
	lastGoodAt time.Time
	newest     time.Time
	state      State
}

// New creates an empty Stabilizer. Out-of-range options fall back to the
// defaults.
func New(opts Options) *Stabilizer {
	if !(opts.Alpha > 0 && opts.Alpha <= 1) {
		opts.Alpha = DefaultAlpha
	}
	if opts.Hold < 0 {
		opts.Hold = DefaultHold
	}
	return &Stabilizer{opts: opts}
}

// Update folds one frame's outcome into the stable quad and returns it.
//
// res is nil when the frame produced no candidate. enabled=false resets the
// stabilizer and returns nil. A result whose timestamp is older than the
// newest one already applied is ignored. now drives the hold window.
//
// The returned value is a copy the caller may keep.
func (s *Stabilizer) Update(res *detection.Result, enabled bool, now time.Time) *detection.Result {
	if !enabled {
		s.Reset()
		return nil
	}

	if res == nil {
		if s.current != nil && now.Sub(s.lastGoodAt) < s.opts.Hold {
			s.state = StateHolding
			return s.Current()
		}
		s.clear()
		return nil
	}

	if !s.newest.IsZero() && res.Timestamp.Before(s.newest) {
		return s.Current()
	}
	s.newest = res.Timestamp

	next := *res
	if s.current != nil && s.current.Space.Same(res.Space) {
		next.Quad = s.current.Quad.Lerp(res.Quad, s.opts.Alpha)
	}
	s.current = &next
	s.lastGoodAt = now
	s.state = StateConfirmed
	return s.Current()
}

// Current returns a copy of the stable result, or nil.
func (s *Stabilizer) Current() *detection.Result {
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// State reports the current phase.
func (s *Stabilizer) State() State {
	return s.state
}

// Reset returns to Empty and forgets timestamp ordering.
func (s *Stabilizer) Reset() {
	s.clear()
	s.newest = time.Time{}
}

func (s *Stabilizer) clear() {
	s.current = nil
	s.lastGoodAt = time.Time{}
	s.state = StateEmpty
}
