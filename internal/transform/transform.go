// Package transform converts quads between the pixel spaces a document passes
// through: the sensor frame, the on-screen preview, the stored photo, the
// EXIF-oriented display rendering and the letterboxed edit view.
//
// Every function is pure. Source and destination spaces are always passed
// explicitly and every result is re-ordered to [TL, TR, BR, BL], since a
// 90° rotation changes which physical corner is top-left.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

// ErrEmptySpace is returned when a space has a non-positive dimension.
var ErrEmptySpace = errors.New("pixel space has no area")

// SpaceKind names the provenance of a pixel space.
type SpaceKind string

const (
	KindFrame   SpaceKind = "frame"   // raw capture-stream buffer
	KindPreview SpaceKind = "preview" // on-screen camera preview
	KindPhoto   SpaceKind = "photo"   // stored still image, raw pixel grid
	KindDisplay SpaceKind = "display" // photo rendered after EXIF orientation
	KindEdit    SpaceKind = "edit"    // letterboxed corner-editing view
)

// PixelSpace is a coordinate frame with its pixel dimensions.
type PixelSpace struct {
	Kind   SpaceKind `json:"kind"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
}

// Space is shorthand for PixelSpace{Kind: kind, Width: w, Height: h}.
func Space(kind SpaceKind, w, h float64) PixelSpace {
	return PixelSpace{Kind: kind, Width: w, Height: h}
}

// Validate checks that s has a positive, finite area.
func (s PixelSpace) Validate() error {
	if !(s.Width > 0) || !(s.Height > 0) || math.IsInf(s.Width, 0) || math.IsInf(s.Height, 0) {
		return fmt.Errorf("%w: %s %vx%v", ErrEmptySpace, s.Kind, s.Width, s.Height)
	}
	return nil
}

// Landscape reports whether s is wider than tall.
func (s PixelSpace) Landscape() bool { return s.Width > s.Height }

// Portrait reports whether s is taller than wide.
func (s PixelSpace) Portrait() bool { return s.Height > s.Width }

// Transposed returns s with width and height swapped.
func (s PixelSpace) Transposed() PixelSpace {
	return PixelSpace{Kind: s.Kind, Width: s.Height, Height: s.Width}
}

// Same reports whether a and b describe the same space.
func (s PixelSpace) Same(o PixelSpace) bool {
	return s.Kind == o.Kind && s.Width == o.Width && s.Height == o.Height
}

// FitMode is the letterboxing policy used when the aspect ratios of two
// spaces differ.
type FitMode string

const (
	// FitCover fills the destination and crops the overflow.
	FitCover FitMode = "cover"
	// FitContain shows all of the source and letterboxes the remainder.
	FitContain FitMode = "contain"
)

// ParseFitMode accepts "cover" or "contain"; empty selects contain.
func ParseFitMode(s string) (FitMode, error) {
	switch FitMode(strings.ToLower(strings.TrimSpace(s))) {
	case FitCover:
		return FitCover, nil
	case FitContain, "":
		return FitContain, nil
	}
	return "", fmt.Errorf("unknown fit mode: %s", s)
}

// Rotation is the quarter turn applied to bring a sideways source upright.
type Rotation int

const (
	// RotateCCW turns content 90° counter-clockwise: (x, y) -> (y, W-x).
	RotateCCW Rotation = iota
	// RotateCW turns content 90° clockwise: (x, y) -> (H-y, x).
	RotateCW
)

func (r Rotation) String() string {
	if r == RotateCW {
		return "cw"
	}
	return "ccw"
}

// ParseRotation accepts "cw" or "ccw" (and the long forms); empty is ccw.
func ParseRotation(s string) (Rotation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ccw", "counterclockwise", "counter-clockwise":
		return RotateCCW, nil
	case "cw", "clockwise":
		return RotateCW, nil
	}
	return RotateCCW, fmt.Errorf("unknown rotation: %s", s)
}

// RotationFromEXIF derives the quarter-turn direction from an EXIF
// orientation value. ok is false for orientations 1-4, which do not swap
// the axes.
func RotationFromEXIF(orientation int) (r Rotation, ok bool) {
	switch orientation {
	case 6, 7:
		return RotateCW, true
	case 5, 8:
		return RotateCCW, true
	}
	return RotateCCW, false
}

// rotatePoint turns p within a w x h space by r. The result lives in an
// h x w space.
func rotatePoint(p geometry.Point, w, h float64, r Rotation) geometry.Point {
	if r == RotateCW {
		return geometry.Point{X: h - p.Y, Y: p.X}
	}
	return geometry.Point{X: p.Y, Y: w - p.X}
}

// unrotatePoint inverts rotatePoint. w and h are the dimensions of the
// space before rotation.
func unrotatePoint(p geometry.Point, w, h float64, r Rotation) geometry.Point {
	if r == RotateCW {
		return geometry.Point{X: p.Y, Y: h - p.X}
	}
	return geometry.Point{X: w - p.Y, Y: p.X}
}

// Fit is a uniform scale plus centring offset between two spaces.
type Fit struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// ComputeFit returns the scale and offsets placing a srcW x srcH rectangle
// centred inside dstW x dstH under mode.
func ComputeFit(srcW, srcH, dstW, dstH float64, mode FitMode) Fit {
	sx := dstW / srcW
	sy := dstH / srcH
	scale := math.Min(sx, sy)
	if mode == FitCover {
		scale = math.Max(sx, sy)
	}
	return Fit{
		Scale:   scale,
		OffsetX: (dstW - srcW*scale) / 2,
		OffsetY: (dstH - srcH*scale) / 2,
	}
}

// Apply maps p forward: p*scale + offset.
func (f Fit) Apply(p geometry.Point) geometry.Point {
	return geometry.Point{X: p.X*f.Scale + f.OffsetX, Y: p.Y*f.Scale + f.OffsetY}
}

// Invert maps p back: (p - offset) / scale.
func (f Fit) Invert(p geometry.Point) geometry.Point {
	return geometry.Point{X: (p.X - f.OffsetX) / f.Scale, Y: (p.Y - f.OffsetY) / f.Scale}
}

// needsQuarterTurn reports whether a landscape frame is shown in a portrait
// view.
func needsQuarterTurn(frame, view PixelSpace) bool {
	return frame.Landscape() && view.Portrait()
}

// FrameToView maps a quad from sensor-frame pixels into a preview view.
// A landscape frame shown in a portrait view is first turned by rot; the
// result is then scaled under fit and centred.
func FrameToView(q geometry.Quad, frame, view PixelSpace, fit FitMode, rot Rotation) (geometry.Quad, error) {
	if err := validatePair(frame, view); err != nil {
		return geometry.Quad{}, err
	}

	src := frame
	turn := needsQuarterTurn(frame, view)
	if turn {
		src = frame.Transposed()
	}
	f := ComputeFit(src.Width, src.Height, view.Width, view.Height, fit)

	out := q.Map(func(p geometry.Point) geometry.Point {
		if turn {
			p = rotatePoint(p, frame.Width, frame.Height, rot)
		}
		return f.Apply(p)
	})
	return geometry.Order(out), nil
}

// ViewToFrame is the inverse of FrameToView.
func ViewToFrame(q geometry.Quad, view, frame PixelSpace, fit FitMode, rot Rotation) (geometry.Quad, error) {
	if err := validatePair(view, frame); err != nil {
		return geometry.Quad{}, err
	}

	src := frame
	turn := needsQuarterTurn(frame, view)
	if turn {
		src = frame.Transposed()
	}
	f := ComputeFit(src.Width, src.Height, view.Width, view.Height, fit)

	out := q.Map(func(p geometry.Point) geometry.Point {
		p = f.Invert(p)
		if turn {
			p = unrotatePoint(p, frame.Width, frame.Height, rot)
		}
		return p
	})
	return geometry.Order(out), nil
}

func validatePair(a, b PixelSpace) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return b.Validate()
}
