package transform

import (
	"fmt"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

// ImageToView maps a quad from image pixels into a view's content box,
// scaling to contain and centring the image.
func ImageToView(q geometry.Quad, img, view PixelSpace) (geometry.Quad, error) {
	if err := validatePair(img, view); err != nil {
		return geometry.Quad{}, err
	}
	f := ComputeFit(img.Width, img.Height, view.Width, view.Height, FitContain)
	return geometry.Order(q.Map(f.Apply)), nil
}

// ViewToImage is the inverse of ImageToView. Points in the letterbox bars
// map outside the image and are clamped to its bounds.
func ViewToImage(q geometry.Quad, view, img PixelSpace) (geometry.Quad, error) {
	if err := validatePair(view, img); err != nil {
		return geometry.Quad{}, err
	}
	f := ComputeFit(img.Width, img.Height, view.Width, view.Height, FitContain)
	out := ClampToBox(q.Map(f.Invert), img)
	return geometry.Order(out), nil
}

// ClampToBox constrains every corner of q to [0, W] x [0, H] of s.
func ClampToBox(q geometry.Quad, s PixelSpace) geometry.Quad {
	return q.Map(func(p geometry.Point) geometry.Point {
		return geometry.ClampPoint(p, 0, 0, s.Width, s.Height)
	})
}

// FitQuad maps q between two spaces with a uniform fit and no rotation.
//
// The fit is always computed from the lower-ranked space into the higher
// one (see spaceLess) and inverted when mapping the other way, so
// FitQuad(FitQuad(q, a, b), b, a) returns q.
func FitQuad(q geometry.Quad, from, to PixelSpace, fit FitMode) (geometry.Quad, error) {
	if err := validatePair(from, to); err != nil {
		return geometry.Quad{}, err
	}
	if spaceLess(to, from) {
		f := ComputeFit(to.Width, to.Height, from.Width, from.Height, fit)
		return geometry.Order(q.Map(f.Invert)), nil
	}
	f := ComputeFit(from.Width, from.Height, to.Width, to.Height, fit)
	return geometry.Order(q.Map(f.Apply)), nil
}

var kindRank = map[SpaceKind]int{
	KindFrame:   0,
	KindPreview: 1,
	KindPhoto:   2,
	KindDisplay: 3,
	KindEdit:    4,
}

// spaceLess orders spaces by kind, then width, then height.
func spaceLess(a, b PixelSpace) bool {
	if ra, rb := kindRank[a.Kind], kindRank[b.Kind]; ra != rb {
		return ra < rb
	}
	if a.Width != b.Width {
		return a.Width < b.Width
	}
	return a.Height < b.Height
}

// Mapper dispatches quad conversions between pixel spaces based on their
// kinds.
type Mapper struct {
	// PreviewRotation turns a landscape frame upright in a portrait preview.
	PreviewRotation Rotation

	// DisplayRotation turns a photo upright when its display space is
	// transposed.
	DisplayRotation Rotation
}

// DefaultMapper turns sideways content counter-clockwise in both cases.
var DefaultMapper = Mapper{PreviewRotation: RotateCCW, DisplayRotation: RotateCCW}

// MapQuad converts q from one pixel space to another using DefaultMapper.
func MapQuad(q geometry.Quad, from, to PixelSpace, fit FitMode) (geometry.Quad, error) {
	return DefaultMapper.MapQuad(q, from, to, fit)
}

// MapQuad converts q from one pixel space to another.
//
//	frame   -> preview/edit  FrameToView
//	preview/edit -> frame    ViewToFrame
//	photo   -> display       ImageToDisplay
//	display -> photo         DisplayToImage
//	photo/display -> edit    ImageToView
//	edit -> photo/display    ViewToImage
//
// Any other pair is mapped with FitQuad, whose reverse direction inverts
// the forward fit.
func (m Mapper) MapQuad(q geometry.Quad, from, to PixelSpace, fit FitMode) (geometry.Quad, error) {
	if err := q.Validate(); err != nil {
		return geometry.Quad{}, err
	}
	if from.Same(to) {
		if err := from.Validate(); err != nil {
			return geometry.Quad{}, err
		}
		return geometry.Order(q), nil
	}

	var (
		out geometry.Quad
		err error
	)
	switch {
	case from.Kind == KindFrame && (to.Kind == KindPreview || to.Kind == KindEdit):
		out, err = FrameToView(q, from, to, fit, m.PreviewRotation)
	case (from.Kind == KindPreview || from.Kind == KindEdit) && to.Kind == KindFrame:
		out, err = ViewToFrame(q, from, to, fit, m.PreviewRotation)
	case from.Kind == KindPhoto && to.Kind == KindDisplay:
		out, err = ImageToDisplay(q, from, to, m.DisplayRotation)
	case from.Kind == KindDisplay && to.Kind == KindPhoto:
		out, err = DisplayToImage(q, from, to, m.DisplayRotation)
	case isImage(from.Kind) && to.Kind == KindEdit:
		out, err = ImageToView(q, from, to)
	case from.Kind == KindEdit && isImage(to.Kind):
		out, err = ViewToImage(q, from, to)
	default:
		out, err = FitQuad(q, from, to, fit)
	}
	if err != nil {
		return geometry.Quad{}, fmt.Errorf("map %s -> %s: %w", from.Kind, to.Kind, err)
	}
	return out, nil
}

func isImage(k SpaceKind) bool {
	return k == KindPhoto || k == KindDisplay
}
