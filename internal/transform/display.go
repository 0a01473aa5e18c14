package transform

import (
	"math"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

// SwapTolerance is how far, in pixels, swapped dimensions may differ and
// still count as a 90° rotation between photo and display space.
const SwapTolerance = 2.0

// Swapped reports whether b is a (near) transpose of a. Spaces that also
// match untransposed, such as squares, are not considered swapped.
func Swapped(a, b PixelSpace) bool {
	if near(a.Width, b.Width) && near(a.Height, b.Height) {
		return false
	}
	return near(a.Width, b.Height) && near(a.Height, b.Width)
}

func near(a, b float64) bool { return math.Abs(a-b) <= SwapTolerance }

// Corner indices that must end up as top-left and bottom-left after a
// photo -> display mapping, keyed by rotation. Without rotation the input
// labelling is kept.
func displayCorners(swapped bool, rot Rotation) (tl, bl int) {
	switch {
	case !swapped:
		return int(geometry.TopLeft), int(geometry.BottomLeft)
	case rot == RotateCW:
		return int(geometry.BottomLeft), int(geometry.BottomRight)
	default:
		return int(geometry.TopRight), int(geometry.TopLeft)
	}
}

// And the reverse direction, display -> photo.
func imageCorners(swapped bool, rot Rotation) (tl, bl int) {
	switch {
	case !swapped:
		return int(geometry.TopLeft), int(geometry.BottomLeft)
	case rot == RotateCW:
		return int(geometry.TopRight), int(geometry.TopLeft)
	default:
		return int(geometry.BottomLeft), int(geometry.BottomRight)
	}
}

// ImageToDisplay maps a quad from raw photo pixels into the display space
// the photo is rendered in after EXIF orientation.
//
// When the spaces are transposed (within SwapTolerance) the quad is turned
// by rot, otherwise it is scaled per axis. Corner labels of q are taken as
// given; if the mapped top-left lands below the mapped bottom-left an
// extra vertical inversion is assumed and undone.
func ImageToDisplay(q geometry.Quad, photo, display PixelSpace, rot Rotation) (geometry.Quad, error) {
	if err := validatePair(photo, display); err != nil {
		return geometry.Quad{}, err
	}

	swapped := Swapped(photo, display)
	var out geometry.Quad
	if swapped {
		sx := display.Width / photo.Height
		sy := display.Height / photo.Width
		out = q.Map(func(p geometry.Point) geometry.Point {
			return rotatePoint(p, photo.Width, photo.Height, rot).ScaleXY(sx, sy)
		})
	} else {
		sx := display.Width / photo.Width
		sy := display.Height / photo.Height
		out = q.Map(func(p geometry.Point) geometry.Point { return p.ScaleXY(sx, sy) })
	}

	tl, bl := displayCorners(swapped, rot)
	out = fixVerticalFlip(out, tl, bl, display.Height)
	return geometry.Order(out), nil
}

// DisplayToImage is the inverse of ImageToDisplay.
func DisplayToImage(q geometry.Quad, display, photo PixelSpace, rot Rotation) (geometry.Quad, error) {
	if err := validatePair(display, photo); err != nil {
		return geometry.Quad{}, err
	}

	swapped := Swapped(photo, display)
	var out geometry.Quad
	if swapped {
		sx := photo.Height / display.Width
		sy := photo.Width / display.Height
		out = q.Map(func(p geometry.Point) geometry.Point {
			return unrotatePoint(p.ScaleXY(sx, sy), photo.Width, photo.Height, rot)
		})
	} else {
		sx := photo.Width / display.Width
		sy := photo.Height / display.Height
		out = q.Map(func(p geometry.Point) geometry.Point { return p.ScaleXY(sx, sy) })
	}

	tl, bl := imageCorners(swapped, rot)
	out = fixVerticalFlip(out, tl, bl, photo.Height)
	return geometry.Order(out), nil
}

func fixVerticalFlip(q geometry.Quad, tl, bl int, height float64) geometry.Quad {
	if q[tl].Y <= q[bl].Y {
		return q
	}
	return q.Map(func(p geometry.Point) geometry.Point {
		return geometry.Point{X: p.X, Y: height - p.Y}
	})
}
