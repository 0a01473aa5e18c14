package imaging

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// ErrSingularMatrix is returned when a perspective matrix cannot be inverted.
var ErrSingularMatrix = errors.New("singular perspective matrix")

// Kernels is the capability set the pipeline needs from an image-processing
// library. Every method returns a new image and leaves its input untouched.
type Kernels interface {
	// Resize scales img to exactly width x height with linear filtering.
	Resize(img image.Image, width, height int) (image.Image, error)

	// Grayscale converts img to 8-bit luminance.
	Grayscale(img image.Image) (*image.Gray, error)

	// EqualizeHist spreads the intensity histogram over the full 0-255 range.
	EqualizeHist(gray *image.Gray) (*image.Gray, error)

	// MorphOpen applies erosion then dilation with a size x size elliptical
	// structuring element.
	MorphOpen(gray *image.Gray, size int) (*image.Gray, error)

	// MorphClose applies dilation then erosion with a size x size elliptical
	// structuring element.
	MorphClose(gray *image.Gray, size int) (*image.Gray, error)

	// GaussianBlur smooths gray with a ksize x ksize Gaussian kernel.
	GaussianBlur(gray *image.Gray, ksize int) (*image.Gray, error)

	// Canny returns a binary edge map (0 or 255) using the two hysteresis
	// thresholds on the 0-255 intensity scale.
	Canny(gray *image.Gray, low, high float64) (*image.Gray, error)

	// FindContours lists every contour of a binary edge map with no
	// hierarchy, each carrying its bounding rectangle and enclosed area.
	FindContours(edges *image.Gray) ([]Contour, error)

	// WarpPerspective maps src through the forward matrix m into a
	// width x height image using bilinear sampling. Destination pixels whose
	// source falls outside src are filled with border.
	WarpPerspective(src image.Image, m Matrix3, width, height int, border color.Color) (image.Image, error)

	// RotateRightAngle rotates img clockwise by 0, 90, 180 or 270 degrees.
	RotateRightAngle(img image.Image, degrees int) (image.Image, error)
}

// Contour is one traced outline from an edge map.
type Contour struct {
	// Points are the contour vertices in edge-map pixel space.
	Points []image.Point

	// Rect is the axis-aligned bounding rectangle (Max exclusive).
	Rect image.Rectangle

	// Area is the area enclosed by the contour in square pixels.
	Area float64
}

// NewContour builds a Contour from its vertices, computing the bounding
// rectangle and enclosed area.
func NewContour(pts []image.Point) Contour {
	return Contour{
		Points: pts,
		Rect:   BoundingRect(pts),
		Area:   ContourArea(pts),
	}
}

// BoundingRect returns the smallest rectangle containing every point, with
// an exclusive Max in the image.Rectangle convention.
func BoundingRect(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

// ContourArea returns the absolute shoelace area of the polygon pts.
func ContourArea(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum int
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// Matrix3 is a row-major 3x3 projective matrix.
type Matrix3 [9]float64

// Identity3 is the identity transform.
var Identity3 = Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Apply maps (x, y) through m. ok is false when the point maps to infinity.
func (m Matrix3) Apply(x, y float64) (float64, float64, bool) {
	w := m[6]*x + m[7]*y + m[8]
	if w == 0 {
		return 0, 0, false
	}
	return (m[0]*x + m[1]*y + m[2]) / w, (m[3]*x + m[4]*y + m[5]) / w, true
}

// Inverse returns the inverse of m via the adjugate.
func (m Matrix3) Inverse() (Matrix3, error) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	A := e*i - f*h
	B := -(d*i - f*g)
	C := d*h - e*g
	det := a*A + b*B + c*C
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Matrix3{}, ErrSingularMatrix
	}

	inv := Matrix3{
		A, -(b*i - c*h), b*f - c*e,
		B, a*i - c*g, -(a*f - c*d),
		C, -(a*h - b*g), a*e - b*d,
	}
	for k := range inv {
		inv[k] /= det
	}
	return inv, nil
}

// toGray copies any image into a fresh *image.Gray anchored at (0,0).
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
