// Package geometry provides the point and quadrilateral primitives shared by
// every stage of the document pipeline.
//
// Points carry no coordinate-space tag. Callers are responsible for never
// mixing points from different pixel spaces; the transform package is the
// only place where a point changes space.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("non-finite coordinate")

	// ErrPointCount is returned when a quad is built from anything other
	// than exactly four points.
	ErrPointCount = errors.New("quad requires exactly 4 points")
)

// Point is a floating-point pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale multiplies both coordinates by s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// ScaleXY multiplies X by sx and Y by sy.
func (p Point) ScaleXY(sx, sy float64) Point {
	return Point{X: p.X * sx, Y: p.Y * sy}
}

// IsFinite reports whether neither coordinate is NaN or infinite.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Lerp interpolates linearly from a towards b by t (t=0 yields a, t=1 yields b).
func Lerp(a, b Point, t float64) Point {
	return Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}

// Clamp constrains v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampPoint constrains p to the rectangle [minX,maxX] x [minY,maxY].
func ClampPoint(p Point, minX, minY, maxX, maxY float64) Point {
	return Point{X: Clamp(p.X, minX, maxX), Y: Clamp(p.Y, minY, maxY)}
}

// Corner indexes into a Quad.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomRight:
		return "bottom-right"
	case BottomLeft:
		return "bottom-left"
	}
	return fmt.Sprintf("corner(%d)", int(c))
}

// Quad holds four corners in canonical order [TL, TR, BR, BL] once it has
// passed through Order.
type Quad [4]Point

// NewQuad validates pts and returns them as an ordered quad.
func NewQuad(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, fmt.Errorf("%w: got %d", ErrPointCount, len(pts))
	}
	q := Quad{pts[0], pts[1], pts[2], pts[3]}
	if err := q.Validate(); err != nil {
		return Quad{}, err
	}
	return Order(q), nil
}

// RectQuad returns the ordered quad of the axis-aligned rectangle at (x,y)
// with size w x h.
func RectQuad(x, y, w, h float64) Quad {
	return Quad{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
	}
}

// Validate returns ErrNonFinite if any corner has a NaN or infinite coordinate.
func (q Quad) Validate() error {
	for i, p := range q {
		if !p.IsFinite() {
			return fmt.Errorf("%w: %s (%v, %v)", ErrNonFinite, Corner(i), p.X, p.Y)
		}
	}
	return nil
}

// Map applies f to every corner. The result is not re-ordered.
func (q Quad) Map(f func(Point) Point) Quad {
	var out Quad
	for i, p := range q {
		out[i] = f(p)
	}
	return out
}

// Points returns the corners as a slice.
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// Centroid is the mean of the four corners.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c = c.Add(p)
	}
	return c.Scale(0.25)
}

// Area returns the absolute shoelace area of the quad in its current order.
func (q Quad) Area() float64 {
	return math.Abs(PolygonArea(q[:]))
}

// Lerp interpolates corner by corner from a towards b.
func (q Quad) Lerp(b Quad, t float64) Quad {
	var out Quad
	for i := range q {
		out[i] = Lerp(q[i], b[i], t)
	}
	return out
}

// ApproxEqual reports whether every corner of q lies within tol of the
// matching corner of b on both axes.
func (q Quad) ApproxEqual(b Quad, tol float64) bool {
	for i := range q {
		if math.Abs(q[i].X-b[i].X) > tol || math.Abs(q[i].Y-b[i].Y) > tol {
			return false
		}
	}
	return true
}

// Order returns q re-ordered as [TL, TR, BR, BL] using the sum/difference
// heuristic: TL minimises x+y, BR maximises x+y, TR maximises x-y and BL
// minimises x-y.
//
// The heuristic is reliable for convex, roughly axis-aligned regions. When it
// assigns one input point to two corners (a quad rotated by about 45°) the
// points are instead sorted clockwise around their centroid starting from
// the minimum x+y point, so the result is always a permutation of q.
func Order(q Quad) Quad {
	tl, br, tr, bl := 0, 0, 0, 0
	for i, p := range q {
		if p.X+p.Y < q[tl].X+q[tl].Y {
			tl = i
		}
		if p.X+p.Y > q[br].X+q[br].Y {
			br = i
		}
		if p.X-p.Y > q[tr].X-q[tr].Y {
			tr = i
		}
		if p.X-p.Y < q[bl].X-q[bl].Y {
			bl = i
		}
	}

	seen := [4]bool{}
	for _, i := range []int{tl, tr, br, bl} {
		if seen[i] {
			return orderByAngle(q)
		}
		seen[i] = true
	}
	return Quad{q[tl], q[tr], q[br], q[bl]}
}

func orderByAngle(q Quad) Quad {
	c := q.Centroid()
	pts := q.Points()
	// y grows downward, so increasing atan2 walks clockwise on screen.
	sort.SliceStable(pts, func(i, j int) bool {
		return math.Atan2(pts[i].Y-c.Y, pts[i].X-c.X) < math.Atan2(pts[j].Y-c.Y, pts[j].X-c.X)
	})
	start := 0
	for i, p := range pts {
		if p.X+p.Y < pts[start].X+pts[start].Y {
			start = i
		}
	}
	var out Quad
	for i := range out {
		out[i] = pts[(start+i)%4]
	}
	return out
}

// PolygonArea returns the signed shoelace area of a closed polygon.
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return sum / 2
}
