package rectify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// OutputSize returns the rectified dimensions for an ordered quad: the
// longer of each pair of opposite edges, rounded, never below 1.
func OutputSize(q geometry.Quad) (width, height int) {
	tl, tr, br, bl := q[geometry.TopLeft], q[geometry.TopRight], q[geometry.BottomRight], q[geometry.BottomLeft]
	w := math.Max(geometry.Distance(tl, tr), geometry.Distance(bl, br))
	h := math.Max(geometry.Distance(tl, bl), geometry.Distance(tr, br))
	return max(1, int(math.Round(w))), max(1, int(math.Round(h)))
}

// Homography computes the projective matrix mapping each src corner onto
// the matching dst corner.
//
// With h22 fixed to 1 the four correspondences give eight equations
//
//	x' = (h00 X + h01 Y + h02) / (h20 X + h21 Y + 1)
//	y' = (h10 X + h11 Y + h12) / (h20 X + h21 Y + 1)
//
// which are solved by LU decomposition. Degenerate corners (three or more
// collinear) make the system singular and return an error.
func Homography(src, dst geometry.Quad) (imaging.Matrix3, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i

		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)

		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var lu mat.LU
	lu.Factorize(a)

	var h mat.VecDense
	if err := lu.SolveVecTo(&h, false, b); err != nil {
		return imaging.Matrix3{}, fmt.Errorf("solve homography: %w", err)
	}

	m := imaging.Matrix3{
		h.AtVec(0), h.AtVec(1), h.AtVec(2),
		h.AtVec(3), h.AtVec(4), h.AtVec(5),
		h.AtVec(6), h.AtVec(7), 1,
	}
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return imaging.Matrix3{}, fmt.Errorf("solve homography: non-finite coefficient")
		}
	}
	return m, nil
}

// targetQuad is the upright destination rectangle for a width x height
// output: [(0,0), (w-1,0), (w-1,h-1), (0,h-1)]. A 1-pixel side keeps an
// extent of 1 so the solve stays non-singular; its single row or column
// samples the quad's leading edge.
func targetQuad(width, height int) geometry.Quad {
	w := math.Max(float64(width-1), 1)
	h := math.Max(float64(height-1), 1)
	return geometry.Quad{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}
