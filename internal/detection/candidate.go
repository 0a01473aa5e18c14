package detection

import (
	"image"

	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// Candidate is a contour that passed the area and aspect filters.
type Candidate struct {
	// Rect is the contour's bounding rectangle in scaled-frame pixels.
	Rect image.Rectangle

	// ContourArea is the area enclosed by the contour.
	ContourArea float64

	// Score is ContourWeight*ContourArea + RectWeight*rect area.
	Score float64
}

// SelectCandidate scores contours from a width x height edge map and
// returns the best one. ok is false when nothing survives the filters.
//
// Ties keep the earlier contour, so results are deterministic for a given
// contour order.
func SelectCandidate(contours []imaging.Contour, width, height int, opts Options) (best Candidate, ok bool) {
	minArea := opts.MinAreaRatio * float64(width*height)

	for _, c := range contours {
		w := c.Rect.Dx()
		h := c.Rect.Dy()
		if w <= 0 || h <= 0 {
			continue
		}

		rectArea := float64(w * h)
		if rectArea < minArea {
			continue
		}

		aspect := aspectRatio(w, h)
		if aspect < opts.MinAspect || aspect > opts.MaxAspect {
			continue
		}

		score := opts.ContourWeight*c.Area + opts.RectWeight*rectArea
		if !ok || score > best.Score {
			best = Candidate{Rect: c.Rect, ContourArea: c.Area, Score: score}
			ok = true
		}
	}
	return best, ok
}

// aspectRatio returns long side over short side.
func aspectRatio(w, h int) float64 {
	if w < h {
		w, h = h, w
	}
	return float64(w) / float64(h)
}
