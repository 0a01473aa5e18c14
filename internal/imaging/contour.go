package imaging

import (
	"image"
	"sort"
)

// minContourPixels discards edge fragments too small to outline anything.
const minContourPixels = 10

// findContours groups the non-zero pixels of a binary edge map into
// 8-connected components and returns one contour per component.
//
// Each component is simplified to its convex hull, which keeps only the
// corner vertices of straight runs. Components smaller than minContourPixels
// are discarded as noise. The result is a flat list with no nesting
// information.
func findContours(edges *image.Gray) []Contour {
	bounds := edges.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	src := edges
	if bounds.Min != (image.Point{}) {
		src = toGray(edges)
	}
	isEdge := func(x, y int) bool {
		return src.Pix[y*src.Stride+x] != 0
	}

	visited := make([]bool, width*height)
	contours := make([]Contour, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !isEdge(x, y) || visited[y*width+x] {
				continue
			}
			component := floodFill(isEdge, visited, x, y, width, height)
			if len(component) < minContourPixels {
				continue
			}
			contours = append(contours, NewContour(convexHull(component)))
		}
	}

	return contours
}

// floodFill performs iterative flood-fill from a starting point.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow
// on large contours. Marks visited pixels and returns them.
// Uses 8-connectivity (includes diagonal neighbors).
func floodFill(isEdge func(x, y int) bool, visited []bool, startX, startY, width, height int) []image.Point {
	var component []image.Point
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y*width+p.X] || !isEdge(p.X, p.Y) {
			continue
		}

		visited[p.Y*width+p.X] = true
		component = append(component, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}

	return component
}

// convexHull returns the hull of pts in counter-clockwise order using
// Andrew's monotone chain. Collinear points are dropped.
func convexHull(pts []image.Point) []image.Point {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]image.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b image.Point) int {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	hull := make([]image.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}
