package imaging

import (
	"image"
	"math"
)

// canny performs Canny edge detection on an already smoothed grayscale image.
//
// Unlike the classic formulation it does not blur internally; callers run
// GaussianBlur first so the two stages can be tuned independently.
//
// # Algorithm
//
//  1. Gradient computation: 3x3 Sobel operators on the 0-255 intensity scale,
//     magnitude = sqrt(Gx² + Gy²), direction = atan2(Gy, Gx)
//
//  2. Non-maximum suppression: keep only local maxima along the gradient
//     direction, quantised to 4 sectors
//
//  3. Hysteresis: pixels >= high are strong edges; pixels in [low, high) are
//     kept only when 8-connected (transitively) to a strong edge
//
// Returns a binary image with edges at 255 and background at 0.
func canny(gray *image.Gray, low, high float64) *image.Gray {
	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width < 3 || height < 3 {
		return out
	}

	src := gray
	if bounds.Min != (image.Point{}) {
		src = toGray(gray)
	}
	at := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return float64(src.Pix[y*src.Stride+x])
	}

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			angle := direction[i]
			mag := magnitude[i]

			var n1, n2 float64
			if (angle >= -math.Pi/8 && angle < math.Pi/8) || (angle >= 7*math.Pi/8 || angle < -7*math.Pi/8) {
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			} else if (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8) {
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			} else if (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8) {
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			} else {
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}

	// Hysteresis: grow strong edges through weak neighbours
	stack := make([]int, 0, width)
	for i, v := range suppressed {
		if v >= high && out.Pix[i/width*out.Stride+i%width] == 0 {
			out.Pix[i/width*out.Stride+i%width] = 255
			stack = append(stack, i)
		}
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jx, jy := j%width, j/width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := jx+dx, jy+dy
					if nx < 0 || ny < 0 || nx >= width || ny >= height {
						continue
					}
					k := ny*width + nx
					if suppressed[k] >= low && out.Pix[ny*out.Stride+nx] == 0 {
						out.Pix[ny*out.Stride+nx] = 255
						stack = append(stack, k)
					}
				}
			}
		}
	}

	return out
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
