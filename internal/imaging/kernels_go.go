package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
)

// GoKernels implements Kernels in pure Go using bild for filtering and
// disintegration/imaging for geometric operations.
type GoKernels struct{}

// NewGoKernels returns the pure-Go kernel set.
func NewGoKernels() *GoKernels {
	return &GoKernels{}
}

var _ Kernels = (*GoKernels)(nil)

// Resize scales img with bilinear resampling.
func (GoKernels) Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resize target %dx%d", width, height)
	}
	return transform.Resize(img, width, height, transform.Linear), nil
}

// Grayscale converts img to luminance.
func (GoKernels) Grayscale(img image.Image) (*image.Gray, error) {
	return toGray(effect.Grayscale(img)), nil
}

// EqualizeHist remaps intensities through the normalised cumulative
// histogram, matching the OpenCV definition:
//
//	dst(p) = round((cdf(src(p)) - cdfMin) / (N - cdfMin) * 255)
//
// A uniform image is returned unchanged.
func (GoKernels) EqualizeHist(gray *image.Gray) (*image.Gray, error) {
	b := gray.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return toGray(gray), nil
	}

	hist := histogram.NewRGBAHistogram(gray)
	bins := hist.R.Bins

	var lut [256]uint8
	cdf, cdfMin := 0, 0
	for v := 0; v < len(bins) && v < 256; v++ {
		if cdfMin == 0 && bins[v] > 0 {
			cdfMin = bins[v]
		}
		cdf += bins[v]
		if total == cdfMin {
			lut[v] = uint8(v)
			continue
		}
		scaled := float64(cdf-cdfMin) / float64(total-cdfMin) * 255
		lut[v] = uint8(math.Round(math.Max(0, math.Min(255, scaled))))
	}

	out := toGray(gray)
	for i, v := range out.Pix {
		out.Pix[i] = lut[v]
	}
	return out, nil
}

// MorphOpen is erosion followed by dilation with a circular element.
func (GoKernels) MorphOpen(gray *image.Gray, size int) (*image.Gray, error) {
	r := morphRadius(size)
	return toGray(effect.Dilate(effect.Erode(gray, r), r)), nil
}

// MorphClose is dilation followed by erosion with a circular element.
func (GoKernels) MorphClose(gray *image.Gray, size int) (*image.Gray, error) {
	r := morphRadius(size)
	return toGray(effect.Erode(effect.Dilate(gray, r), r)), nil
}

// GaussianBlur smooths gray with a kernel whose radius covers ksize pixels.
func (GoKernels) GaussianBlur(gray *image.Gray, ksize int) (*image.Gray, error) {
	if ksize < 3 {
		return toGray(gray), nil
	}
	return toGray(blur.Gaussian(gray, float64(ksize-1)/2)), nil
}

// Canny runs Sobel gradients, non-maximum suppression and hysteresis.
func (GoKernels) Canny(gray *image.Gray, low, high float64) (*image.Gray, error) {
	if low > high {
		low, high = high, low
	}
	return canny(gray, low, high), nil
}

// FindContours traces connected edge components.
func (GoKernels) FindContours(edges *image.Gray) ([]Contour, error) {
	return findContours(edges), nil
}

// WarpPerspective samples src through the inverse of m.
func (GoKernels) WarpPerspective(src image.Image, m Matrix3, width, height int, border color.Color) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid warp target %dx%d", width, height)
	}
	inv, err := m.Inverse()
	if err != nil {
		return nil, err
	}
	return warpBilinear(imaging.Clone(src), inv, width, height, border), nil
}

// RotateRightAngle rotates clockwise by a multiple of 90 degrees.
//
// disintegration/imaging rotates counter-clockwise, so a clockwise quarter
// turn is its Rotate270.
func (GoKernels) RotateRightAngle(img image.Image, degrees int) (image.Image, error) {
	switch normalizeDegrees(degrees) {
	case 0:
		return imaging.Clone(img), nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	}
	return nil, fmt.Errorf("rotation must be a multiple of 90 degrees, got %d", degrees)
}

// warpBilinear fills a width x height image by mapping each destination
// pixel through inv into src and interpolating the four neighbours.
func warpBilinear(src *image.NRGBA, inv Matrix3, width, height int, border color.Color) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	fill := color.NRGBAModel.Convert(border).(color.NRGBA)

	sw := src.Rect.Dx()
	sh := src.Rect.Dy()
	const eps = 1e-9

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := y*dst.Stride + x*4
			sx, sy, ok := inv.Apply(float64(x), float64(y))
			if !ok || sx < -eps || sy < -eps || sx > float64(sw-1)+eps || sy > float64(sh-1)+eps {
				dst.Pix[off+0] = fill.R
				dst.Pix[off+1] = fill.G
				dst.Pix[off+2] = fill.B
				dst.Pix[off+3] = fill.A
				continue
			}

			sx = math.Max(0, math.Min(float64(sw-1), sx))
			sy = math.Max(0, math.Min(float64(sh-1), sy))
			x0 := int(math.Floor(sx))
			y0 := int(math.Floor(sy))
			x1 := clamp(x0+1, 0, sw-1)
			y1 := clamp(y0+1, 0, sh-1)
			fx := sx - float64(x0)
			fy := sy - float64(y0)

			p00 := y0*src.Stride + x0*4
			p10 := y0*src.Stride + x1*4
			p01 := y1*src.Stride + x0*4
			p11 := y1*src.Stride + x1*4
			for c := 0; c < 4; c++ {
				top := float64(src.Pix[p00+c])*(1-fx) + float64(src.Pix[p10+c])*fx
				bottom := float64(src.Pix[p01+c])*(1-fx) + float64(src.Pix[p11+c])*fx
				dst.Pix[off+c] = uint8(math.Round(top*(1-fy) + bottom*fy))
			}
		}
	}
	return dst
}

func morphRadius(size int) float64 {
	if size < 3 {
		return 1
	}
	return float64(size-1) / 2
}

func normalizeDegrees(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}
