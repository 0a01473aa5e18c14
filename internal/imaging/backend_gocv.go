//go:build gocv

package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Backend names the kernel implementation compiled into this binary.
const Backend = "gocv"

// DefaultKernels returns the OpenCV-backed kernel set.
func DefaultKernels() Kernels {
	return NewCVKernels()
}

// CVKernels implements Kernels with OpenCV through gocv. Every Mat created
// inside a call is closed before the call returns, on success or failure.
type CVKernels struct{}

// NewCVKernels returns the OpenCV kernel set.
func NewCVKernels() *CVKernels {
	return &CVKernels{}
}

var _ Kernels = (*CVKernels)(nil)

func (CVKernels) Resize(img image.Image, width, height int) (image.Image, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return dst.ToImage()
}

func (CVKernels) Grayscale(img image.Image) (*image.Gray, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	return matToGray(gray)
}

func (CVKernels) EqualizeHist(gray *image.Gray) (*image.Gray, error) {
	return grayOp(gray, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.EqualizeHist(src, dst)
	})
}

func (CVKernels) MorphOpen(gray *image.Gray, size int) (*image.Gray, error) {
	return morph(gray, size, gocv.MorphOpen)
}

func (CVKernels) MorphClose(gray *image.Gray, size int) (*image.Gray, error) {
	return morph(gray, size, gocv.MorphClose)
}

func (CVKernels) GaussianBlur(gray *image.Gray, ksize int) (*image.Gray, error) {
	return grayOp(gray, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.GaussianBlur(src, dst, image.Pt(ksize, ksize), 0, 0, gocv.BorderDefault)
	})
}

func (CVKernels) Canny(gray *image.Gray, low, high float64) (*image.Gray, error) {
	return grayOp(gray, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Canny(src, dst, float32(low), float32(high))
	})
}

func (CVKernels) FindContours(edges *image.Gray) ([]Contour, error) {
	src, err := gocv.ImageGrayToMatGray(edges)
	if err != nil {
		return nil, fmt.Errorf("failed to convert edge map: %w", err)
	}
	defer src.Close()

	found := gocv.FindContours(src, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer found.Close()

	contours := make([]Contour, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		pv := found.At(i)
		contours = append(contours, Contour{
			Points: pv.ToPoints(),
			Rect:   gocv.BoundingRect(pv),
			Area:   gocv.ContourArea(pv),
		})
	}
	return contours, nil
}

func (CVKernels) WarpPerspective(src image.Image, m Matrix3, width, height int, border color.Color) (image.Image, error) {
	in, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer in.Close()

	mat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer mat.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			mat.SetDoubleAt(r, c, m[r*3+c])
		}
	}

	out := gocv.NewMat()
	defer out.Close()
	fill := color.RGBAModel.Convert(border).(color.RGBA)
	gocv.WarpPerspectiveWithParams(in, &out, mat, image.Pt(width, height),
		gocv.InterpolationLinear, gocv.BorderConstant, fill)
	if out.Empty() {
		return nil, fmt.Errorf("warp produced an empty image")
	}
	return out.ToImage()
}

func (CVKernels) RotateRightAngle(img image.Image, degrees int) (image.Image, error) {
	var code gocv.RotateFlag
	switch normalizeDegrees(degrees) {
	case 0:
		return img, nil
	case 90:
		code = gocv.Rotate90Clockwise
	case 180:
		code = gocv.Rotate180Clockwise
	case 270:
		code = gocv.Rotate90CounterClockwise
	default:
		return nil, fmt.Errorf("rotation must be a multiple of 90 degrees, got %d", degrees)
	}

	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Rotate(src, &dst, code)
	return dst.ToImage()
}

func morph(gray *image.Gray, size int, op gocv.MorphType) (*image.Gray, error) {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
	defer kernel.Close()
	return grayOp(gray, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.MorphologyEx(src, dst, op, kernel)
	})
}

// grayOp runs a single-channel OpenCV operation on gray.
func grayOp(gray *image.Gray, op func(src gocv.Mat, dst *gocv.Mat)) (*image.Gray, error) {
	src, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	op(src, &dst)
	return matToGray(dst)
}

func matToGray(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty result matrix")
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, err
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	return toGray(img), nil
}
