package detection

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

// Result is one frame's best-guess document boundary.
type Result struct {
	// Quad is ordered [TL, TR, BR, BL] in Space.
	Quad geometry.Quad `json:"quad"`

	// Space is the pixel space of the analysed buffer.
	Space transform.PixelSpace `json:"space"`

	// Timestamp is when the analysed frame was captured.
	Timestamp time.Time `json:"timestamp"`
}

// Options holds the detection pipeline thresholds.
type Options struct {
	// Scale is the downscale factor applied before analysis.
	Scale float64 `validate:"gt=0,lte=1"`

	// MorphSize is the elliptical structuring element size for open/close.
	MorphSize int `validate:"gte=1"`

	// BlurSize is the Gaussian kernel size.
	BlurSize int `validate:"gte=1"`

	// CannyLow and CannyHigh are the hysteresis thresholds.
	CannyLow  float64 `validate:"gte=0"`
	CannyHigh float64 `validate:"gtfield=CannyLow"`

	// MinAreaRatio is the smallest bounding-rect area accepted, as a
	// fraction of the scaled frame area.
	MinAreaRatio float64 `validate:"gte=0,lte=1"`

	// MinAspect and MaxAspect bound the long/short side ratio.
	MinAspect float64 `validate:"gte=1"`
	MaxAspect float64 `validate:"gtefield=MinAspect"`

	// ContourWeight and RectWeight weight the candidate score.
	ContourWeight float64 `validate:"gte=0"`
	RectWeight    float64 `validate:"gte=0"`
}

// DefaultOptions returns the thresholds tuned for phone-camera frames.
func DefaultOptions() Options {
	return Options{
		Scale:         0.25,
		MorphSize:     3,
		BlurSize:      5,
		CannyLow:      60,
		CannyHigh:     140,
		MinAreaRatio:  0.08,
		MinAspect:     1.2,
		MaxAspect:     2.3,
		ContourWeight: 0.7,
		RectWeight:    0.3,
	}
}

var validate = validator.New()

// Validate checks that every threshold is in range.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid detection options: %w", err)
	}
	return nil
}

// Detector runs the candidate pipeline on individual frames.
// It holds no per-frame state and is safe for concurrent use when its
// Kernels are.
type Detector struct {
	kernels imaging.Kernels
	opts    Options
	log     logrus.FieldLogger
}

// NewDetector creates a Detector. A nil kernels selects
// imaging.DefaultKernels and a nil log selects the standard logger.
func NewDetector(kernels imaging.Kernels, opts Options, log logrus.FieldLogger) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if kernels == nil {
		kernels = imaging.DefaultKernels()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Detector{kernels: kernels, opts: opts, log: log.WithField("component", "detector")}, nil
}

// Options returns the thresholds the detector was built with.
func (d *Detector) Options() Options {
	return d.opts
}

// DetectRaw analyses a packed pixel buffer of width x height with 1, 3 or
// 4 channels. A buffer shorter than width*height*channels yields nil.
func (d *Detector) DetectRaw(buf []byte, width, height, channels int, ts time.Time) *Result {
	if width <= 0 || height <= 0 || len(buf) < width*height*channels {
		return nil
	}
	img, err := imaging.DecodeRaw(buf, width, height, channels)
	if err != nil {
		d.log.WithError(err).Debug("frame dropped")
		return nil
	}
	return d.Detect(img, ts)
}

// Detect analyses img and returns the best candidate quad in img's pixel
// space, or nil when no candidate survives or any stage fails.
func (d *Detector) Detect(img image.Image, ts time.Time) (res *Result) {
	if img == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Debug("frame dropped")
			res = nil
		}
	}()

	quad, ok, err := d.detect(img)
	if err != nil {
		d.log.WithError(err).Debug("frame dropped")
		return nil
	}
	if !ok {
		return nil
	}

	b := img.Bounds()
	return &Result{
		Quad:      quad,
		Space:     transform.Space(transform.KindFrame, float64(b.Dx()), float64(b.Dy())),
		Timestamp: ts,
	}
}

func (d *Detector) detect(img image.Image) (geometry.Quad, bool, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return geometry.Quad{}, false, nil
	}

	scaledW := max(1, int(math.Round(float64(width)*d.opts.Scale)))
	scaledH := max(1, int(math.Round(float64(height)*d.opts.Scale)))
	ratioX := float64(width) / float64(scaledW)
	ratioY := float64(height) / float64(scaledH)

	small, err := d.kernels.Resize(img, scaledW, scaledH)
	if err != nil {
		return geometry.Quad{}, false, fmt.Errorf("resize: %w", err)
	}
	gray, err := d.kernels.Grayscale(small)
	if err != nil {
		return geometry.Quad{}, false, fmt.Errorf("grayscale: %w", err)
	}
	if gray, err = d.kernels.EqualizeHist(gray); err != nil {
		return geometry.Quad{}, false, fmt.Errorf("equalize: %w", err)
	}
	if gray, err = d.kernels.MorphOpen(gray, d.opts.MorphSize); err != nil {
		return geometry.Quad{}, false, fmt.Errorf("open: %w", err)
	}
	if gray, err = d.kernels.MorphClose(gray, d.opts.MorphSize); err != nil {
		return geometry.Quad{}, false, fmt.Errorf("close: %w", err)
	}
	if gray, err = d.kernels.GaussianBlur(gray, d.opts.BlurSize); err != nil {
		return geometry.Quad{}, false, fmt.Errorf("blur: %w", err)
	}
	edges, err := d.kernels.Canny(gray, d.opts.CannyLow, d.opts.CannyHigh)
	if err != nil {
		return geometry.Quad{}, false, fmt.Errorf("canny: %w", err)
	}
	contours, err := d.kernels.FindContours(edges)
	if err != nil {
		return geometry.Quad{}, false, fmt.Errorf("contours: %w", err)
	}

	best, ok := SelectCandidate(contours, scaledW, scaledH, d.opts)
	if !ok {
		return geometry.Quad{}, false, nil
	}

	r := best.Rect
	quad := geometry.RectQuad(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	quad = quad.Map(func(p geometry.Point) geometry.Point { return p.ScaleXY(ratioX, ratioY) })
	return geometry.Order(quad), true, nil
}
