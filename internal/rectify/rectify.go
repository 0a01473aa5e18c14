// Package rectify warps a quadrilateral region of an image into an upright
// rectangle and encodes the result.
//
// Rectification is a pure function of its inputs: the same image, quad and
// options always produce the same pixels, so a failed request can be
// retried with the same arguments.
package rectify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

var (
	// ErrInvalidQuad is returned before any pixel work when the quad has a
	// non-finite coordinate or the options are malformed.
	ErrInvalidQuad = errors.New("invalid crop request")

	// ErrSourceUnreadable is returned when the source image is missing or
	// cannot be decoded.
	ErrSourceUnreadable = errors.New("source image unreadable")

	// ErrTransformFailed is returned when the perspective solve, warp,
	// rotation or encode fails.
	ErrTransformFailed = errors.New("perspective transform failed")
)

// DefaultBorderColor fills output pixels that map outside the source.
const DefaultBorderColor = "#FFFFFF"

// Options controls the output of a crop.
type Options struct {
	// Format is the output encoding; empty selects JPEG.
	Format imaging.Format `json:"format,omitempty" validate:"omitempty,oneof=jpeg png gif tiff bmp"`

	// Quality is the JPEG quality; 0 selects the encoder default.
	Quality int `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`

	// Rotation is a clockwise turn applied after warping.
	Rotation int `json:"rotation,omitempty" validate:"oneof=0 90 180 270"`

	// BorderColor is "#RRGGBB" or "#RRGGBBAA"; empty selects white.
	BorderColor string `json:"border_color,omitempty"`

	// OutputPath, when set, receives the encoded bytes. Its extension is
	// replaced to match Format.
	OutputPath string `json:"output_path,omitempty"`
}

// Request is one crop: a source image and a quad in its pixel space.
type Request struct {
	Source  image.Image
	Quad    geometry.Quad
	Options Options
}

// Result is a finished crop.
type Result struct {
	Image    image.Image    `json:"-"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Bytes    []byte         `json:"-"`
	Format   imaging.Format `json:"format"`
	MimeType string         `json:"mime_type"`
	Path     string         `json:"path,omitempty"`
}

var validate = validator.New()

// Rectifier performs perspective crops with a Kernels implementation.
type Rectifier struct {
	kernels imaging.Kernels
	log     logrus.FieldLogger
}

// New creates a Rectifier. A nil kernels selects imaging.DefaultKernels and
// a nil log selects the standard logger.
func New(kernels imaging.Kernels, log logrus.FieldLogger) *Rectifier {
	if kernels == nil {
		kernels = imaging.DefaultKernels()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Rectifier{kernels: kernels, log: log.WithField("component", "rectifier")}
}

// LoadSource decodes the image at path through cache, wrapping failures in
// ErrSourceUnreadable. raw skips EXIF orientation.
func LoadSource(cache *imaging.ImageCache, path string, raw bool) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	if raw {
		img, err = cache.LoadRaw(path)
	} else {
		img, err = cache.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	return img, nil
}

// Rectify warps req.Quad of req.Source into an upright image, applies the
// requested rotation and encodes it. Nothing is written to OutputPath
// unless every step succeeds.
func (r *Rectifier) Rectify(ctx context.Context, req Request) (*Result, error) {
	if err := req.Quad.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuad, err)
	}
	if err := validate.Struct(req.Options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuad, err)
	}
	format, err := imaging.ParseFormat(string(req.Options.Format))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuad, err)
	}
	borderHex := req.Options.BorderColor
	if borderHex == "" {
		borderHex = DefaultBorderColor
	}
	border, err := imaging.ParseHexColor(borderHex)
	if err != nil {
		return nil, fmt.Errorf("%w: border color: %w", ErrInvalidQuad, err)
	}
	if req.Source == nil || req.Source.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrSourceUnreadable)
	}

	quad := geometry.Order(req.Quad)
	width, height := OutputSize(quad)

	// Quads are in source pixel space; shift them onto the image's bounds.
	origin := req.Source.Bounds().Min
	quad = quad.Map(func(p geometry.Point) geometry.Point {
		return p.Sub(geometry.Pt(float64(origin.X), float64(origin.Y)))
	})

	m, err := Homography(quad, targetQuad(width, height))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := r.kernels.WarpPerspective(req.Source, m, width, height, border)
	if err != nil {
		return nil, fmt.Errorf("%w: warp: %w", ErrTransformFailed, err)
	}
	if req.Options.Rotation != 0 {
		if out, err = r.kernels.RotateRightAngle(out, req.Options.Rotation); err != nil {
			return nil, fmt.Errorf("%w: rotate: %w", ErrTransformFailed, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := imaging.EncodeBytes(out, format, req.Options.Quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}

	res := &Result{
		Image:    out,
		Width:    out.Bounds().Dx(),
		Height:   out.Bounds().Dy(),
		Bytes:    data,
		Format:   format,
		MimeType: format.MimeType(),
	}

	if req.Options.OutputPath != "" {
		path := imaging.WithFormatExt(req.Options.OutputPath, format)
		if err := writeAtomic(path, data); err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
		res.Path = path
	}

	r.log.WithFields(logrus.Fields{
		"width":    res.Width,
		"height":   res.Height,
		"format":   format,
		"rotation": req.Options.Rotation,
		"bytes":    len(data),
	}).Debug("rectified")

	return res, nil
}

// writeAtomic writes data to a temporary file beside path and renames it
// into place, removing the temporary file on any failure.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rectify-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
