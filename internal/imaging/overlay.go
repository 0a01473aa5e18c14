package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

// OverlayRenderer draws a document boundary onto a preview image.
type OverlayRenderer interface {
	// Name identifies the strategy in configuration.
	Name() string

	// RenderOverlay draws q, expressed in dst's pixel space, onto dst.
	RenderOverlay(dst draw.Image, q geometry.Quad)
}

// Overlay strategy names accepted by NewOverlayRenderer.
const (
	OverlayOutline = "outline"
	OverlayCorners = "corners"
	OverlayNone    = "none"
)

// NewOverlayRenderer selects an overlay strategy by name. colorHex accepts
// "#RRGGBB" or "#RRGGBBAA"; an empty string selects opaque green.
func NewOverlayRenderer(name, colorHex string, thickness int) (OverlayRenderer, error) {
	if colorHex == "" {
		colorHex = "#00FF00"
	}
	c, err := ParseHexColor(colorHex)
	if err != nil {
		return nil, err
	}
	if thickness <= 0 {
		thickness = 2
	}

	switch name {
	case OverlayOutline, "":
		return &outlineOverlay{color: c, thickness: thickness}, nil
	case OverlayCorners:
		return &cornersOverlay{color: c, size: thickness * 4}, nil
	case OverlayNone:
		return noOverlay{}, nil
	}
	return nil, fmt.Errorf("unknown overlay strategy: %s", name)
}

// RenderOverlayImage copies img and draws q on the copy with r.
func RenderOverlayImage(img image.Image, q geometry.Quad, r OverlayRenderer) *image.NRGBA {
	bounds := img.Bounds()
	result := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)
	r.RenderOverlay(result, q)
	return result
}

type outlineOverlay struct {
	color     color.NRGBA
	thickness int
}

func (o *outlineOverlay) Name() string { return OverlayOutline }

func (o *outlineOverlay) RenderOverlay(dst draw.Image, q geometry.Quad) {
	for i := range q {
		drawLine(dst, q[i], q[(i+1)%4], o.thickness, o.color)
	}
}

type cornersOverlay struct {
	color color.NRGBA
	size  int
}

func (o *cornersOverlay) Name() string { return OverlayCorners }

func (o *cornersOverlay) RenderOverlay(dst draw.Image, q geometry.Quad) {
	half := o.size / 2
	for _, p := range q {
		cx := int(math.Round(p.X))
		cy := int(math.Round(p.Y))
		fillRect(dst, image.Rect(cx-half, cy-half, cx+half+1, cy+half+1), o.color)
	}
}

type noOverlay struct{}

func (noOverlay) Name() string                             { return OverlayNone }
func (noOverlay) RenderOverlay(draw.Image, geometry.Quad) {}

// drawLine rasterises a thick segment by stamping squares along it.
func drawLine(dst draw.Image, a, b geometry.Point, thickness int, c color.Color) {
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	if steps == 0 {
		steps = 1
	}
	lo := -(thickness - 1) / 2
	hi := lo + thickness
	for s := 0; s <= steps; s++ {
		p := geometry.Lerp(a, b, float64(s)/float64(steps))
		x := int(math.Round(p.X))
		y := int(math.Round(p.Y))
		fillRect(dst, image.Rect(x+lo, y+lo, x+hi, y+hi), c)
	}
}

// fillRect paints r clipped to dst's bounds.
func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	r = r.Intersect(dst.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x, y, c)
		}
	}
}

// ParseHexColor parses "#RRGGBB" or "#RRGGBBAA" (leading '#' optional).
func ParseHexColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}

	alpha := uint8(255)
	switch len(hex) {
	case 6:
	case 8:
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in color %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:6]
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color length")
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
