package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// ErrUnsupportedFormat is returned for an output format that cannot be encoded.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// ParseFormat accepts a format name or file extension ("jpg", ".png", ...).
// An empty string yields FormatJPEG.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch s {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "gif":
		return FormatGIF, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Ext returns the canonical file extension for f, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatTIFF:
		return ".tiff"
	}
	return "." + string(f)
}

// MimeType returns the media type for f.
func (f Format) MimeType() string {
	return "image/" + string(f)
}

func (f Format) imaging() (imaging.Format, error) {
	switch f {
	case FormatJPEG:
		return imaging.JPEG, nil
	case FormatPNG:
		return imaging.PNG, nil
	case FormatGIF:
		return imaging.GIF, nil
	case FormatTIFF:
		return imaging.TIFF, nil
	case FormatBMP:
		return imaging.BMP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// WithFormatExt replaces the extension of path with the one matching f.
func WithFormatExt(path string, f Format) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + f.Ext()
}

// Encode writes img in format f. quality applies to JPEG only and is
// clamped to 1..100; zero selects 95.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	format, err := f.imaging()
	if err != nil {
		return err
	}
	if quality <= 0 {
		quality = 95
	}
	if quality > 100 {
		quality = 100
	}
	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to encode %s image: %w", f, err)
	}
	return nil
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns img as base64 text, suitable for JSON transport.
func EncodeBase64(img image.Image, f Format, quality int) (string, error) {
	data, err := EncodeBytes(img, f, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reads an image from r. When autoOrient is true the EXIF
// orientation tag is applied so the result is in display space; otherwise
// the raw stored pixel grid is returned.
func Decode(r io.Reader, autoOrient bool) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(autoOrient))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte, autoOrient bool) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty buffer")
	}
	return Decode(bytes.NewReader(data), autoOrient)
}

// DecodeRaw interprets a packed 8-bit pixel buffer of the given channel
// count (1 gray, 3 RGB, 4 RGBA) as an image. It returns an error when buf is
// shorter than width*height*channels.
func DecodeRaw(buf []byte, width, height, channels int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	need := width * height * channels
	if len(buf) < need {
		return nil, fmt.Errorf("frame buffer too small: have %d bytes, need %d", len(buf), need)
	}

	rect := image.Rect(0, 0, width, height)
	switch channels {
	case 1:
		g := image.NewGray(rect)
		copy(g.Pix, buf[:need])
		return g, nil
	case 3:
		out := image.NewNRGBA(rect)
		for i, j := 0, 0; i < need; i, j = i+3, j+4 {
			out.Pix[j] = buf[i]
			out.Pix[j+1] = buf[i+1]
			out.Pix[j+2] = buf[i+2]
			out.Pix[j+3] = 255
		}
		return out, nil
	case 4:
		out := image.NewNRGBA(rect)
		copy(out.Pix, buf[:need])
		return out, nil
	}
	return nil, fmt.Errorf("unsupported channel count %d", channels)
}
