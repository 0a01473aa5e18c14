// Package config loads server settings from DOCSCAN_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/rectify"
	"github.com/ironsheep/docscan-mcp/internal/scanner"
	"github.com/ironsheep/docscan-mcp/internal/stabilizer"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

// Prefix is prepended to every variable name.
const Prefix = "DOCSCAN_"

// Config holds every tunable of the server.
type Config struct {
	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogFile  string

	DetectScale   float64 `validate:"gt=0,lte=1"`
	MorphSize     int     `validate:"min=1"`
	BlurSize      int     `validate:"min=1"`
	CannyLow      float64 `validate:"gte=0"`
	CannyHigh     float64 `validate:"gtfield=CannyLow"`
	MinAreaRatio  float64 `validate:"gt=0,lt=1"`
	MinAspect     float64 `validate:"gte=1"`
	MaxAspect     float64 `validate:"gtefield=MinAspect"`
	ContourWeight float64 `validate:"gte=0"`
	RectWeight    float64 `validate:"gte=0"`

	FrameRate  float64       `validate:"gt=0"`
	FrameBurst int           `validate:"min=1"`
	Hold       time.Duration `validate:"gt=0"`
	Alpha      float64       `validate:"gt=0,lte=1"`

	PreviewRotation string `validate:"oneof=cw ccw"`
	DisplayRotation string `validate:"oneof=cw ccw"`
	PreviewFit      string `validate:"oneof=contain cover"`

	Overlay          string `validate:"oneof=outline corners none"`
	OverlayColor     string `validate:"hexcolor"`
	OverlayThickness int    `validate:"min=1,max=32"`

	OutputFormat string `validate:"oneof=jpeg jpg png gif tiff bmp"`
	Quality      int    `validate:"min=1,max=100"`
	BorderColor  string `validate:"hexcolor"`
}

// Default returns the built-in settings.
func Default() Config {
	d := detection.DefaultOptions()
	s := stabilizer.DefaultOptions()
	return Config{
		LogLevel: "info",

		DetectScale:   d.Scale,
		MorphSize:     d.MorphSize,
		BlurSize:      d.BlurSize,
		CannyLow:      d.CannyLow,
		CannyHigh:     d.CannyHigh,
		MinAreaRatio:  d.MinAreaRatio,
		MinAspect:     d.MinAspect,
		MaxAspect:     d.MaxAspect,
		ContourWeight: d.ContourWeight,
		RectWeight:    d.RectWeight,

		FrameRate:  scanner.DefaultRate,
		FrameBurst: scanner.DefaultBurst,
		Hold:       s.Hold,
		Alpha:      s.Alpha,

		PreviewRotation: transform.RotateCCW.String(),
		DisplayRotation: transform.RotateCCW.String(),
		PreviewFit:      "contain",

		Overlay:          imaging.OverlayOutline,
		OverlayColor:     "#00FF00",
		OverlayThickness: 2,

		OutputFormat: string(imaging.FormatJPEG),
		Quality:      95,
		BorderColor:  rectify.DefaultBorderColor,
	}
}

// NewValidator returns the validator used for Config.
func NewValidator() *validator.Validate {
	return validator.New()
}

// Load seeds the environment from envFile (".env" when empty; a missing
// default file is ignored), reads DOCSCAN_* variables over the defaults and
// validates the result.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the shape of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.raw("LOG_FILE", &cfg.LogFile)

	r.float("DETECT_SCALE", &cfg.DetectScale)
	r.int("DETECT_MORPH_SIZE", &cfg.MorphSize)
	r.int("DETECT_BLUR_SIZE", &cfg.BlurSize)
	r.float("DETECT_CANNY_LOW", &cfg.CannyLow)
	r.float("DETECT_CANNY_HIGH", &cfg.CannyHigh)
	r.float("DETECT_MIN_AREA", &cfg.MinAreaRatio)
	r.float("DETECT_MIN_ASPECT", &cfg.MinAspect)
	r.float("DETECT_MAX_ASPECT", &cfg.MaxAspect)
	r.float("DETECT_CONTOUR_WEIGHT", &cfg.ContourWeight)
	r.float("DETECT_RECT_WEIGHT", &cfg.RectWeight)

	r.float("FRAME_RATE", &cfg.FrameRate)
	r.int("FRAME_BURST", &cfg.FrameBurst)
	r.duration("HOLD", &cfg.Hold)
	r.float("ALPHA", &cfg.Alpha)

	r.str("PREVIEW_ROTATION", &cfg.PreviewRotation)
	r.str("DISPLAY_ROTATION", &cfg.DisplayRotation)
	r.str("PREVIEW_FIT", &cfg.PreviewFit)

	r.str("OVERLAY", &cfg.Overlay)
	r.str("OVERLAY_COLOR", &cfg.OverlayColor)
	r.int("OVERLAY_THICKNESS", &cfg.OverlayThickness)

	r.str("OUTPUT_FORMAT", &cfg.OutputFormat)
	r.int("QUALITY", &cfg.Quality)
	r.str("BORDER_COLOR", &cfg.BorderColor)

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraint.
func (c *Config) Validate() error {
	if err := NewValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DetectionOptions returns the detector settings.
func (c *Config) DetectionOptions() detection.Options {
	return detection.Options{
		Scale:         c.DetectScale,
		MorphSize:     c.MorphSize,
		BlurSize:      c.BlurSize,
		CannyLow:      c.CannyLow,
		CannyHigh:     c.CannyHigh,
		MinAreaRatio:  c.MinAreaRatio,
		MinAspect:     c.MinAspect,
		MaxAspect:     c.MaxAspect,
		ContourWeight: c.ContourWeight,
		RectWeight:    c.RectWeight,
	}
}

// StabilizerOptions returns the smoothing and hold settings.
func (c *Config) StabilizerOptions() stabilizer.Options {
	return stabilizer.Options{Alpha: c.Alpha, Hold: c.Hold}
}

// Mapper returns the rotation conventions for coordinate mapping.
func (c *Config) Mapper() transform.Mapper {
	// Both values passed validation.
	preview, _ := transform.ParseRotation(c.PreviewRotation)
	display, _ := transform.ParseRotation(c.DisplayRotation)
	return transform.Mapper{PreviewRotation: preview, DisplayRotation: display}
}

// Fit returns the preview fit mode.
func (c *Config) Fit() transform.FitMode {
	f, _ := transform.ParseFitMode(c.PreviewFit)
	return f
}

// OverlayRenderer builds the configured overlay strategy.
func (c *Config) OverlayRenderer() (imaging.OverlayRenderer, error) {
	return imaging.NewOverlayRenderer(c.Overlay, c.OverlayColor, c.OverlayThickness)
}

// ScannerOptions returns the live session settings.
func (c *Config) ScannerOptions() (scanner.Options, error) {
	overlay, err := c.OverlayRenderer()
	if err != nil {
		return scanner.Options{}, err
	}
	return scanner.Options{
		Rate:       c.FrameRate,
		Burst:      c.FrameBurst,
		Stabilizer: c.StabilizerOptions(),
		Mapper:     c.Mapper(),
		Overlay:    overlay,
	}, nil
}

// RectifyOptions returns the default crop output settings.
func (c *Config) RectifyOptions() rectify.Options {
	f, _ := imaging.ParseFormat(c.OutputFormat)
	return rectify.Options{Format: f, Quality: c.Quality, BorderColor: c.BorderColor}
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(Prefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) raw(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

// str reads an enumerated value, folded to lower case.
func (r *reader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = strings.ToLower(v)
	}
}

func (r *reader) float(key string, dst *float64) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return
	}
	*dst = f
}

func (r *reader) int(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return
	}
	*dst = n
}

// duration accepts Go duration syntax or a bare number of milliseconds.
func (r *reader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return
	}
	*dst = d
}
