package scanner

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/rectify"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

// RequestCrop rectifies quad, given in img's pixel space. Only one crop
// runs at a time; a concurrent request fails fast with ErrCropInProgress.
func (s *Session) RequestCrop(ctx context.Context, img image.Image, quad geometry.Quad, opts rectify.Options) (*rectify.Result, error) {
	if !s.crop.TryAcquire(1) {
		return nil, ErrCropInProgress
	}
	defer s.crop.Release(1)

	res, err := s.rectifier.Rectify(ctx, rectify.Request{Source: img, Quad: quad, Options: opts})
	if err != nil {
		s.log.WithError(err).Warn("crop failed")
		return nil, err
	}
	return res, nil
}

// Capture takes a still from src, maps the current stable quad from frame
// space into the photo's pixel space and crops it.
func (s *Session) Capture(ctx context.Context, src FrameSource, opts rectify.Options) (*rectify.Result, error) {
	snap := s.Stable()
	if snap.Result == nil {
		return nil, ErrNoDocument
	}

	photo, err := src.CaptureStill(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if photo == nil {
		return nil, fmt.Errorf("%w: no image returned", ErrCaptureUnavailable)
	}

	b := photo.Bounds()
	photoSpace := transform.Space(transform.KindPhoto, float64(b.Dx()), float64(b.Dy()))
	q, err := s.MapQuad(snap.Result.Quad, snap.Result.Space, photoSpace, transform.FitCover)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rectify.ErrInvalidQuad, err)
	}
	q = transform.ClampToBox(q, photoSpace)

	return s.RequestCrop(ctx, photo, q, opts)
}
