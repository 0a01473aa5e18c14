package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/rectify"
	"github.com/ironsheep/docscan-mcp/internal/scanner"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "document_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// DefaultWaitTimeout bounds scanner_submit_frame when wait is set.
const DefaultWaitTimeout = 2 * time.Second

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Debug("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals and validates its arguments
//  2. Applies configured defaults for optional parameters
//  3. Loads images from cache as needed
//  4. Calls into detection, transform, rectify or the live session
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Document Operations
	case "document_detect":
		return s.handleDocumentDetect(args)
	case "document_map_quad":
		return s.handleDocumentMapQuad(args)
	case "document_rectify":
		return s.handleDocumentRectify(ctx, args)
	case "document_overlay":
		return s.handleDocumentOverlay(args)

	// Live Session
	case "scanner_set_detection":
		return s.handleScannerSetDetection(args)
	case "scanner_submit_frame":
		return s.handleScannerSubmitFrame(ctx, args)
	case "scanner_stable_quad":
		return s.handleScannerStableQuad()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals args into dst and checks its validate tags.
func (s *Server) decodeArgs(args json.RawMessage, dst interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// loadImage returns the image at path with its pixel space: display space
// after EXIF orientation, or photo space when raw is set.
func (s *Server) loadImage(path string, raw bool) (image.Image, transform.PixelSpace, error) {
	img, err := rectify.LoadSource(s.cache, path, raw)
	if err != nil {
		return nil, transform.PixelSpace{}, err
	}
	kind := transform.KindDisplay
	if raw {
		kind = transform.KindPhoto
	}
	b := img.Bounds()
	return img, transform.Space(kind, float64(b.Dx()), float64(b.Dy())), nil
}

// quadArg converts the optional point list of a request into a quad.
func quadArg(pts []geometry.Point) (*geometry.Quad, error) {
	if pts == nil {
		return nil, nil
	}
	q, err := geometry.NewQuad(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rectify.ErrInvalidQuad, err)
	}
	return &q, nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	info, err := imaging.LoadImageInfo(s.cache, a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]int{"width": info.Width, "height": info.Height}, nil
}

// === Document Operation Handlers ===

type documentDetectArgs struct {
	Path string `json:"path" validate:"required"`
	Raw  bool   `json:"raw"`
}

// DetectResult reports a one-shot detection on an image file.
type DetectResult struct {
	Found bool                 `json:"found"`
	Quad  *geometry.Quad       `json:"quad,omitempty"`
	Space transform.PixelSpace `json:"space"`
	Area  float64              `json:"area,omitempty"`
}

func (s *Server) handleDocumentDetect(args json.RawMessage) (interface{}, error) {
	var a documentDetectArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, space, err := s.loadImage(a.Path, a.Raw)
	if err != nil {
		return nil, err
	}

	out := DetectResult{Space: space}
	if res := s.detector.Detect(img, time.Now()); res != nil {
		q := res.Quad
		out.Found = true
		out.Quad = &q
		out.Area = q.Area()
	}
	return out, nil
}

type documentMapQuadArgs struct {
	Quad []geometry.Point     `json:"quad" validate:"required,len=4"`
	From transform.PixelSpace `json:"from"`
	To   transform.PixelSpace `json:"to"`
	Fit  string               `json:"fit" validate:"omitempty,oneof=contain cover"`
}

func (s *Server) handleDocumentMapQuad(args json.RawMessage) (interface{}, error) {
	var a documentMapQuadArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	q, err := quadArg(a.Quad)
	if err != nil {
		return nil, err
	}
	fit := s.cfg.Fit()
	if a.Fit != "" {
		fit, _ = transform.ParseFitMode(a.Fit)
	}

	mapped, err := s.session.MapQuad(*q, a.From, a.To, fit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"quad":  mapped,
		"space": a.To,
	}, nil
}

type documentRectifyArgs struct {
	Path string `json:"path" validate:"required"`
	Raw  bool   `json:"raw"`

	// Quad is optional; when absent the document is detected first.
	Quad []geometry.Point `json:"quad" validate:"omitempty,len=4"`

	// QuadSpace is the space Quad is expressed in; empty means the image's.
	QuadSpace *transform.PixelSpace `json:"quad_space"`

	Format       string `json:"format"`
	Quality      int    `json:"quality"`
	Rotation     int    `json:"rotation"`
	BorderColor  string `json:"border_color"`
	OutputPath   string `json:"output_path"`
	IncludeImage bool   `json:"include_image"`
}

// RectifyResult reports a completed crop.
type RectifyResult struct {
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Format      imaging.Format `json:"format"`
	MimeType    string         `json:"mime_type"`
	Path        string         `json:"path,omitempty"`
	Quad        geometry.Quad  `json:"quad"`
	ImageBase64 string         `json:"image_base64,omitempty"`
}

func (s *Server) handleDocumentRectify(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a documentRectifyArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, space, err := s.loadImage(a.Path, a.Raw)
	if err != nil {
		return nil, err
	}

	q, err := s.resolveQuad(img, space, a.Quad, a.QuadSpace)
	if err != nil {
		return nil, err
	}

	opts := s.cfg.RectifyOptions()
	if a.Format != "" {
		f, err := imaging.ParseFormat(a.Format)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}
	if a.Quality != 0 {
		opts.Quality = a.Quality
	}
	if a.BorderColor != "" {
		opts.BorderColor = a.BorderColor
	}
	opts.Rotation = a.Rotation
	opts.OutputPath = a.OutputPath

	res, err := s.session.RequestCrop(ctx, img, q, opts)
	if err != nil {
		return nil, err
	}

	out := RectifyResult{
		Width:    res.Width,
		Height:   res.Height,
		Format:   res.Format,
		MimeType: res.MimeType,
		Path:     res.Path,
		Quad:     q,
	}
	if res.Path == "" || a.IncludeImage {
		out.ImageBase64 = base64String(res.Bytes)
	}
	return out, nil
}

// resolveQuad returns the quad to crop in the image's space: pts mapped
// from from when given, otherwise a fresh detection.
func (s *Server) resolveQuad(img image.Image, space transform.PixelSpace, pts []geometry.Point, from *transform.PixelSpace) (geometry.Quad, error) {
	q, err := quadArg(pts)
	if err != nil {
		return geometry.Quad{}, err
	}
	if q == nil {
		res := s.detector.Detect(img, time.Now())
		if res == nil {
			return geometry.Quad{}, scanner.ErrNoDocument
		}
		return res.Quad, nil
	}
	if from == nil {
		return *q, nil
	}

	mapped, err := s.session.MapQuad(*q, *from, space, transform.FitContain)
	if err != nil {
		return geometry.Quad{}, fmt.Errorf("%w: %w", rectify.ErrInvalidQuad, err)
	}
	return transform.ClampToBox(mapped, space), nil
}

type documentOverlayArgs struct {
	Path string           `json:"path" validate:"required"`
	Quad []geometry.Point `json:"quad" validate:"omitempty,len=4"`

	// Stable draws the live session's stable quad, treating the image as
	// the preview.
	Stable bool `json:"stable"`

	Strategy   string `json:"strategy" validate:"omitempty,oneof=outline corners none"`
	Color      string `json:"color" validate:"omitempty,hexcolor"`
	Thickness  int    `json:"thickness" validate:"omitempty,min=1,max=32"`
	OutputPath string `json:"output_path"`
}

// OverlayResult reports a rendered overlay.
type OverlayResult struct {
	Found       bool           `json:"found"`
	Quad        *geometry.Quad `json:"quad,omitempty"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Path        string         `json:"path,omitempty"`
	ImageBase64 string         `json:"image_base64,omitempty"`
}

func (s *Server) handleDocumentOverlay(args json.RawMessage) (interface{}, error) {
	var a documentOverlayArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, _, err := s.loadImage(a.Path, false)
	if err != nil {
		return nil, err
	}

	var (
		out      *image.NRGBA
		result   OverlayResult
		renderer imaging.OverlayRenderer
	)
	if a.Stable {
		out, err = s.session.RenderOverlay(img, s.cfg.Fit())
		if err != nil {
			return nil, err
		}
		result.Found = s.session.Stable().Result != nil
	} else {
		renderer, err = s.overlayRenderer(a.Strategy, a.Color, a.Thickness)
		if err != nil {
			return nil, err
		}
		q, err := quadArg(a.Quad)
		if err != nil {
			return nil, err
		}
		if q == nil {
			if res := s.detector.Detect(img, time.Now()); res != nil {
				q = &res.Quad
			}
		}
		if q == nil {
			out = imaging.RenderOverlayImage(img, geometry.Quad{}, noOverlay())
		} else {
			out = imaging.RenderOverlayImage(img, *q, renderer)
			result.Found = true
			result.Quad = q
		}
	}

	b := out.Bounds()
	result.Width, result.Height = b.Dx(), b.Dy()

	data, err := imaging.EncodeBytes(out, imaging.FormatPNG, 0)
	if err != nil {
		return nil, err
	}
	if a.OutputPath != "" {
		result.Path = imaging.WithFormatExt(a.OutputPath, imaging.FormatPNG)
		if err := os.WriteFile(result.Path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write overlay: %w", err)
		}
		return result, nil
	}
	result.ImageBase64 = base64String(data)
	return result, nil
}

// overlayRenderer builds a renderer from per-call overrides of the
// configured strategy.
func (s *Server) overlayRenderer(strategy, color string, thickness int) (imaging.OverlayRenderer, error) {
	if strategy == "" {
		strategy = s.cfg.Overlay
	}
	if color == "" {
		color = s.cfg.OverlayColor
	}
	if thickness == 0 {
		thickness = s.cfg.OverlayThickness
	}
	return imaging.NewOverlayRenderer(strategy, color, thickness)
}

func base64String(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func noOverlay() imaging.OverlayRenderer {
	r, _ := imaging.NewOverlayRenderer(imaging.OverlayNone, "", 0)
	return r
}

// === Live Session Handlers ===

type scannerSetDetectionArgs struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) handleScannerSetDetection(args json.RawMessage) (interface{}, error) {
	var a scannerSetDetectionArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	s.session.SetDetectionEnabled(*a.Enabled)
	return map[string]interface{}{
		"session_id": s.sessionID,
		"enabled":    s.session.DetectionEnabled(),
	}, nil
}

type scannerSubmitFrameArgs struct {
	Path      string `json:"path" validate:"required"`
	Wait      bool   `json:"wait"`
	TimeoutMS int    `json:"timeout_ms" validate:"omitempty,min=1,max=60000"`
}

// SubmitResult reports the fate of a submitted frame.
type SubmitResult struct {
	Submission string            `json:"submission"`
	Snapshot   *scanner.Snapshot `json:"snapshot,omitempty"`
	TimedOut   bool              `json:"timed_out,omitempty"`
}

func (s *Server) handleScannerSubmitFrame(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a scannerSubmitFrameArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, _, err := s.loadImage(a.Path, false)
	if err != nil {
		return nil, err
	}

	seq := s.session.Stable().Seq
	sub := s.session.SubmitFrame(scanner.Frame{Image: img, Timestamp: time.Now()})
	out := SubmitResult{Submission: sub.String()}
	if sub != scanner.Accepted || !a.Wait {
		return out, nil
	}

	timeout := DefaultWaitTimeout
	if a.TimeoutMS > 0 {
		timeout = time.Duration(a.TimeoutMS) * time.Millisecond
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap, err := s.session.WaitForUpdate(wctx, seq)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		out.TimedOut = true
	}
	out.Snapshot = &snap
	return out, nil
}

// StableQuadResult is the live session's state.
type StableQuadResult struct {
	SessionID string            `json:"session_id"`
	Enabled   bool              `json:"enabled"`
	Stable    *detection.Result `json:"stable"`
	State     string            `json:"state"`
	Seq       uint64            `json:"seq"`
	Stats     scanner.Stats     `json:"stats"`
}

func (s *Server) handleScannerStableQuad() (interface{}, error) {
	snap := s.session.Stable()
	return StableQuadResult{
		SessionID: s.sessionID,
		Enabled:   s.session.DetectionEnabled(),
		Stable:    snap.Result,
		State:     snap.State,
		Seq:       snap.Seq,
		Stats:     s.session.Stats(),
	}, nil
}
