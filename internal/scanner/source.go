package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// Frame is one buffer from a capture stream. Either Image is set, or
// Pixels holds Width*Height*Channels packed bytes.
type Frame struct {
	Image image.Image

	Pixels   []byte
	Width    int
	Height   int
	Channels int

	// Timestamp is the capture time; zero means "now".
	Timestamp time.Time
}

// FrameSource is a camera or any other producer of frames.
type FrameSource interface {
	// NextFrame blocks until a frame is available. io.EOF ends the stream.
	NextFrame(ctx context.Context) (Frame, error)

	// CaptureStill takes a full-resolution photo.
	CaptureStill(ctx context.Context) (image.Image, error)
}

// Run pumps frames from src into the session until ctx is done or the
// source fails. If Start has not been called, Run also runs the consumer
// for its own lifetime. A source that ends with io.EOF stops Run without
// error.
func (s *Session) Run(ctx context.Context, src FrameSource) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.started.CompareAndSwap(false, true) {
		defer s.started.Store(false)
		g.Go(func() error {
			s.consume(ctx)
			return nil
		})
	}

	g.Go(func() error {
		for {
			f, err := src.NextFrame(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return errStopped
				}
				return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
			}
			s.SubmitFrame(f)
		}
	})

	err := g.Wait()
	if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// errStopped ends the errgroup, cancelling the consumer, when the source is
// exhausted.
var errStopped = errors.New("frame source stopped")
