// Package imaging provides the image-processing capabilities consumed by the
// document pipeline.
//
// The Kernels interface is the single seam between the pipeline and any
// numerical image library: grayscale conversion, histogram equalization,
// morphology, Gaussian blur, Canny edges, contour extraction, perspective
// warp and right-angle rotation. Two implementations exist:
//
//   - GoKernels: pure Go, built on bild and disintegration/imaging. This is
//     the default build.
//   - CVKernels: OpenCV through gocv, compiled in with the "gocv" build tag.
//
// DefaultKernels returns whichever implementation the build selected.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Rectangles follow the
// image.Rectangle convention: Min is inclusive, Max is exclusive.
//
// # Thread Safety
//
// Kernel implementations are stateless and safe for concurrent use. The
// ImageCache type is safe for concurrent use.
//
// # Codecs
//
// Decode and Encode wrap disintegration/imaging so that EXIF orientation is
// honoured on decode and the output container always matches the requested
// Format. Encoded output never mixes formats with file extensions: use
// Format.Ext to derive file names.
//
// # Overlays
//
// OverlayRenderer draws a detected quad onto an image for preview. The
// strategy is chosen by name from configuration (see NewOverlayRenderer).
package imaging
