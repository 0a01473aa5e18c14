// Package detection finds the best-guess document quadrilateral in a single
// camera frame or still image.
//
// The Detector is stateless between frames; temporal smoothing lives in the
// stabilizer package. All pixel work goes through an imaging.Kernels
// implementation, so the same pipeline runs on the pure-Go kernels or on
// OpenCV when built with the gocv tag.
//
// # Algorithm Overview
//
// Each frame passes through a fixed pipeline:
//
//  1. Downscale by Options.Scale for throughput, remembering the ratios
//  2. Grayscale and histogram equalization
//  3. Morphological open then close with a small elliptical element
//  4. Gaussian blur
//  5. Canny edge detection
//  6. Contour extraction with no hierarchy
//  7. Candidate scoring (see SelectCandidate)
//  8. Rescale the winning bounding rectangle to frame pixels
//
// # Candidate Scoring
//
// A contour survives when its bounding rectangle covers at least
// Options.MinAreaRatio of the scaled frame and its long/short aspect lies in
// [Options.MinAspect, Options.MaxAspect]. Survivors are scored as
//
//	ContourWeight*contourArea + RectWeight*rectArea
//
// and the highest score wins. The aspect window matches common paper
// formats (A4 and US Letter are about 1.41 and 1.29).
//
// # Coordinate System
//
// Results are expressed in the frame space of the input buffer:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Failure Handling
//
// A failure inside any stage, including a panic from a kernel, drops the
// frame and yields nil. Callers never see an error for a bad frame; the
// next frame simply tries again.
//
// # Limitations
//
// The returned quad is the candidate's axis-aligned bounding rectangle, so a
// strongly rotated or perspective-skewed page is reported with slack around
// it. Users refine the corners before rectification.
package detection
