//go:build !gocv

package imaging

// Backend names the kernel implementation compiled into this binary.
const Backend = "go"

// DefaultKernels returns the pure-Go kernel set. Build with -tags gocv to
// switch to OpenCV.
func DefaultKernels() Kernels {
	return NewGoKernels()
}
