package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sync"
)

// ImageCache provides thread-safe caching of decoded images to avoid
// redundant disk reads when the same photo is detected, previewed and then
// rectified.
//
// Images are cached in display space (EXIF orientation applied) keyed by
// their path. Raw, un-oriented decodes are never cached.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	img, err := cache.Load("/path/to/photo.jpg")
//	if err != nil {
//	    return err
//	}
//	defer cache.Evict("/path/to/photo.jpg")
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or decodes it from disk with EXIF
// orientation applied.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a decodable PNG, JPEG, GIF, TIFF or BMP
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := loadFile(path, true)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// LoadRaw decodes path without applying EXIF orientation. The result is
// not cached.
func (c *ImageCache) LoadRaw(path string) (image.Image, error) {
	return loadFile(path, false)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len reports how many images are cached.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

func loadFile(path string, autoOrient bool) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return Decode(f, autoOrient)
}

// ImageInfo contains metadata about an image file in both of its pixel
// spaces.
type ImageInfo struct {
	// Width and Height are the display dimensions, after EXIF orientation.
	Width  int `json:"width"`
	Height int `json:"height"`

	// RawWidth and RawHeight are the stored pixel-grid dimensions as
	// written by the encoder, before any orientation is applied.
	RawWidth  int `json:"raw_width"`
	RawHeight int `json:"raw_height"`

	// Rotated is true when display and raw dimensions are swapped, which
	// indicates a 90° EXIF rotation.
	Rotated bool `json:"rotated"`

	// Format is the decoder name reported by the image package.
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image into the cache and reports its display and
// raw dimensions.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if format == "" {
		format = filepath.Ext(path)
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		RawWidth:      cfg.Width,
		RawHeight:     cfg.Height,
		Rotated:       bounds.Dx() != bounds.Dy() && bounds.Dx() == cfg.Height && bounds.Dy() == cfg.Width,
		Format:        format,
		FileSizeBytes: stat.Size(),
	}, nil
}
