package processing

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
)

// ImageInfo contains basic metadata about an encoded image
type ImageInfo struct {
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Bytes       int     `json:"bytes"`
}

// Inspect reads the header of an encoded image without decoding pixels
func (p *Processor) Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// chai2010 reads extended WebP headers the x/image decoder rejects
		w, h, _, werr := webp.GetInfo(data)
		if werr != nil {
			return ImageInfo{}, fmt.Errorf("failed to read image header: %w", err)
		}
		cfg = image.Config{Width: w, Height: h}
		format = "webp"
	}
	return newImageInfo(strings.ToLower(format), cfg.Width, cfg.Height, len(data)), nil
}

// GetImageInfo returns basic information about a decoded image
func GetImageInfo(img image.Image) ImageInfo {
	b := img.Bounds()
	return newImageInfo("", b.Dx(), b.Dy(), 0)
}

func newImageInfo(format string, width, height, size int) ImageInfo {
	info := ImageInfo{
		Format: format,
		Width:  width,
		Height: height,
		Area:   width * height,
		Bytes:  size,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}
