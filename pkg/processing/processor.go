package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync/atomic"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/pkg/types"
)

// Processor turns raw sensor captures into corrected images
type Processor struct {
	decodes atomic.Int64
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Decodes returns how many raw captures this processor has decoded
func (p *Processor) Decodes() int64 {
	return p.decodes.Load()
}

// Process decodes a raw capture, fixes its orientation and mirrors it when
// the request asks for it. Any codec failure is terminal for the capture.
func (p *Processor) Process(raw types.RawCapture, req types.CaptureRequest) (*MutableImage, error) {
	log := logger.WithComponent("processing")

	img, err := p.Decode(raw)
	if err != nil {
		log.Error().Err(err).Int("bytes", len(raw.Data)).Msg("failed to decode capture")
		return nil, err
	}

	img, err = img.FixOrientation()
	if err != nil {
		log.Error().Err(err).Msg("failed to fix orientation")
		return nil, err
	}

	if req.Mirror {
		img, err = img.Mirror()
		if err != nil {
			log.Error().Err(err).Msg("failed to mirror image")
			return nil, err
		}
	}

	b := img.Bounds()
	log.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Bool("mirror", req.Mirror).Msg("capture processed")
	return img, nil
}

// Decode decodes a raw capture. When the sensor did not report an
// orientation the embedded EXIF orientation is applied while decoding;
// otherwise the sensor value is kept for FixOrientation and embedded
// metadata is ignored.
func (p *Processor) Decode(raw types.RawCapture) (*MutableImage, error) {
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("%w: empty capture", types.ErrMutationFailed)
	}
	if !raw.Orientation.Valid() {
		return nil, fmt.Errorf("%w: invalid orientation %d", types.ErrMutationFailed, int(raw.Orientation))
	}

	autoOrient := raw.Orientation == types.OrientationUnknown
	img, err := p.decodeImageFromBytes(raw.Data, autoOrient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMutationFailed, err)
	}
	p.decodes.Add(1)

	orientation := raw.Orientation
	if autoOrient {
		orientation = types.OrientationNormal
	}
	return &MutableImage{img: img, orientation: orientation}, nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte, autoOrient bool) (image.Image, error) {
	// Registered decoders first (jpeg, png, x/image webp)
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(autoOrient)); err == nil {
		return img, nil
	}

	// Try WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// EncodeBase64 encodes an image as JPEG and returns the base64 text form
func (p *Processor) EncodeBase64(img *MutableImage, quality int) (string, error) {
	data, err := img.Encode(quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// MutableImage is a decoded capture. Mutations return a new MutableImage;
// the bitmap is only encoded once, when a destination asks for bytes.
type MutableImage struct {
	img         image.Image
	orientation types.Orientation
}

// NewMutableImage wraps an already decoded, upright image
func NewMutableImage(img image.Image) *MutableImage {
	return &MutableImage{img: img, orientation: types.OrientationNormal}
}

// Image returns the underlying bitmap
func (m *MutableImage) Image() image.Image {
	return m.img
}

// Bounds returns the bitmap bounds
func (m *MutableImage) Bounds() image.Rectangle {
	return m.img.Bounds()
}

// Orientation returns the orientation still to be applied. It is
// OrientationNormal once FixOrientation has run.
func (m *MutableImage) Orientation() types.Orientation {
	return m.orientation
}

// FixOrientation rotates and flips the bitmap so that visual up matches the
// device's natural orientation. It is a no-op on an upright image.
func (m *MutableImage) FixOrientation() (*MutableImage, error) {
	if m.img == nil {
		return nil, fmt.Errorf("%w: no image data", types.ErrMutationFailed)
	}

	var out image.Image
	switch m.orientation {
	case types.OrientationUnknown, types.OrientationNormal:
		return &MutableImage{img: m.img, orientation: types.OrientationNormal}, nil
	case types.OrientationFlipH:
		out = imaging.FlipH(m.img)
	case types.OrientationRotate180:
		out = imaging.Rotate180(m.img)
	case types.OrientationFlipV:
		out = imaging.FlipV(m.img)
	case types.OrientationTranspose:
		out = imaging.Transpose(m.img)
	case types.OrientationRotate270:
		out = imaging.Rotate270(m.img)
	case types.OrientationTransverse:
		out = imaging.Transverse(m.img)
	case types.OrientationRotate90:
		out = imaging.Rotate90(m.img)
	default:
		return nil, fmt.Errorf("%w: invalid orientation %d", types.ErrMutationFailed, int(m.orientation))
	}
	return &MutableImage{img: out, orientation: types.OrientationNormal}, nil
}

// Mirror flips the bitmap horizontally
func (m *MutableImage) Mirror() (*MutableImage, error) {
	if m.img == nil {
		return nil, fmt.Errorf("%w: no image data", types.ErrMutationFailed)
	}
	return &MutableImage{img: imaging.FlipH(m.img), orientation: m.orientation}, nil
}

// Encode encodes the bitmap as JPEG. Quality is clamped to 1-100.
func (m *MutableImage) Encode(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.EncodeTo(&buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes the JPEG encoding of the bitmap to w
func (m *MutableImage) EncodeTo(w io.Writer, quality int) error {
	if m.img == nil {
		return fmt.Errorf("%w: no image data", types.ErrMutationFailed)
	}
	if err := imaging.Encode(w, m.img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return fmt.Errorf("%w: encode: %v", types.ErrMutationFailed, err)
	}
	return nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
