package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/chai2010/webp"

	"github.com/menta2k/camera-capture/pkg/types"
)

// createTestImage creates an image whose left half is red and right half blue
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

func encodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xc000 && g < 0x4000 && b < 0x4000
}

func isBlue(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return b > 0xc000 && r < 0x4000 && g < 0x4000
}

func TestNewProcessor(t *testing.T) {
	p := NewProcessor()
	if p == nil {
		t.Fatal("NewProcessor() returned nil")
	}
	if p.Decodes() != 0 {
		t.Errorf("Expected no decodes, got %d", p.Decodes())
	}
}

func TestEncodeRoundTripKeepsDimensions(t *testing.T) {
	p := NewProcessor()
	for _, q := range []int{1, 50, 80, 85, 100} {
		img := NewMutableImage(createTestImage(123, 77))

		data, err := img.Encode(q)
		if err != nil {
			t.Fatalf("Encode(%d) failed: %v", q, err)
		}

		decoded, err := p.Decode(types.RawCapture{Data: data})
		if err != nil {
			t.Fatalf("Decode after Encode(%d) failed: %v", q, err)
		}
		b := decoded.Bounds()
		if b.Dx() != 123 || b.Dy() != 77 {
			t.Errorf("quality %d: expected 123x77, got %dx%d", q, b.Dx(), b.Dy())
		}
	}
}

func TestEncodeQualityAffectsSize(t *testing.T) {
	img := NewMutableImage(createTestImage(200, 200))
	low, err := img.Encode(5)
	if err != nil {
		t.Fatal(err)
	}
	high, err := img.Encode(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("Expected quality 5 (%d bytes) to be smaller than quality 100 (%d bytes)", len(low), len(high))
	}
}

func TestProcessUpright(t *testing.T) {
	p := NewProcessor()
	raw := types.RawCapture{Data: encodeJPEG(t, createTestImage(100, 100)), Orientation: types.OrientationNormal}

	img, err := p.Process(raw, types.CaptureRequest{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if img.Orientation() != types.OrientationNormal {
		t.Errorf("Expected normal orientation, got %d", img.Orientation())
	}
	if !isRed(img.Image().At(5, 50)) {
		t.Errorf("Expected red on the left, got %v", img.Image().At(5, 50))
	}
}

func TestFixOrientationIdempotent(t *testing.T) {
	img := NewMutableImage(createTestImage(40, 20))

	once, err := img.FixOrientation()
	if err != nil {
		t.Fatal(err)
	}
	twice, err := once.FixOrientation()
	if err != nil {
		t.Fatal(err)
	}

	if twice.Bounds().Dx() != 40 || twice.Bounds().Dy() != 20 {
		t.Errorf("Upright image changed size: %v", twice.Bounds())
	}
	if !isRed(twice.Image().At(2, 10)) || !isBlue(twice.Image().At(37, 10)) {
		t.Error("Upright image pixels moved")
	}
}

func TestFixOrientationRotations(t *testing.T) {
	tests := []struct {
		orientation types.Orientation
		width       int
		height      int
	}{
		{types.OrientationNormal, 40, 20},
		{types.OrientationFlipH, 40, 20},
		{types.OrientationRotate180, 40, 20},
		{types.OrientationFlipV, 40, 20},
		{types.OrientationTranspose, 20, 40},
		{types.OrientationRotate270, 20, 40},
		{types.OrientationTransverse, 20, 40},
		{types.OrientationRotate90, 20, 40},
	}

	for _, test := range tests {
		img := &MutableImage{img: createTestImage(40, 20), orientation: test.orientation}
		fixed, err := img.FixOrientation()
		if err != nil {
			t.Fatalf("orientation %d: %v", test.orientation, err)
		}
		b := fixed.Bounds()
		if b.Dx() != test.width || b.Dy() != test.height {
			t.Errorf("orientation %d: expected %dx%d, got %dx%d",
				test.orientation, test.width, test.height, b.Dx(), b.Dy())
		}
		if fixed.Orientation() != types.OrientationNormal {
			t.Errorf("orientation %d: not normalized", test.orientation)
		}

		// fixing again is a no-op
		again, _ := fixed.FixOrientation()
		if again.Bounds() != fixed.Bounds() {
			t.Errorf("orientation %d: second fix changed bounds", test.orientation)
		}
	}
}

func TestFixOrientationRotate270IsClockwise(t *testing.T) {
	// EXIF 6: the sensor is rotated 90 degrees clockwise relative to up, so
	// the left (red) half ends up on top
	img := &MutableImage{img: createTestImage(40, 20), orientation: types.OrientationRotate270}
	fixed, err := img.FixOrientation()
	if err != nil {
		t.Fatal(err)
	}
	if !isRed(fixed.Image().At(10, 2)) {
		t.Errorf("Expected red at the top, got %v", fixed.Image().At(10, 2))
	}
	if !isBlue(fixed.Image().At(10, 37)) {
		t.Errorf("Expected blue at the bottom, got %v", fixed.Image().At(10, 37))
	}
}

func TestProcessMirror(t *testing.T) {
	p := NewProcessor()
	raw := types.RawCapture{Data: encodeJPEG(t, createTestImage(100, 50))}

	img, err := p.Process(raw, types.CaptureRequest{Mirror: true})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !isBlue(img.Image().At(5, 25)) {
		t.Errorf("Expected blue on the left after mirror, got %v", img.Image().At(5, 25))
	}
	if !isRed(img.Image().At(94, 25)) {
		t.Errorf("Expected red on the right after mirror, got %v", img.Image().At(94, 25))
	}
}

func TestProcessSensorOrientationOverridesEmbedded(t *testing.T) {
	p := NewProcessor()
	raw := types.RawCapture{Data: encodeJPEG(t, createTestImage(60, 30)), Orientation: types.OrientationRotate90}

	img, err := p.Process(raw, types.CaptureRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 60 {
		t.Errorf("Expected 30x60 after rotation, got %v", img.Bounds())
	}
}

func TestProcessCorruptCapture(t *testing.T) {
	p := NewProcessor()

	tests := []types.RawCapture{
		{Data: nil},
		{Data: []byte("definitely not an image")},
		{Data: encodeJPEG(t, createTestImage(10, 10))[:20]},
		{Data: encodeJPEG(t, createTestImage(10, 10)), Orientation: types.Orientation(42)},
	}

	for i, raw := range tests {
		_, err := p.Process(raw, types.CaptureRequest{})
		if !errors.Is(err, types.ErrMutationFailed) {
			t.Errorf("case %d: expected ErrMutationFailed, got %v", i, err)
		}
	}
}

func TestDecodeWebP(t *testing.T) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, createTestImage(64, 32), &webp.Options{Lossless: true}); err != nil {
		t.Fatalf("webp encode: %v", err)
	}

	p := NewProcessor()
	img, err := p.Process(types.RawCapture{Data: buf.Bytes()}, types.CaptureRequest{})
	if err != nil {
		t.Fatalf("Process(webp) failed: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Errorf("Expected 64x32, got %v", img.Bounds())
	}
}

func TestEncodeBase64(t *testing.T) {
	p := NewProcessor()
	encoded, err := p.EncodeBase64(NewMutableImage(createTestImage(16, 16)), 80)
	if err != nil {
		t.Fatal(err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("not valid base64: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("decoded payload is not a JPEG")
	}
}

func TestInspect(t *testing.T) {
	p := NewProcessor()
	data := encodeJPEG(t, createTestImage(400, 300))

	info, err := p.Inspect(data)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Format != "jpeg" {
		t.Errorf("Expected jpeg, got %s", info.Format)
	}
	if info.Width != 400 || info.Height != 300 {
		t.Errorf("Expected 400x300, got %dx%d", info.Width, info.Height)
	}
	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
	if info.Bytes != len(data) {
		t.Errorf("Expected %d bytes, got %d", len(data), info.Bytes)
	}

	if _, err := p.Inspect([]byte("nope")); err == nil {
		t.Error("Expected error for non-image data")
	}
}

func TestGetImageInfo(t *testing.T) {
	info := GetImageInfo(createTestImage(400, 300))
	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}
}

func BenchmarkProcess(b *testing.B) {
	p := NewProcessor()
	raw := types.RawCapture{Data: encodeJPEG(b, createTestImage(1920, 1080)), Orientation: types.OrientationRotate270}
	req := types.CaptureRequest{Mirror: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process(raw, req)
	}
}
