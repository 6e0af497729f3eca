package driver

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/internal/utils"
	"github.com/menta2k/camera-capture/pkg/sizing"
	"github.com/menta2k/camera-capture/pkg/types"
)

// Frame formats produced by the simulated sensor
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// DefaultSizes are the picture sizes of a simulated sensor
func DefaultSizes() []types.Size {
	return []types.Size{
		{Width: 320, Height: 240},
		{Width: 640, Height: 480},
		{Width: 1280, Height: 720},
		{Width: 1920, Height: 1080},
	}
}

// SimulatedConfig configures a simulated sensor
type SimulatedConfig struct {
	Sizes        []types.Size
	OpenDelay    time.Duration
	CaptureDelay time.Duration
	Format       string
	Orientation  types.Orientation

	// SourceDir, when set, makes the sensor replay image files found under
	// it instead of drawing synthetic frames
	SourceDir string
	Fs        afero.Fs
}

// Simulated is an in-process camera sensor
type Simulated struct {
	cfg SimulatedConfig

	mu          sync.Mutex
	opened      bool
	opening     bool
	previewing  bool
	facing      types.Facing
	flash       types.DriverFlash
	pictureSize types.Size
	onOpened    func()
	frames      int
	shutters    int
	calls       []string
	fault       error
	manual      bool
	held        []func()
	sources     []string
}

// NewSimulated creates a simulated sensor
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = DefaultSizes()
	}
	if cfg.Format == "" {
		cfg.Format = FormatJPEG
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	sizes := sizing.Sort(cfg.Sizes)
	return &Simulated{
		cfg:         cfg,
		facing:      types.FacingBack,
		flash:       types.DriverFlashOff,
		pictureSize: sizes[len(sizes)-1],
	}
}

func (s *Simulated) record(call string) {
	s.calls = append(s.calls, call)
}

// Calls returns the driver operations issued so far
func (s *Simulated) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the call record
func (s *Simulated) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// OnOpened registers the opened event handler
func (s *Simulated) OnOpened(fn func()) {
	s.mu.Lock()
	s.onOpened = fn
	s.mu.Unlock()
}

// Open opens the sensor. The opened event fires after the configured delay
// on a separate goroutine.
func (s *Simulated) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("open")
	if s.opened || s.opening {
		return nil
	}
	s.opening = true

	go func() {
		if s.cfg.OpenDelay > 0 {
			time.Sleep(s.cfg.OpenDelay)
		}
		s.mu.Lock()
		if !s.opening {
			// closed before it finished opening
			s.mu.Unlock()
			return
		}
		s.opening = false
		s.opened = true
		fn := s.onOpened
		s.mu.Unlock()

		logger.WithComponent("driver").Debug().Msg("simulated camera opened")
		if fn != nil {
			fn()
		}
	}()
	return nil
}

// Close closes the sensor
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("close")
	s.opened = false
	s.opening = false
	s.previewing = false
	return nil
}

// IsOpened reports whether the opened event has fired since the last Close
func (s *Simulated) IsOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// StartPreview starts the preview stream
func (s *Simulated) StartPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("startPreview")
	s.previewing = true
	return nil
}

// StopPreview stops the preview stream
func (s *Simulated) StopPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("stopPreview")
	s.previewing = false
	return nil
}

// Previewing reports whether the preview stream is running
func (s *Simulated) Previewing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewing
}

// SetFacing selects the front or back sensor
func (s *Simulated) SetFacing(facing types.Facing) error {
	if !facing.Valid() {
		return fmt.Errorf("%w: invalid camera type: %d", types.ErrInvalidArgument, int(facing))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("setFacing:" + facing.String())
	s.facing = facing
	return nil
}

// Facing returns the selected sensor
func (s *Simulated) Facing() types.Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// SetFlash sets the flash mode
func (s *Simulated) SetFlash(flash types.DriverFlash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("setFlash:" + string(flash))
	s.flash = flash
	return nil
}

// Flash returns the current flash mode
func (s *Simulated) Flash() types.DriverFlash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flash
}

// SetPictureSize selects the capture resolution
func (s *Simulated) SetPictureSize(size types.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("setPictureSize:" + size.String())
	for _, supported := range s.cfg.Sizes {
		if supported == size {
			s.pictureSize = size
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported picture size %s", types.ErrInvalidArgument, size)
}

// PictureSize returns the capture resolution
func (s *Simulated) PictureSize() types.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pictureSize
}

// SupportedPictureSizes returns the supported resolutions, smallest first
func (s *Simulated) SupportedPictureSizes() ([]types.Size, error) {
	return sizing.Sort(s.cfg.Sizes), nil
}

// PlayShutterSound records a shutter sound
func (s *Simulated) PlayShutterSound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("shutter")
	s.shutters++
}

// Shutters returns how many shutter sounds were played
func (s *Simulated) Shutters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutters
}

// SetTakePictureFault makes every following TakePicture fail with err.
// A nil err clears the fault.
func (s *Simulated) SetTakePictureFault(err error) {
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
}

// SetManualCompletion holds picture callbacks until CompleteNext is called
func (s *Simulated) SetManualCompletion(manual bool) {
	s.mu.Lock()
	s.manual = manual
	s.mu.Unlock()
}

// Held returns how many picture callbacks are waiting for CompleteNext
func (s *Simulated) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// CompleteNext delivers the oldest held picture callback. It reports false
// when nothing is held.
func (s *Simulated) CompleteNext() bool {
	s.mu.Lock()
	if len(s.held) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.held[0]
	s.held = s.held[1:]
	s.mu.Unlock()

	go next()
	return true
}

// TakePicture captures a frame and delivers it to cb asynchronously
func (s *Simulated) TakePicture(cb PictureCallback) error {
	s.mu.Lock()
	s.record("takePicture")
	if s.fault != nil {
		err := s.fault
		s.mu.Unlock()
		return err
	}
	if !s.opened {
		s.mu.Unlock()
		return fmt.Errorf("%w: camera is not open", types.ErrInvalidState)
	}
	s.frames++
	frame := s.frames
	size := s.pictureSize
	facing := s.facing
	manual := s.manual
	s.mu.Unlock()

	deliver := func() {
		if s.cfg.CaptureDelay > 0 {
			time.Sleep(s.cfg.CaptureDelay)
		}
		raw, err := s.frame(frame, size, facing)
		cb(raw, err)
	}

	if manual {
		s.mu.Lock()
		s.held = append(s.held, deliver)
		s.mu.Unlock()
		return nil
	}
	go deliver()
	return nil
}

// frame produces the raw capture for frame number n
func (s *Simulated) frame(n int, size types.Size, facing types.Facing) (types.RawCapture, error) {
	if s.cfg.SourceDir != "" {
		return s.sourceFrame(n)
	}

	img := RenderFrame(n, size, facing)
	var buf bytes.Buffer
	switch s.cfg.Format {
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: 90}); err != nil {
			return types.RawCapture{}, fmt.Errorf("failed to encode frame: %w", err)
		}
	default:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
			return types.RawCapture{}, fmt.Errorf("failed to encode frame: %w", err)
		}
	}
	return types.RawCapture{Data: buf.Bytes(), Orientation: s.cfg.Orientation}, nil
}

func (s *Simulated) sourceFrame(n int) (types.RawCapture, error) {
	s.mu.Lock()
	if s.sources == nil {
		files, err := utils.ListImageFiles(s.cfg.Fs, s.cfg.SourceDir)
		if err != nil {
			s.mu.Unlock()
			return types.RawCapture{}, fmt.Errorf("failed to list source images: %w", err)
		}
		s.sources = files
	}
	sources := s.sources
	s.mu.Unlock()

	if len(sources) == 0 {
		return types.RawCapture{}, fmt.Errorf("no images found in %s", s.cfg.SourceDir)
	}
	path := sources[(n-1)%len(sources)]
	data, err := afero.ReadFile(s.cfg.Fs, path)
	if err != nil {
		return types.RawCapture{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return types.RawCapture{Data: data, Orientation: s.cfg.Orientation}, nil
}

// RenderFrame draws a synthetic frame: a background tinted by facing, a red
// marker in the top-left quadrant and a frame stamp.
func RenderFrame(n int, size types.Size, facing types.Facing) image.Image {
	bg := color.NRGBA{R: 40, G: 90, B: 160, A: 255}
	if facing == types.FacingFront {
		bg = color.NRGBA{R: 60, G: 140, B: 70, A: 255}
	}

	img := imaging.New(size.Width, size.Height, bg)
	marker := imaging.New(max(size.Width/4, 1), max(size.Height/4, 1), color.NRGBA{R: 220, A: 255})
	img = imaging.Paste(img, marker, image.Pt(0, 0))

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, size.Height-8),
	}
	d.DrawString(strings.ToUpper(fmt.Sprintf("#%d %s %s", n, facing, size)))
	return img
}
