// Package cameracapture provides still-photo capture with orientation
// correction, mirroring and delivery to memory, disk, the camera roll or a
// temporary cache.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		cameracapture "github.com/menta2k/camera-capture"
//		"github.com/menta2k/camera-capture/pkg/types"
//	)
//
//	func main() {
//		camera, err := cameracapture.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer camera.Close()
//
//		ctx := context.Background()
//		if err := camera.Open(ctx); err != nil {
//			log.Fatal(err)
//		}
//
//		desc, err := camera.Capture(ctx, types.CaptureRequest{Target: types.TargetCameraRoll})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("saved to", desc.Path)
//	}
//
// The package consists of these components:
//
//  1. Sizing (pkg/sizing): maps quality tiers onto supported picture sizes
//  2. Ready queue (pkg/readyqueue): defers configuration until the camera opens
//  3. Capture (pkg/capture): the session, admission guard and worker
//  4. Processing (pkg/processing): decode, orientation fix, mirror, encode
//  5. Output (pkg/output): memory, disk, camera roll and temp delivery
//  6. Gallery (pkg/gallery): media index registration
//  7. API (internal/api): HTTP control surface and capture event stream
//  8. CLI (cmd/camera-capture): capture, sizes, serve, config and inspect
//
// Only one capture waits for the sensor at a time; a capture requested while
// another is in flight fails with types.ErrBusy. Post-processing and delivery
// run on a single worker, so captures complete in the order they were
// admitted.
package cameracapture

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/menta2k/camera-capture/internal/config"
	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/pkg/capture"
	"github.com/menta2k/camera-capture/pkg/driver"
	"github.com/menta2k/camera-capture/pkg/gallery"
	"github.com/menta2k/camera-capture/pkg/output"
	"github.com/menta2k/camera-capture/pkg/processing"
	"github.com/menta2k/camera-capture/pkg/types"
)

// Version of the camera capture library
const Version = "1.0.0"

// Camera is a camera session over the simulated sensor, wired from
// configuration
type Camera struct {
	cfg       *config.Config
	fs        afero.Fs
	driver    *driver.Simulated
	index     *gallery.LocalIndex
	processor *processing.Processor
	session   *capture.Session
}

// New creates a Camera with default configuration on the OS filesystem
func New() (*Camera, error) {
	return NewWithConfig(config.Default(), afero.NewOsFs(), nil)
}

// NewWithConfig creates a Camera from cfg. events may be nil.
func NewWithConfig(cfg *config.Config, fs afero.Fs, events capture.EventSink) (*Camera, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	sizes, err := cfg.PictureSizes()
	if err != nil {
		return nil, err
	}

	sim := driver.NewSimulated(driver.SimulatedConfig{
		Sizes:        sizes,
		OpenDelay:    cfg.Driver.OpenDelay,
		CaptureDelay: cfg.Driver.CaptureDelay,
		Format:       cfg.Driver.Format,
		Orientation:  types.Orientation(cfg.Driver.Orientation),
		SourceDir:    cfg.Driver.SourceDir,
		Fs:           fs,
	})

	c := &Camera{
		cfg:       cfg,
		fs:        fs,
		driver:    sim,
		processor: processing.NewProcessor(),
	}

	opts := capture.Options{
		Fs:        fs,
		Dirs:      cfg.Dirs(),
		Processor: c.processor,
		Events:    events,
	}
	if cfg.Gallery.Enabled {
		c.index = gallery.NewLocalIndex(fs, cfg.Gallery.Latency)
		opts.Indexer = c.index
	}
	c.session = capture.NewSession(sim, opts)

	if err := c.applyDefaults(); err != nil {
		c.session.Close()
		return nil, err
	}
	return c, nil
}

// applyDefaults submits the configured facing, flash and quality tier
func (c *Camera) applyDefaults() error {
	facing, err := types.ParseFacing(c.cfg.Capture.Facing)
	if err != nil {
		return err
	}
	if _, err := c.session.SetFacing(facing); err != nil {
		return err
	}

	flash, err := types.ParseFlashMode(c.cfg.Capture.Flash)
	if err != nil {
		return err
	}
	if _, err := c.session.SetFlashMode(flash); err != nil {
		return err
	}

	if c.cfg.Capture.Quality != "" {
		if _, err := c.session.SetCaptureQuality(types.QualityTier(c.cfg.Capture.Quality)); err != nil {
			return err
		}
	}
	return nil
}

// Open starts the camera and waits until it is ready
func (c *Camera) Open(ctx context.Context) error {
	if err := c.session.Start(); err != nil {
		return err
	}
	if err := c.session.WaitOpen(ctx); err != nil {
		return err
	}
	logger.WithComponent("camera").Debug().Msg("camera ready")
	return nil
}

// Capture takes a picture and delivers it according to req
func (c *Camera) Capture(ctx context.Context, req types.CaptureRequest) (*output.Descriptor, error) {
	return c.session.Capture(ctx, req)
}

// CaptureDefault takes a picture with the configured request defaults
func (c *Camera) CaptureDefault(ctx context.Context) (*output.Descriptor, error) {
	req, err := c.cfg.CaptureRequest()
	if err != nil {
		return nil, err
	}
	return c.session.Capture(ctx, req)
}

// Inspect reads the header of an image file
func (c *Camera) Inspect(path string) (processing.ImageInfo, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return processing.ImageInfo{}, fmt.Errorf("failed to read image: %w", err)
	}
	return c.processor.Inspect(data)
}

// Session returns the underlying capture session
func (c *Camera) Session() *capture.Session {
	return c.session
}

// Driver returns the simulated sensor
func (c *Camera) Driver() *driver.Simulated {
	return c.driver
}

// Index returns the media index, or nil when the gallery is disabled
func (c *Camera) Index() *gallery.LocalIndex {
	return c.index
}

// Config returns the configuration the camera was built from
func (c *Camera) Config() *config.Config {
	return c.cfg
}

// Close stops the camera and the capture worker
func (c *Camera) Close() error {
	return c.session.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
