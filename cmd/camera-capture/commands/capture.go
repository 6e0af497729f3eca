package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/camera-capture/internal/logger"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take one or more pictures",
	Long: `Open the camera, take pictures one after another and print a JSON
descriptor for each. Flags override the capture section of the
configuration file.`,
	Example: `  # Save a picture to the camera roll
  camera-capture capture --target cameraRoll

  # Three mirrored front camera pictures at the lowest resolution
  camera-capture capture --facing front --mirror --quality low --count 3

  # Base64 JPEG on stdout
  camera-capture capture --target memory --jpeg-quality 60`,
	RunE: runCapture,
}

var captureOpts struct {
	target      string
	quality     string
	jpegQuality int
	mirror      bool
	facing      string
	flash       string
	sound       bool
	count       int
	mediaWait   time.Duration
}

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.StringVar(&captureOpts.target, "target", "", "capture target: memory, disk, cameraRoll or temp")
	f.StringVar(&captureOpts.quality, "quality", "", "quality tier: low, medium, high, photo, preview, 480p, 720p, 1080p")
	f.IntVar(&captureOpts.jpegQuality, "jpeg-quality", 0, "JPEG quality for memory and camera roll targets (1-100)")
	f.BoolVar(&captureOpts.mirror, "mirror", false, "mirror the image horizontally")
	f.StringVar(&captureOpts.facing, "facing", "", "camera: front or back")
	f.StringVar(&captureOpts.flash, "flash", "", "flash mode: off, on or auto")
	f.BoolVar(&captureOpts.sound, "sound", false, "play the shutter sound")
	f.IntVar(&captureOpts.count, "count", 1, "number of pictures to take")
	f.DurationVar(&captureOpts.mediaWait, "media-wait", 0, "how long to wait for a camera roll media URI (default gallery.media_wait)")
}

// applyCaptureFlags copies the flags the user set onto the configuration
func applyCaptureFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("target") {
		cfg.Capture.Target = captureOpts.target
	}
	if f.Changed("quality") {
		cfg.Capture.Quality = captureOpts.quality
	}
	if f.Changed("jpeg-quality") {
		cfg.Capture.JPEGQuality = captureOpts.jpegQuality
	}
	if f.Changed("mirror") {
		cfg.Capture.Mirror = captureOpts.mirror
	}
	if f.Changed("facing") {
		cfg.Capture.Facing = captureOpts.facing
	}
	if f.Changed("flash") {
		cfg.Capture.Flash = captureOpts.flash
	}
	if f.Changed("sound") {
		cfg.Capture.PlaySound = captureOpts.sound
	}
	if f.Changed("media-wait") {
		cfg.Gallery.MediaWait = captureOpts.mediaWait
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureOpts.count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	applyCaptureFlags(cmd)

	req, err := cfg.CaptureRequest()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	camera, err := openCamera(ctx, nil)
	if err != nil {
		return err
	}
	defer camera.Close()

	log := logger.WithComponent("cli")
	encoder := json.NewEncoder(cmd.OutOrStdout())
	for i := 0; i < captureOpts.count; i++ {
		desc, err := camera.Capture(ctx, req)
		if err != nil {
			return fmt.Errorf("capture %d failed: %w", i+1, err)
		}

		out := *desc
		if out.Media != nil && out.MediaURI == "" {
			waitCtx, cancel := context.WithTimeout(ctx, cfg.Gallery.MediaWait)
			uri, err := out.Media.Wait(waitCtx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("path", out.Path).Msg("media URI not available")
			} else {
				out.MediaURI = uri
			}
		}

		log.Debug().Int("capture", i+1).Str("target", req.Target.String()).Str("path", out.Path).Msg("capture complete")
		if err := encoder.Encode(out); err != nil {
			return err
		}
	}
	return nil
}
