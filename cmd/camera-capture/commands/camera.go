package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	cameracapture "github.com/menta2k/camera-capture"
	"github.com/menta2k/camera-capture/pkg/capture"
)

// openTimeout bounds how long a command waits for the sensor to open
const openTimeout = 10 * time.Second

// openCamera builds a camera from the loaded configuration and waits until
// it is ready. The caller must Close it.
func openCamera(ctx context.Context, events capture.EventSink) (*cameracapture.Camera, error) {
	camera, err := cameracapture.NewWithConfig(cfg, afero.NewOsFs(), events)
	if err != nil {
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := camera.Open(openCtx); err != nil {
		camera.Close()
		return nil, fmt.Errorf("failed to open camera: %w", err)
	}
	return camera, nil
}
