// Package driver defines the camera sensor contract the capture session
// depends on, and a simulated sensor used by tests and the CLI.
package driver

import (
	"github.com/menta2k/camera-capture/pkg/types"
)

// PictureCallback receives the raw capture of a TakePicture call. It is
// invoked on the driver's own goroutine.
type PictureCallback func(raw types.RawCapture, err error)

// Driver is a camera sensor. Implementations must deliver the opened event
// and picture callbacks asynchronously, never from inside Open or
// TakePicture.
type Driver interface {
	Open() error
	Close() error
	IsOpened() bool

	StartPreview() error
	StopPreview() error

	SetFacing(facing types.Facing) error
	SetFlash(flash types.DriverFlash) error
	SetPictureSize(size types.Size) error
	SupportedPictureSizes() ([]types.Size, error)

	TakePicture(cb PictureCallback) error

	// OnOpened registers the handler of the "device is open" event
	OnOpened(fn func())
}

// ShutterSounder is implemented by drivers able to play a shutter sound
type ShutterSounder interface {
	PlayShutterSound()
}
