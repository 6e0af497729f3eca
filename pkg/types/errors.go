package types

import "errors"

var (
	// ErrNoDevice is returned when no camera driver is attached
	ErrNoDevice = errors.New("no camera found")

	// ErrInvalidArgument is returned for unsupported enum values and
	// out-of-range options
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation needs an open camera,
	// e.g. selecting a size from an empty supported set
	ErrInvalidState = errors.New("invalid camera state")

	// ErrMutationFailed is returned when the image codec cannot decode or
	// encode a capture
	ErrMutationFailed = errors.New("image mutation failed")

	// ErrDirectoryCreation is returned when a destination directory cannot
	// be created
	ErrDirectoryCreation = errors.New("failed to create media directory")

	// ErrFileWrite is returned when writing the image file fails
	ErrFileWrite = errors.New("failed to save image file")

	// ErrBusy is returned when a capture is requested while another one is
	// still waiting for the sensor
	ErrBusy = errors.New("capture already in progress")
)
