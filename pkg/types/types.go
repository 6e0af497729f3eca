package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Size represents a picture resolution in pixels
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Area returns the pixel area of the size. It is computed in 64 bits so that
// unbounded match targets do not overflow.
func (s Size) Area() int64 {
	return int64(s.Width) * int64(s.Height)
}

// String returns the "WxH" form of the size
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses a size in the "WxH" format
func ParseSize(value string) (Size, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(value)), "x")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("%w: size %q is not in WxH format", ErrInvalidArgument, value)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Size{}, fmt.Errorf("%w: size width %q: %v", ErrInvalidArgument, parts[0], err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return Size{}, fmt.Errorf("%w: size height %q: %v", ErrInvalidArgument, parts[1], err)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("%w: size %q must be positive", ErrInvalidArgument, value)
	}
	return Size{Width: w, Height: h}, nil
}

// Facing selects the front or back camera
type Facing int

const (
	FacingFront Facing = 1
	FacingBack  Facing = 2
)

// Valid reports whether f is a known facing value
func (f Facing) Valid() bool {
	return f == FacingFront || f == FacingBack
}

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	default:
		return "facing(" + strconv.Itoa(int(f)) + ")"
	}
}

// ParseFacing parses "front" or "back"
func ParseFacing(value string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "front":
		return FacingFront, nil
	case "back":
		return FacingBack, nil
	}
	return 0, fmt.Errorf("%w: invalid camera type: %s", ErrInvalidArgument, value)
}

// FlashMode is the caller-facing flash setting
type FlashMode int

const (
	FlashModeOff  FlashMode = 0
	FlashModeOn   FlashMode = 1
	FlashModeAuto FlashMode = 2
)

func (m FlashMode) Valid() bool {
	return m >= FlashModeOff && m <= FlashModeAuto
}

// ParseFlashMode parses "off", "on" or "auto"
func ParseFlashMode(value string) (FlashMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off":
		return FlashModeOff, nil
	case "on":
		return FlashModeOn, nil
	case "auto":
		return FlashModeAuto, nil
	}
	return 0, fmt.Errorf("%w: invalid flash mode: %s", ErrInvalidArgument, value)
}

// TorchMode is the caller-facing torch setting
type TorchMode int

const (
	TorchModeOff  TorchMode = 0
	TorchModeOn   TorchMode = 1
	TorchModeAuto TorchMode = 2
)

// ParseTorchMode parses "off", "on" or "auto"
func ParseTorchMode(value string) (TorchMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off":
		return TorchModeOff, nil
	case "on":
		return TorchModeOn, nil
	case "auto":
		return TorchModeAuto, nil
	}
	return 0, fmt.Errorf("%w: invalid torch mode: %s", ErrInvalidArgument, value)
}

// DriverFlash is the flash value understood by the sensor driver
type DriverFlash string

const (
	DriverFlashOff   DriverFlash = "off"
	DriverFlashOn    DriverFlash = "on"
	DriverFlashAuto  DriverFlash = "auto"
	DriverFlashTorch DriverFlash = "torch"
)

// CaptureTarget selects where a processed capture is delivered
type CaptureTarget int

const (
	TargetMemory     CaptureTarget = 0
	TargetDisk       CaptureTarget = 1
	TargetCameraRoll CaptureTarget = 2
	TargetTemp       CaptureTarget = 3
)

// Valid reports whether t is a known target
func (t CaptureTarget) Valid() bool {
	return t >= TargetMemory && t <= TargetTemp
}

// IsFile reports whether the target writes to the filesystem
func (t CaptureTarget) IsFile() bool {
	return t == TargetDisk || t == TargetCameraRoll || t == TargetTemp
}

func (t CaptureTarget) String() string {
	switch t {
	case TargetMemory:
		return "memory"
	case TargetDisk:
		return "disk"
	case TargetCameraRoll:
		return "cameraRoll"
	case TargetTemp:
		return "temp"
	default:
		return "target(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseTarget parses a target name. Matching is case-insensitive so that
// "cameraroll" and "cameraRoll" are both accepted.
func ParseTarget(value string) (CaptureTarget, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "memory":
		return TargetMemory, nil
	case "disk":
		return TargetDisk, nil
	case "cameraroll", "camera_roll", "camera-roll":
		return TargetCameraRoll, nil
	case "temp":
		return TargetTemp, nil
	}
	return 0, fmt.Errorf("%w: invalid capture target: %s", ErrInvalidArgument, value)
}

// UnmarshalJSON accepts either the numeric target or its name
func (t *CaptureTarget) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = CaptureTarget(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("%w: capture target must be a number or a name", ErrInvalidArgument)
	}
	parsed, err := ParseTarget(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CaptureMode selects still or video capture
type CaptureMode int

const (
	ModeStill CaptureMode = 0
	ModeVideo CaptureMode = 1
)

// QualityTier is a named sensor resolution preset
type QualityTier string

const (
	QualityLow     QualityTier = "low"
	QualityMedium  QualityTier = "medium"
	QualityHigh    QualityTier = "high"
	QualityPhoto   QualityTier = "photo"
	QualityPreview QualityTier = "preview"
	Quality480p    QualityTier = "480p"
	Quality720p    QualityTier = "720p"
	Quality1080p   QualityTier = "1080p"
)

// QualityTiers lists every known tier in export order
func QualityTiers() []QualityTier {
	return []QualityTier{QualityLow, QualityMedium, QualityHigh, QualityPhoto, QualityPreview, Quality480p, Quality720p, Quality1080p}
}

// ParseQualityTier normalizes a tier name
func ParseQualityTier(value string) (QualityTier, error) {
	tier := QualityTier(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range QualityTiers() {
		if tier == known {
			return tier, nil
		}
	}
	return "", fmt.Errorf("%w: invalid capture quality: %s", ErrInvalidArgument, value)
}

// Orientation is an EXIF orientation value (1-8). Zero means the orientation
// must be read from the metadata embedded in the capture.
type Orientation int

const (
	OrientationUnknown    Orientation = 0
	OrientationNormal     Orientation = 1
	OrientationFlipH      Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipV      Orientation = 4
	OrientationTranspose  Orientation = 5
	OrientationRotate270  Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRotate90   Orientation = 8
)

// Valid reports whether o is unknown or a legal EXIF orientation
func (o Orientation) Valid() bool {
	return o >= OrientationUnknown && o <= OrientationRotate90
}

// Default encode qualities
const (
	DefaultJPEGQuality = 80
	FileJPEGQuality    = 85
)

// CaptureRequest is the caller-supplied capture configuration. It is treated
// as immutable once a capture is admitted.
type CaptureRequest struct {
	Target      CaptureTarget `json:"target"`
	Mode        CaptureMode   `json:"mode,omitempty"`
	JPEGQuality int           `json:"jpegQuality,omitempty"`
	Mirror      bool          `json:"mirrorImage,omitempty"`
	PlaySound   bool          `json:"playSoundOnCapture,omitempty"`
	Quality     QualityTier   `json:"quality,omitempty"`
}

// EffectiveQuality returns the requested JPEG quality or the default
func (r CaptureRequest) EffectiveQuality() int {
	if r.JPEGQuality == 0 {
		return DefaultJPEGQuality
	}
	return r.JPEGQuality
}

// Validate checks the request for unsupported values
func (r CaptureRequest) Validate() error {
	if !r.Target.Valid() {
		return fmt.Errorf("%w: invalid capture target: %d", ErrInvalidArgument, int(r.Target))
	}
	switch r.Mode {
	case ModeStill:
	case ModeVideo:
		return fmt.Errorf("%w: video capture is not supported", ErrInvalidArgument)
	default:
		return fmt.Errorf("%w: invalid capture mode: %d", ErrInvalidArgument, int(r.Mode))
	}
	if r.JPEGQuality < 0 || r.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d must be between 1 and 100", ErrInvalidArgument, r.JPEGQuality)
	}
	if r.Quality != "" {
		if _, err := ParseQualityTier(string(r.Quality)); err != nil {
			return err
		}
	}
	return nil
}

// RawCapture is an encoded buffer delivered by the sensor driver, tagged
// with the orientation the sensor reported at capture time.
type RawCapture struct {
	Data        []byte
	Orientation Orientation
}
