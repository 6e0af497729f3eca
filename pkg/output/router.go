// Package output delivers processed captures to memory, disk, the camera
// roll or the temporary cache.
package output

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/internal/utils"
	"github.com/menta2k/camera-capture/pkg/gallery"
	"github.com/menta2k/camera-capture/pkg/processing"
	"github.com/menta2k/camera-capture/pkg/types"
)

// Descriptor is the result of a delivered capture
type Descriptor struct {
	Target   types.CaptureTarget `json:"target"`
	Data     string              `json:"data,omitempty"`
	Path     string              `json:"path,omitempty"`
	MediaURI string              `json:"mediaUri,omitempty"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`

	// Media resolves with the content URI of a camera roll capture. It is
	// nil for other targets and may never resolve.
	Media *gallery.Pending `json:"-"`
}

// Dirs are the destination directories of file targets
type Dirs struct {
	Pictures string `json:"pictures" yaml:"pictures"`
	DCIM     string `json:"dcim" yaml:"dcim"`
	Cache    string `json:"cache" yaml:"cache"`
}

// Router encodes processed images and writes them to their destination
type Router struct {
	fs        afero.Fs
	dirs      Dirs
	registrar *gallery.Registrar
	now       func() time.Time
}

// Option configures a Router
type Option func(*Router)

// WithClock replaces the clock used for file names
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a router writing to fs. registrar may be nil, in which
// case file targets are never registered with a media index.
func NewRouter(fs afero.Fs, dirs Dirs, registrar *gallery.Registrar, opts ...Option) *Router {
	r := &Router{
		fs:        fs,
		dirs:      dirs,
		registrar: registrar,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dirs returns the configured destination directories
func (r *Router) Dirs() Dirs {
	return r.dirs
}

// Route delivers img according to req
func (r *Router) Route(img *processing.MutableImage, req types.CaptureRequest) (*Descriptor, error) {
	log := logger.WithComponent("output")

	info := processing.GetImageInfo(img.Image())
	desc := &Descriptor{Target: req.Target, Width: info.Width, Height: info.Height}

	switch req.Target {
	case types.TargetMemory:
		data, err := img.Encode(req.EffectiveQuality())
		if err != nil {
			return nil, err
		}
		desc.Data = base64.StdEncoding.EncodeToString(data)

	case types.TargetDisk:
		path, err := r.writeFile(img, r.dirs.Pictures, r.timestampName(), types.FileJPEGQuality)
		if err != nil {
			log.Error().Err(err).Str("target", req.Target.String()).Msg("failed to write capture")
			return nil, err
		}
		desc.Path = path
		r.registrar.ScanBestEffort(path)

	case types.TargetCameraRoll:
		path, err := r.writeFile(img, r.dirs.DCIM, r.timestampName(), req.EffectiveQuality())
		if err != nil {
			log.Error().Err(err).Str("target", req.Target.String()).Msg("failed to write capture")
			return nil, err
		}
		desc.Path = path
		desc.Media = r.registrar.Register(path)
		if uri, ok := desc.Media.URI(); ok {
			desc.MediaURI = uri
		}

	case types.TargetTemp:
		path, err := r.writeFile(img, r.dirs.Cache, r.tempName(), types.FileJPEGQuality)
		if err != nil {
			log.Error().Err(err).Str("target", req.Target.String()).Msg("failed to write capture")
			return nil, err
		}
		desc.Path = path
		r.registrar.ScanBestEffort(path)

	default:
		return nil, fmt.Errorf("%w: invalid capture target: %d", types.ErrInvalidArgument, int(req.Target))
	}

	log.Info().
		Str("target", req.Target.String()).
		Str("path", desc.Path).
		Int("width", desc.Width).
		Int("height", desc.Height).
		Msg("capture delivered")
	return desc, nil
}

func (r *Router) timestampName() string {
	return "IMG_" + r.now().Format("20060102_150405") + ".jpg"
}

func (r *Router) tempName() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "IMG_" + r.now().Format("20060102_150405") + id[:12] + ".jpg"
}

// writeFile encodes img into a temporary file next to the destination and
// renames it into place. A failed write leaves no file behind.
func (r *Router) writeFile(img *processing.MutableImage, dir, name string, quality int) (string, error) {
	if err := utils.EnsureDir(r.fs, dir); err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrDirectoryCreation, dir, err)
	}

	data, err := img.Encode(quality)
	if err != nil {
		return "", err
	}

	f, err := afero.TempFile(r.fs, dir, ".capture-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrFileWrite, err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		r.fs.Remove(tmp)
		return "", fmt.Errorf("%w: %v", types.ErrFileWrite, err)
	}
	if err := f.Close(); err != nil {
		r.fs.Remove(tmp)
		return "", fmt.Errorf("%w: %v", types.ErrFileWrite, err)
	}

	path := filepath.Join(dir, name)
	if err := r.fs.Rename(tmp, path); err != nil {
		r.fs.Remove(tmp)
		return "", fmt.Errorf("%w: %v", types.ErrFileWrite, err)
	}
	return path, nil
}
