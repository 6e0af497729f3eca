package output

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/menta2k/camera-capture/pkg/gallery"
	"github.com/menta2k/camera-capture/pkg/processing"
	"github.com/menta2k/camera-capture/pkg/types"
)

var testDirs = Dirs{
	Pictures: "/storage/Pictures",
	DCIM:     "/storage/DCIM",
	Cache:    "/cache",
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

// createTestImage creates a gradient image so encode quality matters
func createTestImage(width, height int) *processing.MutableImage {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	return processing.NewMutableImage(img)
}

func newTestRouter(fs afero.Fs) (*Router, *gallery.Registrar, *gallery.LocalIndex) {
	idx := gallery.NewLocalIndex(fs, 0)
	reg := gallery.NewRegistrar(idx)
	return NewRouter(fs, testDirs, reg, WithClock(fixedClock)), reg, idx
}

// countFiles returns the number of regular files in fs
func countFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	n := 0
	afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestRouteMemory(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, _, _ := newTestRouter(fs)
	img := createTestImage(64, 48)

	desc, err := r.Route(img, types.CaptureRequest{Target: types.TargetMemory, JPEGQuality: 80})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if desc.Path != "" || desc.MediaURI != "" || desc.Media != nil {
		t.Errorf("Memory capture must not have path or media: %+v", desc)
	}

	data, err := base64.StdEncoding.DecodeString(desc.Data)
	if err != nil {
		t.Fatalf("Data is not base64: %v", err)
	}
	expected, _ := img.Encode(80)
	if !bytes.Equal(data, expected) {
		t.Error("Memory payload differs from encode at quality 80")
	}
	if desc.Width != 64 || desc.Height != 48 {
		t.Errorf("Expected 64x48, got %dx%d", desc.Width, desc.Height)
	}

	if n := countFiles(t, fs); n != 0 {
		t.Errorf("Memory capture wrote %d files", n)
	}
}

func TestRouteMemoryDefaultQuality(t *testing.T) {
	r, _, _ := newTestRouter(afero.NewMemMapFs())
	img := createTestImage(32, 32)

	desc, err := r.Route(img, types.CaptureRequest{Target: types.TargetMemory})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := base64.StdEncoding.DecodeString(desc.Data)
	expected, _ := img.Encode(types.DefaultJPEGQuality)
	if !bytes.Equal(data, expected) {
		t.Error("Unset quality must encode at the default quality")
	}
}

func TestRouteDiskUsesFixedQuality(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, reg, idx := newTestRouter(fs)
	img := createTestImage(80, 60)

	desc, err := r.Route(img, types.CaptureRequest{Target: types.TargetDisk, JPEGQuality: 10})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	expectedPath := filepath.Join(testDirs.Pictures, "IMG_20240309_140507.jpg")
	if desc.Path != expectedPath {
		t.Errorf("Expected %s, got %s", expectedPath, desc.Path)
	}
	if desc.Data != "" || desc.Media != nil {
		t.Errorf("Disk capture must only carry a path: %+v", desc)
	}

	written, err := afero.ReadFile(fs, desc.Path)
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	expected, _ := img.Encode(types.FileJPEGQuality)
	if !bytes.Equal(written, expected) {
		t.Error("Disk file was not encoded at the fixed file quality")
	}

	reg.Wait()
	if len(idx.Entries()) != 1 {
		t.Errorf("Expected a best-effort scan, got %d entries", len(idx.Entries()))
	}
}

func TestRouteCameraRoll(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, _, _ := newTestRouter(fs)
	img := createTestImage(80, 60)

	desc, err := r.Route(img, types.CaptureRequest{Target: types.TargetCameraRoll, JPEGQuality: 60})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if !strings.HasPrefix(desc.Path, testDirs.DCIM+string(filepath.Separator)) {
		t.Errorf("Expected a path under %s, got %s", testDirs.DCIM, desc.Path)
	}
	if desc.Media == nil {
		t.Fatal("Camera roll capture must carry a pending media URI")
	}

	uri, err := desc.Media.Wait(context.Background())
	if err != nil {
		t.Fatalf("media registration failed: %v", err)
	}
	if !strings.HasPrefix(uri, gallery.MediaURIPrefix) {
		t.Errorf("Unexpected media URI %q", uri)
	}
	if desc.MediaURI != "" && desc.MediaURI != uri {
		t.Errorf("Descriptor URI %q differs from resolved %q", desc.MediaURI, uri)
	}

	written, _ := afero.ReadFile(fs, desc.Path)
	expected, _ := img.Encode(60)
	if !bytes.Equal(written, expected) {
		t.Error("Camera roll file was not encoded at the request quality")
	}
}

func TestRouteTempUniqueNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, _, _ := newTestRouter(fs)
	img := createTestImage(16, 16)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		desc, err := r.Route(img, types.CaptureRequest{Target: types.TargetTemp})
		if err != nil {
			t.Fatalf("Route failed: %v", err)
		}
		if filepath.Dir(desc.Path) != testDirs.Cache {
			t.Errorf("Temp capture outside cache dir: %s", desc.Path)
		}
		base := filepath.Base(desc.Path)
		if !strings.HasPrefix(base, "IMG_20240309_140507") || !strings.HasSuffix(base, ".jpg") {
			t.Errorf("Unexpected temp name %s", base)
		}
		if seen[desc.Path] {
			t.Errorf("Temp name reused: %s", desc.Path)
		}
		seen[desc.Path] = true
	}

	if n := countFiles(t, fs); n != 5 {
		t.Errorf("Expected 5 temp files, got %d", n)
	}
}

func TestRouteDirectoryCreationFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	r := NewRouter(fs, testDirs, nil, WithClock(fixedClock))

	for _, target := range []types.CaptureTarget{types.TargetDisk, types.TargetCameraRoll, types.TargetTemp} {
		_, err := r.Route(createTestImage(8, 8), types.CaptureRequest{Target: target})
		if !errors.Is(err, types.ErrDirectoryCreation) {
			t.Errorf("%s: expected ErrDirectoryCreation, got %v", target, err)
		}
	}
}

// failingFs fails every file open after directories were created
type failingFs struct {
	afero.Fs
}

func (f failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return nil, errors.New("disk full")
}

func TestRouteWriteFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	r := NewRouter(failingFs{base}, testDirs, nil, WithClock(fixedClock))

	_, err := r.Route(createTestImage(8, 8), types.CaptureRequest{Target: types.TargetDisk})
	if !errors.Is(err, types.ErrFileWrite) {
		t.Fatalf("Expected ErrFileWrite, got %v", err)
	}
	if n := countFiles(t, base); n != 0 {
		t.Errorf("Failed write left %d files behind", n)
	}
}

// writeFailFs opens files whose writes fail as on a full device
type writeFailFs struct {
	afero.Fs
}

type writeFailFile struct {
	afero.File
}

func (f writeFailFile) Write(p []byte) (int, error) {
	return 0, errors.New("no space left on device")
}

func (f writeFailFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return writeFailFile{file}, nil
}

func TestRouteWriteErrorIsFileWrite(t *testing.T) {
	base := afero.NewMemMapFs()
	r := NewRouter(writeFailFs{base}, testDirs, nil, WithClock(fixedClock))

	for _, target := range []types.CaptureTarget{types.TargetDisk, types.TargetCameraRoll, types.TargetTemp} {
		_, err := r.Route(createTestImage(64, 64), types.CaptureRequest{Target: target})
		if !errors.Is(err, types.ErrFileWrite) {
			t.Errorf("%s: expected ErrFileWrite, got %v", target, err)
		}
		if errors.Is(err, types.ErrMutationFailed) {
			t.Errorf("%s: write error reported as a mutation failure: %v", target, err)
		}
	}
	if n := countFiles(t, base); n != 0 {
		t.Errorf("Failed writes left %d files behind", n)
	}
}

// renameFailFs fails the final rename
type renameFailFs struct {
	afero.Fs
}

func (f renameFailFs) Rename(oldname, newname string) error {
	return errors.New("rename refused")
}

func TestRouteRenameFailureLeavesNoFile(t *testing.T) {
	base := afero.NewMemMapFs()
	r := NewRouter(renameFailFs{base}, testDirs, nil, WithClock(fixedClock))

	_, err := r.Route(createTestImage(8, 8), types.CaptureRequest{Target: types.TargetCameraRoll})
	if !errors.Is(err, types.ErrFileWrite) {
		t.Fatalf("Expected ErrFileWrite, got %v", err)
	}
	if n := countFiles(t, base); n != 0 {
		t.Errorf("Failed rename left %d files behind", n)
	}
}

func TestRouteInvalidTarget(t *testing.T) {
	r, _, _ := newTestRouter(afero.NewMemMapFs())
	_, err := r.Route(createTestImage(8, 8), types.CaptureRequest{Target: types.CaptureTarget(9)})
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestRouteWithoutRegistrar(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := NewRouter(fs, testDirs, nil, WithClock(fixedClock))

	desc, err := r.Route(createTestImage(8, 8), types.CaptureRequest{Target: types.TargetCameraRoll})
	if err != nil {
		t.Fatal(err)
	}
	if desc.Media == nil {
		t.Fatal("Expected a resolved pending value")
	}
	if _, ok := desc.Media.URI(); ok {
		t.Error("No index must yield no URI")
	}
}

func BenchmarkRouteDisk(b *testing.B) {
	fs := afero.NewMemMapFs()
	r := NewRouter(fs, testDirs, nil)
	img := createTestImage(640, 480)
	req := types.CaptureRequest{Target: types.TargetDisk}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Route(img, req)
	}
}
