package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/menta2k/camera-capture/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.Capture.JPEGQuality != types.DefaultJPEGQuality {
		t.Errorf("Expected default quality %d, got %d", types.DefaultJPEGQuality, cfg.Capture.JPEGQuality)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"quality", func(c *Config) { c.Capture.JPEGQuality = 0 }},
		{"target", func(c *Config) { c.Capture.Target = "cloud" }},
		{"tier", func(c *Config) { c.Capture.Quality = "8k" }},
		{"facing", func(c *Config) { c.Capture.Facing = "side" }},
		{"flash", func(c *Config) { c.Capture.Flash = "strobe" }},
		{"sizes", func(c *Config) { c.Driver.Sizes = []string{"640by480"} }},
		{"empty sizes", func(c *Config) { c.Driver.Sizes = nil }},
		{"format", func(c *Config) { c.Driver.Format = "gif" }},
		{"orientation", func(c *Config) { c.Driver.Orientation = 9 }},
		{"delay", func(c *Config) { c.Driver.OpenDelay = -time.Second }},
		{"media wait", func(c *Config) { c.Gallery.MediaWait = -time.Second }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"dirs", func(c *Config) { c.Storage.DCIMDir = "" }},
	}

	for _, test := range tests {
		cfg := Default()
		test.modify(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", test.name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Capture.Target = "cameraRoll"
	cfg.Capture.JPEGQuality = 60
	cfg.Driver.OpenDelay = 250 * time.Millisecond
	cfg.Driver.Sizes = []string{"100x100", "200x200"}
	cfg.Server.Port = 9090

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Capture.Target != "cameraRoll" || loaded.Capture.JPEGQuality != 60 {
		t.Errorf("Capture section not restored: %+v", loaded.Capture)
	}
	if loaded.Driver.OpenDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms open delay, got %v", loaded.Driver.OpenDelay)
	}
	if len(loaded.Driver.Sizes) != 2 || loaded.Driver.Sizes[1] != "200x200" {
		t.Errorf("Unexpected sizes %v", loaded.Driver.Sizes)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", loaded.Server.Port)
	}

	req, err := loaded.CaptureRequest()
	if err != nil {
		t.Fatal(err)
	}
	if req.Target != types.TargetCameraRoll || req.JPEGQuality != 60 {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Capture.JPEGQuality != types.DefaultJPEGQuality || cfg.Driver.Format != "jpeg" {
		t.Errorf("Defaults not applied: %+v", cfg)
	}
	if cfg.Gallery.MediaWait != 5*time.Second {
		t.Errorf("Expected default media wait 5s, got %s", cfg.Gallery.MediaWait)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Partial config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromFile must fail for a missing file")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("CAMERA_CAPTURE_SERVER_PORT", "9191")
	t.Setenv("CAMERA_CAPTURE_CAPTURE_TARGET", "temp")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Expected port from environment, got %d", cfg.Server.Port)
	}
	if cfg.Capture.Target != "temp" {
		t.Errorf("Expected target from environment, got %s", cfg.Capture.Target)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestPictureSizes(t *testing.T) {
	cfg := Default()
	sizes, err := cfg.PictureSizes()
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 4 || sizes[3] != (types.Size{Width: 1920, Height: 1080}) {
		t.Errorf("Unexpected sizes %v", sizes)
	}
	if cfg.Dirs().DCIM != cfg.Storage.DCIMDir {
		t.Error("Dirs does not mirror storage config")
	}
}
