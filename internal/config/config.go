package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/pkg/output"
	"github.com/menta2k/camera-capture/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. CAMERA_CAPTURE_SERVER_PORT
const EnvPrefix = "CAMERA_CAPTURE"

// Config holds the application configuration
type Config struct {
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`
	Capture  CaptureConfig `mapstructure:"capture" yaml:"capture" json:"capture"`
	Driver   DriverConfig  `mapstructure:"driver" yaml:"driver" json:"driver"`
	Gallery  GalleryConfig `mapstructure:"gallery" yaml:"gallery" json:"gallery"`
	Server   ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
	LogLevel string        `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
}

// StorageConfig holds the destination directories of file targets
type StorageConfig struct {
	PicturesDir string `mapstructure:"pictures_dir" yaml:"pictures_dir" json:"pictures_dir"`
	DCIMDir     string `mapstructure:"dcim_dir" yaml:"dcim_dir" json:"dcim_dir"`
	CacheDir    string `mapstructure:"cache_dir" yaml:"cache_dir" json:"cache_dir"`
}

// CaptureConfig holds the defaults of a capture request
type CaptureConfig struct {
	Target      string `mapstructure:"target" yaml:"target" json:"target"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	Mirror      bool   `mapstructure:"mirror" yaml:"mirror" json:"mirror"`
	PlaySound   bool   `mapstructure:"play_sound" yaml:"play_sound" json:"play_sound"`
	Quality     string `mapstructure:"quality" yaml:"quality" json:"quality"`
	Facing      string `mapstructure:"facing" yaml:"facing" json:"facing"`
	Flash       string `mapstructure:"flash" yaml:"flash" json:"flash"`
}

// DriverConfig configures the simulated sensor
type DriverConfig struct {
	Sizes        []string      `mapstructure:"sizes" yaml:"sizes" json:"sizes"`
	OpenDelay    time.Duration `mapstructure:"open_delay" yaml:"open_delay" json:"open_delay"`
	CaptureDelay time.Duration `mapstructure:"capture_delay" yaml:"capture_delay" json:"capture_delay"`
	Format       string        `mapstructure:"format" yaml:"format" json:"format"`
	Orientation  int           `mapstructure:"orientation" yaml:"orientation" json:"orientation"`
	SourceDir    string        `mapstructure:"source_dir" yaml:"source_dir" json:"source_dir"`
}

// GalleryConfig configures the media index
type GalleryConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Latency time.Duration `mapstructure:"latency" yaml:"latency" json:"latency"`

	// MediaWait bounds how long a camera roll capture waits for its media URI
	MediaWait time.Duration `mapstructure:"media_wait" yaml:"media_wait" json:"media_wait"`
}

// ServerConfig configures the HTTP control surface
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port" json:"port"`
}

// Default returns a configuration with default values
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		cache = os.TempDir()
	}

	return &Config{
		Storage: StorageConfig{
			PicturesDir: filepath.Join(home, "Pictures"),
			DCIMDir:     filepath.Join(home, "DCIM", "Camera"),
			CacheDir:    filepath.Join(cache, "camera-capture"),
		},
		Capture: CaptureConfig{
			Target:      "memory",
			JPEGQuality: types.DefaultJPEGQuality,
			Facing:      "back",
			Flash:       "off",
		},
		Driver: DriverConfig{
			Sizes:     []string{"320x240", "640x480", "1280x720", "1920x1080"},
			OpenDelay: 100 * time.Millisecond,
			Format:    "jpeg",
		},
		Gallery: GalleryConfig{
			Enabled:   true,
			MediaWait: 5 * time.Second,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		LogLevel: "info",
	}
}

// newViper returns a viper instance preloaded with defaults and
// environment overrides
func newViper() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetDefault("storage.pictures_dir", d.Storage.PicturesDir)
	v.SetDefault("storage.dcim_dir", d.Storage.DCIMDir)
	v.SetDefault("storage.cache_dir", d.Storage.CacheDir)
	v.SetDefault("capture.target", d.Capture.Target)
	v.SetDefault("capture.jpeg_quality", d.Capture.JPEGQuality)
	v.SetDefault("capture.mirror", d.Capture.Mirror)
	v.SetDefault("capture.play_sound", d.Capture.PlaySound)
	v.SetDefault("capture.quality", d.Capture.Quality)
	v.SetDefault("capture.facing", d.Capture.Facing)
	v.SetDefault("capture.flash", d.Capture.Flash)
	v.SetDefault("driver.sizes", d.Driver.Sizes)
	v.SetDefault("driver.open_delay", d.Driver.OpenDelay)
	v.SetDefault("driver.capture_delay", d.Driver.CaptureDelay)
	v.SetDefault("driver.format", d.Driver.Format)
	v.SetDefault("driver.orientation", d.Driver.Orientation)
	v.SetDefault("driver.source_dir", d.Driver.SourceDir)
	v.SetDefault("gallery.enabled", d.Gallery.Enabled)
	v.SetDefault("gallery.latency", d.Gallery.Latency)
	v.SetDefault("gallery.media_wait", d.Gallery.MediaWait)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file at path. A missing file yields the
// defaults with environment overrides applied; an empty path means
// GetConfigPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	cfg, err := LoadFromFile(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.WithComponent("config").Debug().Str("path", path).Msg("config file not found, using defaults")
	return decode(newViper())
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	logger.WithComponent("config").Debug().Str("path", filename).Msg("config loaded")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.PicturesDir == "" || c.Storage.DCIMDir == "" || c.Storage.CacheDir == "" {
		return fmt.Errorf("storage directories cannot be empty")
	}

	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be between 1 and 100")
	}

	if _, err := c.CaptureRequest(); err != nil {
		return err
	}

	if _, err := types.ParseFacing(c.Capture.Facing); err != nil {
		return fmt.Errorf("capture.facing: %w", err)
	}

	if _, err := types.ParseFlashMode(c.Capture.Flash); err != nil {
		return fmt.Errorf("capture.flash: %w", err)
	}

	sizes, err := c.PictureSizes()
	if err != nil {
		return err
	}
	if len(sizes) == 0 {
		return fmt.Errorf("driver.sizes cannot be empty")
	}

	if c.Driver.Format != "jpeg" && c.Driver.Format != "webp" {
		return fmt.Errorf("driver.format must be jpeg or webp")
	}

	if !types.Orientation(c.Driver.Orientation).Valid() {
		return fmt.Errorf("driver.orientation must be between 0 and 8")
	}

	if c.Driver.OpenDelay < 0 || c.Driver.CaptureDelay < 0 || c.Gallery.Latency < 0 || c.Gallery.MediaWait < 0 {
		return fmt.Errorf("delays cannot be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	return nil
}

// Dirs returns the output directories
func (c *Config) Dirs() output.Dirs {
	return output.Dirs{
		Pictures: c.Storage.PicturesDir,
		DCIM:     c.Storage.DCIMDir,
		Cache:    c.Storage.CacheDir,
	}
}

// PictureSizes parses the simulated sensor sizes
func (c *Config) PictureSizes() ([]types.Size, error) {
	sizes := make([]types.Size, 0, len(c.Driver.Sizes))
	for _, s := range c.Driver.Sizes {
		size, err := types.ParseSize(s)
		if err != nil {
			return nil, fmt.Errorf("driver.sizes: %w", err)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

// CaptureRequest builds the default capture request
func (c *Config) CaptureRequest() (types.CaptureRequest, error) {
	target, err := types.ParseTarget(c.Capture.Target)
	if err != nil {
		return types.CaptureRequest{}, fmt.Errorf("capture.target: %w", err)
	}
	req := types.CaptureRequest{
		Target:      target,
		JPEGQuality: c.Capture.JPEGQuality,
		Mirror:      c.Capture.Mirror,
		PlaySound:   c.Capture.PlaySound,
		Quality:     types.QualityTier(c.Capture.Quality),
	}
	if err := req.Validate(); err != nil {
		return types.CaptureRequest{}, fmt.Errorf("capture: %w", err)
	}
	return req, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "camera-capture", "config.yaml")
}
