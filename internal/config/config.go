package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tool configuration. Zero fields in a loaded file keep
// their defaults.
type Config struct {
	ProjectsDir string `yaml:"projects_dir"`
	OutputDir   string `yaml:"output_dir"`
	TempDir     string `yaml:"temp_dir"`

	Export ExportConfig `yaml:"export"`
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Fonts maps a family name to a TTF/OTF file usable by text overlays.
	Fonts map[string]string `yaml:"fonts"`

	ShowStats bool `yaml:"show_stats"`
}

type ExportConfig struct {
	Settings    Settings      `yaml:"settings"`
	BatchSize   int           `yaml:"batch_size"`
	Workers     int           `yaml:"workers"`
	Codec       string        `yaml:"codec"`
	JPEGQuality int           `yaml:"jpeg_quality"`
	Spool       string        `yaml:"spool"`
	SeekTimeout time.Duration `yaml:"seek_timeout"`
	MaxDuration float64       `yaml:"max_duration"`
}

type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// Settings are the user-facing export options.
type Settings struct {
	Quality      string `yaml:"quality"`
	FPS          int    `yaml:"fps"`
	IncludeAudio bool   `yaml:"include_audio"`
}

// Supported frame rates.
const (
	MinFPS = 24
	MaxFPS = 60
)

// Quality presets.
const (
	Quality720p  = "720p"
	Quality1080p = "1080p"
	Quality1440p = "1440p"
	Quality2160p = "2160p"
)

// QualityPreset is the output height and x264 CRF for a quality name.
type QualityPreset struct {
	Height int
	CRF    int
}

var presets = map[string]QualityPreset{
	Quality720p:  {Height: 720, CRF: 26},
	Quality1080p: {Height: 1080, CRF: 25},
	Quality1440p: {Height: 1440, CRF: 24},
	Quality2160p: {Height: 2160, CRF: 23},
}

var ErrInvalidSettings = errors.New("invalid export settings")

// Preset looks up the quality preset table.
func Preset(quality string) (QualityPreset, error) {
	p, ok := presets[quality]
	if !ok {
		return QualityPreset{}, fmt.Errorf("%w: unknown quality %q", ErrInvalidSettings, quality)
	}
	return p, nil
}

func DefaultSettings() Settings {
	return Settings{Quality: Quality1080p, FPS: 30, IncludeAudio: true}
}

func (s Settings) Validate() error {
	if _, err := Preset(s.Quality); err != nil {
		return err
	}
	if s.FPS < MinFPS || s.FPS > MaxFPS {
		return fmt.Errorf("%w: fps %d outside [%d,%d]", ErrInvalidSettings, s.FPS, MinFPS, MaxFPS)
	}
	return nil
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func Default() *Config {
	return &Config{
		ProjectsDir: "projects",
		OutputDir:   "output",
		TempDir:     os.TempDir(),
		Export: ExportConfig{
			Settings:    DefaultSettings(),
			BatchSize:   15,
			Workers:     runtime.NumCPU(),
			Codec:       "png",
			JPEGQuality: 92,
			Spool:       "disk",
			SeekTimeout: 5 * time.Second,
			MaxDuration: 600,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Fonts: make(map[string]string),
	}
}

func findConfigFile() string {
	candidates := []string{
		"./zoomreel.yaml",
		"./zoomreel.yml",
		filepath.Join(os.Getenv("HOME"), ".zoomreel", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
