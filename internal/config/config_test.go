package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetTable(t *testing.T) {
	tests := []struct {
		quality string
		height  int
		crf     int
	}{
		{"720p", 720, 26},
		{"1080p", 1080, 25},
		{"1440p", 1440, 24},
		{"2160p", 2160, 23},
	}
	for _, tt := range tests {
		p, err := Preset(tt.quality)
		require.NoError(t, err)
		assert.Equal(t, QualityPreset{Height: tt.height, CRF: tt.crf}, p, tt.quality)
	}

	_, err := Preset("4k")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.NoError(t, Settings{Quality: "720p", FPS: 24}.Validate())
	assert.NoError(t, Settings{Quality: "2160p", FPS: 60}.Validate())

	assert.ErrorIs(t, Settings{Quality: "720p", FPS: 23}.Validate(), ErrInvalidSettings)
	assert.ErrorIs(t, Settings{Quality: "720p", FPS: 61}.Validate(), ErrInvalidSettings)
	assert.ErrorIs(t, Settings{Quality: "", FPS: 30}.Validate(), ErrInvalidSettings)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zoomreel.yaml")
	data := `
output_dir: renders
export:
  settings:
    quality: 720p
    fps: 60
  batch_size: 5
  codec: webp
  seek_timeout: 2s
fonts:
  brand: /fonts/brand.ttf
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "renders", cfg.OutputDir)
	assert.Equal(t, "projects", cfg.ProjectsDir)
	assert.Equal(t, Settings{Quality: "720p", FPS: 60, IncludeAudio: true}, cfg.Export.Settings)
	assert.Equal(t, 5, cfg.Export.BatchSize)
	assert.Equal(t, "webp", cfg.Export.Codec)
	assert.Equal(t, 2*time.Second, cfg.Export.SeekTimeout)
	assert.Equal(t, 600.0, cfg.Export.MaxDuration)
	assert.Equal(t, "/fonts/brand.ttf", cfg.Fonts["brand"])
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Export.Settings, cfg.Export.Settings)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := Default()
	cfg.Export.Settings.FPS = 25
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Export.Settings.FPS)
}
