package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("PLOT_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "queue", cfg.Regions.Kind)
	assert.Equal(t, "mca", cfg.Export.RegionExtension)
	assert.Equal(t, 5*time.Second, cfg.Identity.LookupTimeout)
	assert.Equal(t, 8088, cfg.Server.GetRESTPort())
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.yaml")
	yml := `
worlds:
  container: /srv/worlds
  min_y: 0
  max_y: 255
region_manager:
  kind: accelerated
  accelerated_clear: true
identity:
  lookup_timeout: 2s
server:
  rest_port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("PLOT_MAX_TRUSTED", "5")
	t.Setenv("PLOT_WORLD_CONTAINER", "/data/worlds")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/worlds", cfg.Worlds.Container, "окружение должно перекрывать YAML")
	assert.Equal(t, 255, cfg.Worlds.MaxY)
	assert.Equal(t, "accelerated", cfg.Regions.Kind)
	assert.True(t, cfg.Regions.AcceleratedClear)
	assert.Equal(t, 2*time.Second, cfg.Identity.LookupTimeout)
	assert.Equal(t, 5, cfg.Plots.MaxTrusted)
	assert.Equal(t, 9000, cfg.Server.GetRESTPort())
	assert.Equal(t, "perlin", cfg.Worlds.Generator, "незаданные поля сохраняют значения по умолчанию")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Worlds.MinY = 100
	cfg.Worlds.MaxY = 10
	cfg.Regions.Kind = "fawe"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_y")
	assert.Contains(t, err.Error(), "fawe")
}

func TestRESTPortEnvFallback(t *testing.T) {
	t.Setenv("PLOT_REST_PORT", "9100")
	s := ServerConfig{}
	assert.Equal(t, 9100, s.GetRESTPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort(), "значение из файла приоритетнее окружения")
}

func TestValidatePlotLayout(t *testing.T) {
	cfg := Default()
	cfg.Plots.Layout = "road"
	cfg.Plots.FloorHeight = 400

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "road")
	assert.Contains(t, err.Error(), "floor_height")

	assert.NoError(t, Default().Validate(), "значения по умолчанию должны быть корректны")
}

func TestValidateSampleRatio(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.SampleRatio = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_ratio")

	t.Setenv("PLOT_OTEL_SAMPLE_RATIO", "0.1")
	loaded, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, loaded.Telemetry.SampleRatio, 1e-9)
}
