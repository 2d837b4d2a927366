package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5000, cfg.MaxKeypoints)
	assert.Equal(t, 0.15, cfg.RetentionFraction)
	assert.Equal(t, 3.0, cfg.RansacThreshold)
	assert.Equal(t, 2000, cfg.RansacIterations)
	assert.Equal(t, BackendNative, cfg.Backend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{A: 255}, opts.Background)
	assert.Equal(t, 5000, opts.MaxKeypoints)
	assert.NoError(t, opts.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LAYERALIGN_MAX_KEYPOINTS", "800")
	t.Setenv("LAYERALIGN_RETENTION", "0.3")
	t.Setenv("LAYERALIGN_SEED", "12345")
	t.Setenv("LAYERALIGN_CROSS_CHECK", "true")
	t.Setenv("LAYERALIGN_BACKGROUND", "#fff")
	t.Setenv("LAYERALIGN_JOBS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Jobs)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, 800, opts.MaxKeypoints)
	assert.Equal(t, 0.3, opts.RetentionFraction)
	assert.Equal(t, uint64(12345), opts.Seed)
	assert.True(t, opts.CrossCheck)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, opts.Background)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LAYERALIGN_RANSAC_ITERATIONS=77\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LAYERALIGN_RANSAC_ITERATIONS") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.RansacIterations)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("LAYERALIGN_MAX_KEYPOINTS", "lots")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	bad := *cfg
	bad.Backend = "cuda"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Jobs = -1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Background = "#12"
	assert.Error(t, bad.Validate())
	_, err = bad.Options()
	assert.Error(t, err)

	ok := *cfg
	ok.Backend = "OpenCV"
	assert.NoError(t, ok.Validate())
}

func TestOptionsValidates(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	bad := *cfg
	bad.RetentionFraction = 2
	_, err = bad.Options()
	assert.ErrorContains(t, err, "retention")

	bad = *cfg
	bad.Jobs = -2
	_, err = bad.Options()
	assert.ErrorContains(t, err, "jobs")

	bad = *cfg
	bad.MinInlierRatio = 1.5
	_, err = bad.Options()
	assert.Error(t, err)

	ok := *cfg
	ok.MinInlierRatio = -1
	opts, err := ok.Options()
	require.NoError(t, err)
	assert.Equal(t, -1.0, opts.MinInlierRatio)
}
