package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/fusion"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "trace", c.Device.Name)
	assert.Equal(t, "default", c.Device.CodeLoadMode)
	assert.True(t, c.Fusion.Enabled)
	assert.Equal(t, fusion.DefaultMaxIterations, c.Fusion.MaxIterations)
	assert.Equal(t, 0, c.Log.Verbosity)
	require.NoError(t, c.Validate())

	ic, err := c.Device.InitContext()
	require.NoError(t, err)
	assert.Equal(t, device.DefaultInitContext(), ic)
	assert.Len(t, c.Fusion.FusionOptions(), 1)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  code_load_mode: custom
  custom_path: /opt/kernels
fusion:
  max_iterations: 3
log:
  verbosity: 4
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "trace", c.Device.Name)
	assert.Equal(t, "custom", c.Device.CodeLoadMode)
	assert.Equal(t, 3, c.Fusion.MaxIterations)
	assert.True(t, c.Fusion.Enabled)
	assert.Equal(t, 4, c.Log.Verbosity)

	ic, err := c.Device.InitContext()
	require.NoError(t, err)
	assert.Equal(t, device.InitContext{CodeLoadMode: device.LoadCustomPath, CustomPath: "/opt/kernels"}, ic)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("OPGRAPH_FUSION_ENABLED", "false")
	t.Setenv("OPGRAPH_FUSION_MAX_ITERATIONS", "2")

	c, err := Load("")
	require.NoError(t, err)
	assert.False(t, c.Fusion.Enabled)
	assert.Equal(t, 2, c.Fusion.MaxIterations)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"custom without path", func(c *Config) { c.Device.CodeLoadMode = "custom" }, "Config.Device.CustomPath (required_with_custom)"},
		{"unknown mode", func(c *Config) { c.Device.CodeLoadMode = "remote" }, "Config.Device.CodeLoadMode (oneof)"},
		{"unknown device", func(c *Config) { c.Device.Name = "metal" }, "Config.Device.Name (oneof)"},
		{"zero iterations", func(c *Config) { c.Fusion.MaxIterations = 0 }, "Config.Fusion.MaxIterations (min)"},
		{"verbosity", func(c *Config) { c.Log.Verbosity = 11 }, "Config.Log.Verbosity (max)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "%v", err)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestDefaultModeIgnoresPath(t *testing.T) {
	c := Default()
	c.Device.CustomPath = "/opt/kernels"
	require.NoError(t, c.Validate())

	ic, err := c.Device.InitContext()
	require.NoError(t, err)
	assert.Equal(t, device.LoadDefault, ic.CodeLoadMode)
}
