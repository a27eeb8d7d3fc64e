package configpaths

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCandidatePathsUserFirst(t *testing.T) {
	tests := []struct {
		path string
		pick func(j, y, tm []string) []string
	}{
		{"my.yaml", func(_, y, _ []string) []string { return y }},
		{"my.yml", func(_, y, _ []string) []string { return y }},
		{"my.toml", func(_, _, tm []string) []string { return tm }},
		{"my.json", func(j, _, _ []string) []string { return j }},
		{"my.conf", func(j, _, _ []string) []string { return j }},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			j, y, tm := ConfigCandidatePaths(tt.path)
			got := tt.pick(j, y, tm)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.path, got[0])
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Setenv("AppData", t.TempDir())
	} else {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	}
	dir, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "joybridge", filepath.Base(dir))

	p, err := DefaultConfigPath("yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p)

	c, err := DefaultCalibrationPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calibration.yaml"), c)
}
