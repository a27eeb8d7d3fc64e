//go:build linux

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitContent(t *testing.T) {
	tests := []struct {
		name   string
		user   bool
		target string
	}{
		{"system", false, "WantedBy=multi-user.target"},
		{"user", true, "WantedBy=default.target"},
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := unitFor(tt.user)
			require.NoError(t, err)
			assert.Equal(t, serviceName, filepath.Base(u.path))
			c := u.content("/opt/joybridge/joybridge")
			assert.Contains(t, c, `ExecStart="/opt/joybridge/joybridge" run`)
			assert.Contains(t, c, "WorkingDirectory=/opt/joybridge")
			assert.Contains(t, c, tt.target)
		})
	}
}
