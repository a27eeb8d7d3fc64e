package calstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/joybridge/internal/joycon"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ptr[T any](v T) *T { return &v }

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nope.yaml"), quietLogger())
	require.NoError(t, err)
	_, ok := s.Lookup("abc")
	assert.False(t, ok)
}

func TestUpdatePersistsAndMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "calibration.yaml")
	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	require.NoError(t, s.Update("SER1", joycon.Override{LeftCenter: &joycon.StickRaw{X: 2040, Y: 2010}}))
	require.NoError(t, s.Update("SER1", joycon.Override{LeftDeadzone: ptr(uint16(200))}))

	reloaded, err := Open(path, quietLogger())
	require.NoError(t, err)
	o, ok := reloaded.Lookup("SER1")
	require.True(t, ok)
	assert.Equal(t, &joycon.StickRaw{X: 2040, Y: 2010}, o.LeftCenter)
	assert.Equal(t, uint16(200), *o.LeftDeadzone)
	assert.Nil(t, o.RightCenter)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`controllers:
  "98:b6:e9:00:00:01":
    rightCenter: {x: 1900, y: 2100}
    antiDeadzone: [0.1, 0.2]
`), 0o644))

	s, err := Open(path, quietLogger())
	require.NoError(t, err)
	o, ok := s.Lookup("98:b6:e9:00:00:01")
	require.True(t, ok)
	assert.Equal(t, &joycon.StickRaw{X: 1900, Y: 2100}, o.RightCenter)
	assert.Equal(t, &[2]float64{0.1, 0.2}, o.AntiDeadzone)
}

func TestInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("controllers: [oops"), 0o644))
	_, err := Open(path, quietLogger())
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s, err := Open("", quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Update("k", joycon.Override{RightDeadzone: ptr(uint16(5))}))
	o, ok := s.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, uint16(5), *o.RightDeadzone)
	assert.Error(t, s.Update("", joycon.Override{}))
}
