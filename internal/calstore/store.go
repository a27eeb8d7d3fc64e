// Package calstore keeps user stick calibration in a YAML file keyed by
// controller serial.
package calstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Alia5/joybridge/internal/joycon"
)

type file struct {
	Controllers map[string]joycon.Override `yaml:"controllers"`
}

// Store is a joycon.OverrideStore backed by one YAML file. An empty path
// keeps everything in memory.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]joycon.Override
}

var _ joycon.OverrideStore = (*Store)(nil)

// Open loads path. A missing file yields an empty store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger, entries: make(map[string]joycon.Override)}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	for k, v := range f.Controllers {
		s.entries[k] = v
	}
	logger.Debug("Loaded calibration overrides", "path", path, "controllers", len(s.entries))
	return s, nil
}

func (s *Store) Lookup(key string) (joycon.Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.entries[key]
	return o, ok
}

// Update merges o into the entry for key and saves the file. Nil fields of
// o keep their stored value.
func (s *Store) Update(key string, o joycon.Override) error {
	if key == "" {
		return errors.New("calibration key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.entries[key]
	if o.LeftCenter != nil {
		cur.LeftCenter = o.LeftCenter
	}
	if o.RightCenter != nil {
		cur.RightCenter = o.RightCenter
	}
	if o.LeftDeadzone != nil {
		cur.LeftDeadzone = o.LeftDeadzone
	}
	if o.RightDeadzone != nil {
		cur.RightDeadzone = o.RightDeadzone
	}
	if o.AntiDeadzone != nil {
		cur.AntiDeadzone = o.AntiDeadzone
	}
	s.entries[key] = cur
	return s.save()
}

// save writes a temp file and renames it over the store.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(file{Controllers: s.entries})
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace calibration: %w", err)
	}
	s.logger.Info("Saved calibration", "path", s.path)
	return nil
}
