package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/talgya/mindtrade/internal/config"
)

const snapshotExt = ".json"

// FileStore keeps one <name>.json file per snapshot in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name+snapshotExt)
}

// Save writes the snapshot through a temporary file so a failed write never
// leaves a truncated snapshot behind.
func (s *FileStore) Save(name string, cfg config.Config, overwrite bool) error {
	data, err := encode(name, cfg)
	if err != nil {
		return err
	}
	if !overwrite {
		exists, err := s.Exists(name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
	}

	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}

	slog.Info("snapshot saved", "name", name, "path", s.path(name))
	return nil
}

// Load reads and validates a snapshot.
func (s *FileStore) Load(name string) (config.Config, error) {
	if err := ValidateName(name); err != nil {
		return config.Config{}, loadFailed(name, err)
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, loadFailed(name, ErrNotFound)
	}
	if err != nil {
		return config.Config{}, loadFailed(name, err)
	}
	cfg, err := config.Decode(data)
	if err != nil {
		return config.Config{}, loadFailed(name, err)
	}
	return cfg, nil
}

// Exists reports whether the snapshot file is present.
func (s *FileStore) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// List returns the names of all valid snapshot files.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), snapshotExt)
		if ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a snapshot file.
func (s *FileStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}
