// Package persistence stores named configuration snapshots and experiment
// results. Snapshots live either as JSON files in a directory (FileStore)
// or in SQLite (DB); both implement Store.
package persistence

import (
	"errors"
	"fmt"

	"github.com/talgya/mindtrade/internal/config"
)

// MaxNameLength bounds snapshot names.
const MaxNameLength = 10

// Name validation and storage errors.
var (
	ErrNameTooShort  = errors.New("name is empty")
	ErrNameTooLong   = fmt.Errorf("name exceeds %d characters", MaxNameLength)
	ErrForbiddenChar = errors.New("name contains a character other than a-z, A-Z, 0-9")
	ErrAlreadyExists = errors.New("snapshot already exists")
	ErrNotFound      = errors.New("snapshot not found")
	ErrLoadFailed    = errors.New("load failed")
)

// Store saves and loads named configuration snapshots.
type Store interface {
	// Save writes cfg under name. An existing snapshot is replaced only
	// when overwrite is set; otherwise ErrAlreadyExists is returned.
	Save(name string, cfg config.Config, overwrite bool) error
	// Load returns the snapshot. Every failure wraps ErrLoadFailed.
	Load(name string) (config.Config, error)
	// Exists reports whether a snapshot is stored under name.
	Exists(name string) (bool, error)
	// List returns the stored names in lexical order.
	List() ([]string, error)
	// Delete removes a snapshot.
	Delete(name string) error
}

// ValidateName checks a snapshot name: 1 to MaxNameLength ASCII letters or
// digits.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameTooShort
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return fmt.Errorf("%w: %q at position %d", ErrForbiddenChar, c, i)
		}
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d", ErrNameTooLong, len(name))
	}
	return nil
}

// encode validates and serializes a snapshot for either backend.
func encode(name string, cfg config.Config) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return config.Encode(cfg)
}

func loadFailed(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLoadFailed, name, err)
}
