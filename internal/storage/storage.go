// Package storage is the file access seam between proposals and the
// editor's disk. Tests swap it for an in-memory implementation.
package storage

import (
	"os"
	"path/filepath"
)

type Store interface {
	// Read returns the file content and whether the file exists. The
	// error is reserved for real IO failures; a missing file is
	// (_, false, nil).
	Read(path string) (string, bool, error)
	Write(path, content string) error
}

type osStore struct{}

func NewOS() Store {
	return osStore{}
}

func (osStore) Read(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (osStore) Write(path, content string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
