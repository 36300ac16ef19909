// Package lookup resolves @name references against the project tree.
package lookup

import (
	"io/fs"
	"os"
	"path/filepath"
)

var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
}

type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Resolve finds a file whose basename matches name anywhere under the
// project root, skipping dependency and build directories. The first
// match in walk order wins. A relative path that resolves directly is
// preferred over the walk.
func (r *Resolver) Resolve(name string) (string, bool, error) {
	if r.root == "" {
		return "", false, nil
	}
	direct := filepath.Join(r.root, name)
	if data, err := os.ReadFile(direct); err == nil {
		return string(data), true, nil
	}

	var found string
	err := filepath.WalkDir(r.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if ignoredDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Name() == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if found == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(found)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
