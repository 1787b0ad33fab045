// Package fsutil locates snapshot files on disk.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoExtension is returned when FindFilesByExtension is called without an
// extension.
var ErrNoExtension = errors.New("extension must not be empty")

// FindFilesByExtension walks root and returns the files whose name ends in
// extension, sorted by path. Hidden directories such as .git are skipped.
func FindFilesByExtension(root, extension string) ([]string, error) {
	if extension == "" {
		return nil, ErrNoExtension
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
