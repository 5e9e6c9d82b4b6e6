package watcher

import (
	"os"
	"path/filepath"

	"github.com/flint-notes/flint/internal/errors"
)

// Normalize resolves a path to its canonical form: absolute, cleaned, with
// symlinks resolved. Record paths, intent keys, and watcher events all go
// through this function so comparisons never miss on case of trailing
// separators or symlinked vault roots.
//
// For paths that no longer exist (deletes), the parent directory is
// resolved instead and the base name reattached.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", errors.PathResolution(path, nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.PathResolution(path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return filepath.Clean(resolved), nil
	}
	if !os.IsNotExist(err) {
		return "", errors.PathResolution(path, err)
	}

	// The file itself is gone (or not yet created). Canonicalize through
	// the closest existing ancestor so delete events still match the key
	// the record was stored under.
	dir, base := filepath.Split(filepath.Clean(abs))
	resolvedDir, dirErr := filepath.EvalSymlinks(filepath.Clean(dir))
	if dirErr != nil {
		if os.IsNotExist(dirErr) {
			return filepath.Clean(abs), nil
		}
		return "", errors.PathResolution(path, dirErr)
	}
	return filepath.Join(resolvedDir, base), nil
}

// IsMarkdown reports whether a path names a markdown note file.
func IsMarkdown(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".md" || ext == ".markdown"
}
