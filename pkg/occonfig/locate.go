// Package occonfig locates the OpenCore configuration file on a mounted
// EFI system partition.
package occonfig

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound means no config.plist exists under the searched root. It is
// an expected outcome (try the next partition), not a failure.
var ErrNotFound = errors.New("config.plist not found")

// candidatePaths are tried in priority order before falling back to a
// recursive search.
var candidatePaths = []string{
	"EFI/OC/config.plist",
	"OC/config.plist",
	"EFI/BOOT/config.plist",
}

// Find returns the path of the OpenCore config.plist under root, or
// ErrNotFound.
func Find(root string) (string, error) {
	for _, rel := range candidatePaths {
		path := filepath.Join(root, filepath.FromSlash(rel))
		fi, err := os.Stat(path)
		if err == nil && fi.Mode().IsRegular() {
			return path, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "failed to stat %s", path)
		}
	}

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped, not fatal
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// ignore the volume trash and Spotlight droppings
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if strings.EqualFold(d.Name(), "config.plist") {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to search %s", root)
	}
	if found == "" {
		return "", ErrNotFound
	}
	return found, nil
}
