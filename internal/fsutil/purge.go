package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Purge deletes path and, when it is a directory, everything below it.
// A path that does not exist is not an error. Symlinks are removed, never
// followed.
func Purge(fsys afero.Fs, path string) error {
	info, err := lstat(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		entries, err := afero.ReadDir(fsys, path)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", path, err)
		}
		for _, entry := range entries {
			if err := Purge(fsys, filepath.Join(path, entry.Name())); err != nil {
				return err
			}
		}
	}

	if err := fsys.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// PurgeOS runs Purge against the host filesystem.
func PurgeOS(path string) error {
	return Purge(afero.NewOsFs(), path)
}

func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}
