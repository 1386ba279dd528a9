// Package fsutil holds the small filesystem helpers used when a job is torn
// down: directory path normalisation and recursive purge of a job's working
// directory.
package fsutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafeJobID is returned when a job id cannot name a single directory
// below the work-dir root.
var ErrUnsafeJobID = errors.New("job id is not a safe path component")

// FixPath returns p terminated by exactly one path separator.
func FixPath(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// WorkDir returns the working directory of a job below root. The result is
// always strictly inside root: empty ids, "." and "..", and ids containing a
// path separator are rejected with ErrUnsafeJobID.
func WorkDir(root, jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." ||
		strings.ContainsAny(jobID, `/\`) || strings.ContainsRune(jobID, filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeJobID, jobID)
	}

	dir := FixPath(root) + jobID
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrUnsafeJobID, jobID, root)
	}
	return dir, nil
}
