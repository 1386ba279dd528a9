package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "adds separator", in: "/tmp/job-42", want: "/tmp/job-42/"},
		{name: "keeps separator", in: "/tmp/job-42/", want: "/tmp/job-42/"},
		{name: "relative", in: "work", want: "work/"},
		{name: "root", in: "/", want: "/"},
		{name: "empty", in: "", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FixPath(tt.in))
		})
	}
}

func TestWorkDir(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		id      string
		want    string
		wantErr bool
	}{
		{name: "plain", root: "/var/jobs", id: "42", want: "/var/jobs/42"},
		{name: "terminated root", root: "/var/jobs/", id: "42", want: "/var/jobs/42"},
		{name: "relative root", root: "work", id: "uuid-1", want: "work/uuid-1"},
		{name: "dotted id", root: "/var/jobs", id: "..42", want: "/var/jobs/..42"},
		{name: "empty id", root: "/var/jobs", id: "", wantErr: true},
		{name: "dot", root: "/var/jobs", id: ".", wantErr: true},
		{name: "parent", root: "/var/jobs", id: "..", wantErr: true},
		{name: "nested", root: "/var/jobs", id: "a/b", wantErr: true},
		{name: "traversal", root: "/var/jobs", id: "../etc", wantErr: true},
		{name: "backslash", root: "/var/jobs", id: `..\x`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WorkDir(tt.root, tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafeJobID)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPurgeMissingPath(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.NoError(t, Purge(fsys, "/does/not/exist"))
	assert.NoError(t, PurgeOS(filepath.Join(t.TempDir(), "missing")))
}

func TestPurgeFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/tmp/a.txt", []byte("a"), 0o644))

	require.NoError(t, Purge(fsys, "/tmp/a.txt"))

	exists, err := afero.Exists(fsys, "/tmp/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPurgeTree(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/tmp/job-42/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/tmp/job-42/b/c.txt", []byte("c"), 0o644))
	require.NoError(t, fsys.MkdirAll("/tmp/job-42/b/empty", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/tmp/keep.txt", []byte("k"), 0o644))

	require.NoError(t, Purge(fsys, "/tmp/job-42/"))

	exists, err := afero.Exists(fsys, "/tmp/job-42")
	require.NoError(t, err)
	assert.False(t, exists)

	kept, err := afero.Exists(fsys, "/tmp/keep.txt")
	require.NoError(t, err)
	assert.True(t, kept, "sibling outside the purged tree must survive")
}

func TestPurgeOSTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "job-42")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "c.txt"), []byte("c"), 0o644))

	require.NoError(t, PurgeOS(FixPath(root)))

	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))

	// purging twice is a no-op
	assert.NoError(t, PurgeOS(root))
}

func TestPurgeOSDoesNotFollowSymlinks(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep.txt"), []byte("k"), 0o644))

	job := filepath.Join(base, "job")
	require.NoError(t, os.MkdirAll(job, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(job, "link")))

	require.NoError(t, PurgeOS(job))

	_, err := os.Stat(filepath.Join(target, "keep.txt"))
	assert.NoError(t, err)
}
