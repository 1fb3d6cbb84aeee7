package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesMissingDirectories(t *testing.T) {
	tmp := t.TempDir()
	want := filepath.Join(tmp, "var", "lib")

	got, err := EnsureParentDir(filepath.Join(want, "ritw.db"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureParentDir_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ritw.db")

	first, err := EnsureParentDir(path)
	require.NoError(t, err)

	second, err := EnsureParentDir(path)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureParentDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "data"), []byte("x"), 0o660))

	_, err := EnsureParentDir(filepath.Join(tmp, "data", "ritw.db"))
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestEnsureParentDir_SkipsInMemoryNames(t *testing.T) {
	for _, name := range []string{"", ":memory:", "file::memory:?cache=shared"} {
		dir, err := EnsureParentDir(name)
		require.NoError(t, err)
		require.Empty(t, dir)
	}
}
