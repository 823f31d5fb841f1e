package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

var now = time.Date(2024, 12, 29, 9, 5, 7, 0, time.UTC)

func TestMove(t *testing.T) {
	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")
	archive := filepath.Join(root, "archive")
	write(t, filepath.Join(downloads, "a_members.csv"), "m")
	write(t, filepath.Join(downloads, "a_orders.csv"), "o")
	write(t, filepath.Join(downloads, "notes.txt"), "keep")

	moved, err := Move(downloads, archive, now)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(archive, "20241229", "a_members.csv"),
		filepath.Join(archive, "20241229", "a_orders.csv"),
	}, moved)

	require.Equal(t, "m", read(t, moved[0]))
	_, err = os.Stat(filepath.Join(downloads, "a_members.csv"))
	require.True(t, os.IsNotExist(err))
	require.Equal(t, "keep", read(t, filepath.Join(downloads, "notes.txt")))
}

func TestMove_CollisionNeverOverwrites(t *testing.T) {
	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")
	archive := filepath.Join(root, "archive")
	day := filepath.Join(archive, "20241229")
	write(t, filepath.Join(day, "a_members.csv"), "first")
	write(t, filepath.Join(day, "a_members_090507.csv"), "second")
	write(t, filepath.Join(downloads, "a_members.csv"), "third")

	moved, err := Move(downloads, archive, now)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(day, "a_members_090507_1.csv")}, moved)

	require.Equal(t, "first", read(t, filepath.Join(day, "a_members.csv")))
	require.Equal(t, "second", read(t, filepath.Join(day, "a_members_090507.csv")))
	require.Equal(t, "third", read(t, moved[0]))
}

func TestMove_Empty(t *testing.T) {
	root := t.TempDir()
	moved, err := Move(root, filepath.Join(root, "archive"), now)
	require.NoError(t, err)
	require.Empty(t, moved)

	_, err = os.Stat(filepath.Join(root, "archive"))
	require.True(t, os.IsNotExist(err), "no archive dir for an empty run")
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	a, b := filepath.Join(root, "a"), filepath.Join(root, "b", "c")

	require.NoError(t, EnsureDirs(a, "", b))
	for _, d := range []string{a, b} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}
