package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestListMatchingFindsFilesAcrossSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"))
	writeFile(t, filepath.Join(root, "sub", "b.txt"))

	got, err := ListMatching([]string{root}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListMatchingExcludesGlobMatches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"))
	writeFile(t, filepath.Join(root, "skip.tmp"))
	writeFile(t, filepath.Join(root, "ignored", "nested.txt"))

	got, err := ListMatching([]string{root}, []string{
		filepath.Join(root, "*.tmp"),
		filepath.Join(root, "ignored", "**"),
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, filepath.Join(root, "keep.txt"), got[0])
}

func TestListMatchingEmptyRootReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	got, err := ListMatching([]string{root}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWatcherDebouncesAndDeliversChangedPaths(t *testing.T) {
	root := t.TempDir()

	w, err := New([]string{root}, nil)
	require.NoError(t, err)
	defer w.Stop()

	events := make(chan Event, 4)
	w.Start(t.Context(), func(ev Event) { events <- ev })

	writeFile(t, filepath.Join(root, "new.txt"))

	select {
	case ev := <-events:
		assert.NotEmpty(t, ev.Paths)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a watch event")
	}
}
