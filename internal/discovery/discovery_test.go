package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
}

func baseNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

func TestCollectImages_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"b.jpg",
		"a.png",
		"sub/c.jpeg",
		"sub/deep/d.JPG", // extension match is case-insensitive
		"notes.txt",
		"raw.cr2",
	)

	files, err := CollectImages(root)
	require.NoError(t, err)
	require.Len(t, files, 4)

	// Sorted by full path, so subdirectory files come after root files here.
	assert.Equal(t, []string{"a.png", "b.jpg", "c.jpeg", "d.JPG"}, baseNames(files))
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i], "paths must be sorted")
	}
}

func TestCollectImages_EmptyDirectory(t *testing.T) {
	files, err := CollectImages(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCollectImages_MissingDirectory(t *testing.T) {
	_, err := CollectImages(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCollectImages_FileInsteadOfDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg")

	_, err := CollectImages(filepath.Join(root, "a.jpg"))
	assert.Error(t, err)
}

func TestSelectReuploads(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "b.jpg", "c.jpg")

	listPath := filepath.Join(t.TempDir(), "failure_list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("c.jpg\na.jpg\nmissing.jpg\n\n"), 0o644))

	files, err := SelectReuploads(root, listPath, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, baseNames(files), "matches keep discovery order; absent names skipped")
}

func TestSelectReuploads_EmptyList(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg")

	listPath := filepath.Join(t.TempDir(), "failure_list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("\n"), 0o644))

	files, err := SelectReuploads(root, listPath, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSelectReuploads_MissingListFile(t *testing.T) {
	_, err := SelectReuploads(t.TempDir(), filepath.Join(t.TempDir(), "nope.txt"), nil)
	assert.Error(t, err)
}
