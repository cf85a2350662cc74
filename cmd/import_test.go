package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadLinksFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "links.txt")
	content := "# my reading list\n" +
		"https://example.org/plain\n" +
		"\n" +
		"https://example.org/titled\tA Titled Paper\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	links, err := readLinksFile(path)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, "https://example.org/plain", links[0].URL)
	require.Empty(t, links[0].Title)
	require.Equal(t, "https://example.org/titled", links[1].URL)
	require.Equal(t, "A Titled Paper", links[1].Title)
}

func TestReadLinksFileMissing(t *testing.T) {
	t.Parallel()

	_, err := readLinksFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}
