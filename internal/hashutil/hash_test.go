package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortIsDeterministicAndFixedWidth(t *testing.T) {
	h1 := Short([]byte("package main\n"))
	h2 := Short([]byte("package main\n"))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, ShortHashLen)
}

func TestShortDiffersOnDifferentContent(t *testing.T) {
	h1 := Short([]byte("a"))
	h2 := Short([]byte("b"))
	assert.NotEqual(t, h1, h2)
}

func TestShortFileMatchesShortOfContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.go")
	content := []byte("func main() {}\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := ShortFile(path)
	require.NoError(t, err)
	assert.Equal(t, Short(content), got)
}

func TestShortFileMissingFileErrors(t *testing.T) {
	_, err := ShortFile(filepath.Join(t.TempDir(), "missing.go"))
	assert.Error(t, err)
}

func TestCodebaseIsOrderIndependent(t *testing.T) {
	a := Codebase([]string{"h1", "h2", "h3"})
	b := Codebase([]string{"h3", "h1", "h2"})
	assert.Equal(t, a, b)
}

func TestCodebaseChangesWhenAnyFileHashChanges(t *testing.T) {
	a := Codebase([]string{"h1", "h2"})
	b := Codebase([]string{"h1", "h3"})
	assert.NotEqual(t, a, b)
}
