package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/manifest"
	"github.com/ruizrica/drift/internal/walker"
)

func writeFile(t *testing.T, dir, name, content string) walker.File {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return walker.File{RelPath: name, AbsPath: path}
}

func TestPlanFlagsNewAndChangedFiles(t *testing.T) {
	dir := t.TempDir()
	unchanged := writeFile(t, dir, "unchanged.go", "package a\n")
	changed := writeFile(t, dir, "changed.go", "package b\n")
	brandNew := writeFile(t, dir, "new.go", "package c\n")

	mf := manifest.New(filepath.Join(dir, "manifest.json"))
	unchangedHash, err := hashutil.ShortFile(unchanged.AbsPath)
	require.NoError(t, err)
	mf.SetFile("unchanged.go", unchangedHash, nil)
	mf.SetFile("changed.go", "stale-hash", nil)

	result := Plan([]walker.File{unchanged, changed, brandNew}, mf)

	var names []string
	for _, f := range result {
		names = append(names, f.RelPath)
	}
	assert.ElementsMatch(t, []string{"changed.go", "new.go"}, names)
}

func TestPlanReusesPrecomputedHash(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "a.go", "package a\n")
	f.Hash = "precomputed"

	mf := manifest.New(filepath.Join(dir, "manifest.json"))
	mf.SetFile("a.go", "precomputed", nil)

	result := Plan([]walker.File{f}, mf)
	assert.Empty(t, result)
}

func TestPlanTreatsUnreadableFileAsChanged(t *testing.T) {
	dir := t.TempDir()
	missing := walker.File{RelPath: "missing.go", AbsPath: filepath.Join(dir, "missing.go")}

	mf := manifest.New(filepath.Join(dir, "manifest.json"))
	result := Plan([]walker.File{missing}, mf)
	require.Len(t, result, 1)
	assert.Equal(t, "missing.go", result[0].RelPath)
}
