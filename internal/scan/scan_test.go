package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/detect"
	"github.com/ruizrica/drift/internal/lang"
	"github.com/ruizrica/drift/internal/model"
	"github.com/ruizrica/drift/internal/walker"
)

type fixedDetector struct {
	id       string
	category model.Category
	matches  int
}

func (f fixedDetector) ID() string              { return f.id }
func (f fixedDetector) Name() string            { return f.id }
func (f fixedDetector) Description() string     { return "" }
func (f fixedDetector) Category() model.Category { return f.category }
func (f fixedDetector) Subcategory() string      { return "" }
func (f fixedDetector) Languages() []lang.Language { return nil }
func (f fixedDetector) Kind() detect.Kind        { return detect.KindRegex }
func (f fixedDetector) Critical() bool           { return false }
func (f fixedDetector) GenerateQuickFix(v model.Violation) (*model.Fix, bool) { return nil, false }

func (f fixedDetector) Detect(ctx context.Context, dctx *model.DetectionContext) (model.DetectionResult, error) {
	res := model.EmptyResult()
	for i := 0; i < f.matches; i++ {
		res.Patterns = append(res.Patterns, model.PatternMatch{
			DetectorLocalID: "local-1",
			Confidence:      0.9,
			Location:        model.Location{File: dctx.File, Line: i + 1},
		})
	}
	return res, nil
}

func writeFiles(t *testing.T, dir string, names ...string) []walker.File {
	t.Helper()
	var files []walker.File
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))
		files = append(files, walker.File{RelPath: name, AbsPath: path, Ext: ".go"})
	}
	return files
}

func TestScanAggregatesPatternsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, "a.go", "b.go")

	reg := detect.NewRegistry()
	reg.Register(fixedDetector{id: "det-1", category: model.CategoryStructural, matches: 1})

	o := NewOrchestrator(reg, Config{Workers: 2})
	result, err := o.Scan(context.Background(), files, model.ProjectContext{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesScanned)
	assert.Equal(t, 0, result.FilesErrored)
	require.Len(t, result.Patterns, 1)
	for _, p := range result.Patterns {
		assert.Len(t, p.Locations, 2)
	}
}

func TestScanTracksReadErrors(t *testing.T) {
	reg := detect.NewRegistry()
	o := NewOrchestrator(reg, Config{Workers: 1})

	missing := walker.File{RelPath: "gone.go", AbsPath: filepath.Join(t.TempDir(), "gone.go"), Ext: ".go"}
	result, err := o.Scan(context.Background(), []walker.File{missing}, model.ProjectContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesErrored)
	assert.Equal(t, 0, result.FilesScanned)
}

func TestScanRespectsCriticalOnly(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, "a.go")

	reg := detect.NewRegistry()
	reg.Register(fixedDetector{id: "critical", category: model.CategoryStructural, matches: 1})

	o := NewOrchestrator(reg, Config{Workers: 1, CriticalOnly: true})
	result, err := o.Scan(context.Background(), files, model.ProjectContext{})
	require.NoError(t, err)
	assert.Empty(t, result.Patterns)
}
