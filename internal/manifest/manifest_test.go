package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/model"
)

func TestSetFileAndQueryByFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("internal/api/handler.go", "hash1", []model.SemanticLocation{
		{File: "internal/api/handler.go", Name: "Handler", Kind: model.KindFunction},
	})

	res, err := s.QueryByFile(FileQuery{File: "internal/api/handler.go"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "hash1", res.ContentHash)
	require.Len(t, res.Locations, 1)
	assert.Equal(t, "Handler", res.Locations[0].Name)
}

func TestQueryByFileGlobMatchesFirstInPathOrder(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("internal/api/b.go", "hb", nil)
	s.SetFile("internal/api/a.go", "ha", nil)

	res, err := s.QueryByFile(FileQuery{Glob: "internal/api/*.go"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "internal/api/a.go", res.File)
}

func TestQueryByFileListsReferencingPatterns(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("a.go", "h1", nil)
	s.UpdatePattern(model.Pattern{
		ID: "p1", Name: "naked-query", Category: model.CategoryAPI,
		Locations: []model.Location{{File: "a.go", Line: 1}},
	})

	res, err := s.QueryByFile(FileQuery{File: "a.go"})
	require.NoError(t, err)
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, model.PatternID("p1"), res.Patterns[0].PatternID)
}

func TestQueryByPatternFiltersAndLimitsWithTotalCount(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.UpdatePatterns([]model.Pattern{
		{
			ID: "p-api", Name: "CreateUser", Category: model.CategoryAPI,
			Status: model.StatusDiscovered, Confidence: model.Confidence{Score: 0.8},
			Locations: []model.Location{
				{File: "internal/api/handler.go", Line: 1},
				{File: "internal/api/handler.go", Line: 2},
				{File: "internal/web/view.go", Line: 9},
			},
		},
		{
			ID: "p-web", Name: "RenderView", Category: model.CategoryStyling,
			Status: model.StatusDiscovered, Confidence: model.Confidence{Score: 0.3},
			Locations: []model.Location{{File: "internal/web/view.go", Line: 1}},
		},
	})

	results, err := s.QueryByPattern(PatternQuery{FileGlob: "internal/api/**"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.PatternID("p-api"), results[0].PatternID)
	assert.Equal(t, 2, results[0].TotalCount)

	results, err = s.QueryByPattern(PatternQuery{NameQuery: "render"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "RenderView", results[0].PatternName)

	results, err = s.QueryByPattern(PatternQuery{MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.PatternID("p-api"), results[0].PatternID)

	results, err = s.QueryByPattern(PatternQuery{Limit: 1})
	require.NoError(t, err)
	var found PatternQueryResult
	for _, r := range results {
		if r.PatternID == "p-api" {
			found = r
		}
	}
	assert.Len(t, found.Locations, 1)
	assert.Equal(t, 3, found.TotalCount)
}

func TestRemoveFileDeletesRecordAndClearsPatterns(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("a.go", "h1", nil)
	s.UpdatePattern(model.Pattern{
		ID: "p1", Category: model.CategoryAPI,
		Locations: []model.Location{{File: "a.go", Line: 1}},
	})

	s.RemoveFile("a.go")

	res, err := s.QueryByFile(FileQuery{File: "a.go"})
	require.NoError(t, err)
	assert.Nil(t, res)

	results, err := s.QueryByPattern(PatternQuery{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClearFilePatternsLeavesFileEntryIntact(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("a.go", "h1", nil)
	s.UpdatePattern(model.Pattern{
		ID: "p1", Category: model.CategoryAPI,
		Locations: []model.Location{{File: "a.go", Line: 1}},
	})

	s.ClearFilePatterns("a.go")

	res, err := s.QueryByFile(FileQuery{File: "a.go"})
	require.NoError(t, err)
	require.NotNil(t, res, "file-keyed entry must survive a pattern-only clear")

	results, err := s.QueryByPattern(PatternQuery{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFilesReturnsSortedFileKeyedPaths(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("b.go", "hb", nil)
	s.SetFile("a.go", "ha", nil)

	assert.Equal(t, []string{"a.go", "b.go"}, s.Files())
}

func TestSaveRecomputesCodebaseHashAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	s := New(path)
	s.SetFile("a.go", "h1", nil)
	s.SetFile("b.go", "h2", nil)
	s.UpdatePattern(model.Pattern{ID: "p1", Category: model.CategoryAPI, Locations: []model.Location{{File: "a.go"}}})
	require.NoError(t, s.Save())

	first := s.CodebaseHash()
	assert.NotEmpty(t, first)

	reloaded := New(path)
	require.NoError(t, reloaded.Initialize())
	assert.Equal(t, first, reloaded.CodebaseHash())

	results, err := reloaded.QueryByPattern(PatternQuery{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.PatternID("p1"), results[0].PatternID)
}

func TestFileHashLookup(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.json"))
	s.SetFile("a.go", "hash-a", nil)

	hash, ok := s.FileHash("a.go")
	require.True(t, ok)
	assert.Equal(t, "hash-a", hash)

	_, ok = s.FileHash("missing.go")
	assert.False(t, ok)
}
