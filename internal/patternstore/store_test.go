package patternstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/model"
)

func TestAddCreatesPatternAndMergesLocations(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	require.NoError(t, s.Add(id, Evidence{
		Category:  model.CategoryAPI,
		File:      "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}},
	}))
	require.NoError(t, s.Add(id, Evidence{
		Category:  model.CategoryAPI,
		File:      "b.go",
		Locations: []model.Location{{File: "b.go", Line: 1}},
	}))

	p, ok := s.Get(id)
	require.True(t, ok)
	assert.Len(t, p.Locations, 2)
	assert.Equal(t, model.StatusDiscovered, p.Status)
}

func TestAddReplacesFileLocationsOnResubmit(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	require.NoError(t, s.Add(id, Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}, {File: "a.go", Line: 2}},
	}))
	require.NoError(t, s.Add(id, Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 9}},
	}))

	p, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, p.Locations, 1)
	assert.Equal(t, 9, p.Locations[0].Line)
}

func TestAddPreservesStatusAndFirstSeenOnExistingPattern(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	require.NoError(t, s.Add(id, Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}},
	}))
	p, _ := s.Get(id)
	p.Status = model.StatusApproved
	p.Tags = []string{"reviewed"}
	s.patterns[id] = &p

	require.NoError(t, s.Add(id, Evidence{
		Category: model.CategoryAPI, File: "b.go",
		Locations: []model.Location{{File: "b.go", Line: 1}},
	}))

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, []string{"reviewed"}, got.Tags)
	assert.Equal(t, p.FirstSeen, got.FirstSeen)
}

func TestAddDefaultsNewPatternSeverityFromOutliers(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))

	require.NoError(t, s.Add("clean", Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}},
	}))
	clean, _ := s.Get("clean")
	assert.Equal(t, model.SeverityInfo, clean.Severity)

	require.NoError(t, s.Add("flagged", Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}},
		Outliers:  []model.Outlier{{Location: model.Location{File: "a.go", Line: 2}, Reason: "deviates"}},
	}))
	flagged, _ := s.Get("flagged")
	assert.Equal(t, model.SeverityWarning, flagged.Severity)
}

func TestAddDeletesPatternWhenLocationsAndOutliersBothEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	require.NoError(t, s.Add(id, Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}},
	}))
	require.NoError(t, s.Add(id, Evidence{Category: model.CategoryAPI, File: "a.go"}))

	_, ok := s.Get(id)
	assert.False(t, ok)
}

func TestOutliersDedupedButNeverCapped(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	outliers := make([]model.Outlier, 0, model.MaxLocations+10)
	for i := 0; i < model.MaxLocations+10; i++ {
		outliers = append(outliers, model.Outlier{Location: model.Location{File: "a.go", Line: i + 1}, Reason: "x"})
	}
	require.NoError(t, s.Add(id, Evidence{Category: model.CategoryAPI, File: "a.go", Outliers: outliers}))
	// Resubmitting a.go replaces its outliers; the extra copy of the first
	// outlier collapses under the (file, line, reason) key.
	require.NoError(t, s.Add(id, Evidence{Category: model.CategoryAPI, File: "a.go", Outliers: append(outliers, outliers[0])}))

	p, ok := s.Get(id)
	require.True(t, ok)
	assert.Len(t, p.Outliers, len(outliers))
}

func TestLocationsCapAtMaxAndEvictOldest(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	locs := make([]model.Location, 0, model.MaxLocations+10)
	for i := 0; i < model.MaxLocations+10; i++ {
		locs = append(locs, model.Location{File: "f.go", Line: i + 1})
	}
	require.NoError(t, s.Add(id, Evidence{Category: model.CategoryAPI, File: "f.go", Locations: locs}))

	p, ok := s.Get(id)
	require.True(t, ok)
	assert.Len(t, p.Locations, model.MaxLocations)
	assert.Equal(t, 11, p.Locations[0].Line) // first 10 evicted
}

func TestConfidenceFormulasMatchSpec(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	id := model.PatternID("p1")

	locs := []model.Location{{File: "a.go", Line: 1}, {File: "b.go", Line: 1}}
	require.NoError(t, s.Add(id, Evidence{Category: model.CategoryAPI, File: "a.go", Locations: locs[:1]}))
	require.NoError(t, s.Add(id, Evidence{Category: model.CategoryAPI, File: "b.go", Locations: locs[1:]}))

	p, ok := s.Get(id)
	require.True(t, ok)
	assert.InDelta(t, 0.2, p.Confidence.Frequency, 0.001) // 2/10
	assert.InDelta(t, 0.9, p.Confidence.Consistency, 0.001)
	assert.InDelta(t, 1.0, p.Confidence.Spread, 0.001) // two distinct files

	require.NoError(t, s.Add(id, Evidence{
		Category: model.CategoryAPI, File: "a.go", Locations: locs[:1],
		Outliers: []model.Outlier{{Location: model.Location{File: "a.go", Line: 99}, Reason: "odd"}},
	}))
	p, _ = s.Get(id)
	assert.InDelta(t, 0.85, p.Confidence.Consistency, 0.001) // 0.9 - 0.05*1
}

func TestRemoveFileStripsEvidenceAcrossPatterns(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))

	require.NoError(t, s.Add("p1", Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 1}},
	}))
	require.NoError(t, s.Add("p1", Evidence{
		Category: model.CategoryAPI, File: "b.go",
		Locations: []model.Location{{File: "b.go", Line: 1}},
	}))
	require.NoError(t, s.Add("p2", Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go", Line: 5}},
	}))

	s.RemoveFile("a.go")

	p1, ok := s.Get("p1")
	require.True(t, ok)
	assert.Len(t, p1.Locations, 1)
	assert.Equal(t, "b.go", p1.Locations[0].File)

	_, ok = s.Get("p2")
	assert.False(t, ok, "p2 had only a.go evidence and should be deleted")
}

func TestSaveThenInitializeRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	s := New(path)
	require.NoError(t, s.Add("p1", Evidence{
		Category: model.CategoryAuth, File: "x.go",
		Locations: []model.Location{{File: "x.go", Line: 5}},
	}))
	require.NoError(t, s.Save())

	_, err := os.Stat(path)
	require.NoError(t, err)

	reloaded := New(path)
	require.NoError(t, reloaded.Initialize())
	p, ok := reloaded.Get("p1")
	require.True(t, ok)
	assert.Equal(t, model.CategoryAuth, p.Category)
	assert.Len(t, p.Locations, 1)
}

func TestSaveIsNoOpWhenNotDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	s := New(path)
	require.NoError(t, s.Save())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteRemovesPattern(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	require.NoError(t, s.Add("p1", Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go"}},
	}))
	require.NoError(t, s.Delete("p1"))
	_, ok := s.Get("p1")
	assert.False(t, ok)
}

func TestGetStatsCountsByCategoryAndStatus(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "patterns.json"))
	require.NoError(t, s.Add("p1", Evidence{
		Category: model.CategoryAPI, File: "a.go",
		Locations: []model.Location{{File: "a.go"}},
	}))
	require.NoError(t, s.Add("p2", Evidence{
		Category: model.CategoryAuth, File: "b.go",
		Locations: []model.Location{{File: "b.go"}},
	}))

	stats := s.GetStats()
	assert.Equal(t, 2, stats.TotalPatterns)
	assert.Equal(t, 1, stats.ByCategory[model.CategoryAPI])
	assert.Equal(t, 2, stats.ByStatus[model.StatusDiscovered])
}

func TestInitializeMissingFileIsNotAnError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, s.Initialize())
	assert.Empty(t, s.GetAll())
}
