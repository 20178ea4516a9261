package drift

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/detect"
	"github.com/ruizrica/drift/internal/gate"
	"github.com/ruizrica/drift/internal/lang"
	"github.com/ruizrica/drift/internal/manifest"
	"github.com/ruizrica/drift/internal/model"
)

type fixtureDetector struct{}

func (fixtureDetector) ID() string               { return "fixture" }
func (fixtureDetector) Name() string              { return "Fixture" }
func (fixtureDetector) Description() string       { return "fixture detector for composition-root tests" }
func (fixtureDetector) Category() model.Category  { return model.CategoryStructural }
func (fixtureDetector) Subcategory() string       { return "" }
func (fixtureDetector) Languages() []lang.Language { return nil }
func (fixtureDetector) Kind() detect.Kind          { return detect.KindRegex }
func (fixtureDetector) Critical() bool             { return false }
func (fixtureDetector) GenerateQuickFix(model.Violation) (*model.Fix, bool) { return nil, false }

func (fixtureDetector) Detect(_ context.Context, dctx *model.DetectionContext) (model.DetectionResult, error) {
	return model.DetectionResult{
		Patterns: []model.PatternMatch{{
			DetectorLocalID: "p1",
			Location:        model.Location{File: dctx.File, Line: 1},
			Semantic:        &model.SemanticLocation{File: dctx.File, Name: "p1", StartLine: 1},
		}},
	}, nil
}

func withFixtureRegistry(t *testing.T) {
	t.Helper()
	detect.Reset()
	detect.Default().Register(fixtureDetector{})
	t.Cleanup(detect.Reset)
}

func TestScanPersistsPatternsAndManifest(t *testing.T) {
	withFixtureRegistry(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	result, err := Scan(context.Background(), root, ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesScanned)
	assert.Len(t, result.Patterns, 1)

	_, err = os.Stat(filepath.Join(root, ".drift", "patterns.json"))
	assert.NoError(t, err)

	record, err := QueryManifestByFile(root, manifest.FileQuery{File: "a.go"})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Len(t, record.Locations, 1)
}

func TestScanIncrementalSkipsUnchangedFiles(t *testing.T) {
	withFixtureRegistry(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	_, err := Scan(context.Background(), root, ScanOptions{Incremental: true})
	require.NoError(t, err)

	result, err := Scan(context.Background(), root, ScanOptions{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesScanned)
}

func TestScanRemovesPatternsAndManifestEntriesForDeletedFiles(t *testing.T) {
	withFixtureRegistry(t)

	root := t.TempDir()
	aPath := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(aPath, []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\n"), 0o644))

	_, err := Scan(context.Background(), root, ScanOptions{})
	require.NoError(t, err)

	record, err := QueryManifestByFile(root, manifest.FileQuery{File: "a.go"})
	require.NoError(t, err)
	require.NotNil(t, record)

	require.NoError(t, os.Remove(aPath))

	_, err = Scan(context.Background(), root, ScanOptions{})
	require.NoError(t, err)

	record, err = QueryManifestByFile(root, manifest.FileQuery{File: "a.go"})
	require.NoError(t, err)
	assert.Nil(t, record, "deleted file must disappear from the manifest")

	results, err := QueryManifestByPattern(root, manifest.PatternQuery{})
	require.NoError(t, err)
	for _, r := range results {
		for _, l := range r.Locations {
			assert.NotEqual(t, "a.go", l.File, "deleted file's evidence must not survive in any pattern")
		}
	}
}

func TestBuildHealthSnapshotAggregatesPatternAndConstraintHealth(t *testing.T) {
	p := model.Pattern{
		ID: "p1", Name: "p1",
		Locations:  []model.Location{{File: "a.go", Line: 1}},
		Outliers:   []model.Outlier{{Location: model.Location{File: "b.go", Line: 1}, Reason: "odd"}},
		Confidence: model.Confidence{Score: 0.6},
	}
	in := gate.GateInput{
		Branch: "main",
		Shared: gate.SharedContext{Patterns: []model.Pattern{p}},
	}

	snap := buildHealthSnapshot("snap1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), in)

	assert.Equal(t, 1, snap.PatternCount)
	health, ok := snap.Patterns["p1"]
	require.True(t, ok)
	assert.Equal(t, 1, health.LocationCount)
	assert.Equal(t, 1, health.OutlierCount)
	assert.InDelta(t, 0.5, health.Compliance, 0.001) // 1 location / (1 location + 1 outlier)
	assert.InDelta(t, 60.0, snap.OverallScore, 0.001)
}

func TestRunGatePolicyPersistsRunAndSnapshot(t *testing.T) {
	root := t.TempDir()

	policy := gate.Policy{
		Gates:       []gate.GateConfig{{ID: "pattern-compliance"}},
		Aggregation: gate.AggregationAll,
	}
	in := gate.GateInput{
		Files:  []string{"a.go"},
		Branch: "main",
		Shared: gate.SharedContext{
			Patterns: []model.Pattern{{ID: "p1", Name: "p1", Status: model.StatusApproved}},
		},
	}

	result, err := RunGatePolicy(context.Background(), root, policy, in)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	runs, err := RecentGateRuns(root, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "main", runs[0].Branch)

	snaps, err := RecentHealthSnapshots(root, "main", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}
