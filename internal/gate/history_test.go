package gate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/model"
)

func TestRunStoreSaveAndGetRecent(t *testing.T) {
	dir := t.TempDir()
	store := NewRunStore(dir, 10)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := RunRecord{ID: NewRunID(base.Add(time.Duration(i) * time.Minute)), Branch: "main", Overall: StatusPassed}
		require.NoError(t, store.Save(rec))
	}

	recent, err := store.GetRecent(0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// newest first
	assert.True(t, recent[0].ID > recent[1].ID)
}

func TestRunStoreEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	store := NewRunStore(dir, 2)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := RunRecord{ID: NewRunID(base.Add(time.Duration(i) * time.Minute))}
		require.NoError(t, store.Save(rec))
	}

	recent, err := store.GetRecent(0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRunStoreGetByBranchAndCommit(t *testing.T) {
	dir := t.TempDir()
	store := NewRunStore(dir, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(RunRecord{ID: NewRunID(base), Branch: "main", CommitSha: "abc"}))
	require.NoError(t, store.Save(RunRecord{ID: NewRunID(base.Add(time.Minute)), Branch: "feature", CommitSha: "def"}))

	mainRecords, err := store.GetByBranch("main", 0)
	require.NoError(t, err)
	require.Len(t, mainRecords, 1)

	found, err := store.GetByCommit("main", "abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "abc", found.CommitSha)

	notFound, err := store.GetByCommit("main", "zzz")
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestSnapshotStoreSanitizesBranchAndBounds(t *testing.T) {
	root := t.TempDir()
	store := NewSnapshotStore(root, 1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(HealthSnapshot{ID: NewRunID(base), Branch: "feature/x"}))
	require.NoError(t, store.Save(HealthSnapshot{ID: NewRunID(base.Add(time.Minute)), Branch: "feature/x"}))

	dirEntries, err := filepath.Glob(filepath.Join(root, "feature-x", "*.json"))
	require.NoError(t, err)
	assert.Len(t, dirEntries, 1)

	latest, err := store.Latest("feature/x")
	require.NoError(t, err)
	require.NotNil(t, latest)
}

func TestSnapshotStoreRoundTripsPatternAndConstraintHealth(t *testing.T) {
	root := t.TempDir()
	store := NewSnapshotStore(root, 5)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	snap := HealthSnapshot{
		ID:           NewRunID(base),
		Branch:       "main",
		OverallScore: 82.5,
		Patterns: map[model.PatternID]PatternHealth{
			"p1": {Confidence: 0.8, Compliance: 0.95, LocationCount: 10, OutlierCount: 1},
		},
		Constraints: map[string]ConstraintHealth{
			"inv1": {Satisfied: true, Confidence: 0.9},
		},
		Security:        SecuritySummary{AuthCoveragePercent: 100, ProtectedTables: 2},
		PatternCount:    1,
		ConstraintCount: 1,
	}
	require.NoError(t, store.Save(snap))

	reloaded, err := store.Latest("main")
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, 82.5, reloaded.OverallScore)
	assert.Equal(t, 1, reloaded.Patterns["p1"].LocationCount)
	assert.True(t, reloaded.Constraints["inv1"].Satisfied)
	assert.Equal(t, 2, reloaded.Security.ProtectedTables)
}
