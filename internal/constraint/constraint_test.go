package constraint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ruizrica/drift/internal/model"
)

func approvedPattern(category model.Category, locCount, outlierCount int) model.Pattern {
	locs := make([]model.Location, locCount)
	for i := range locs {
		locs[i] = model.Location{File: "pkg/a.go", Line: i + 1}
	}
	outliers := make([]model.Outlier, outlierCount)
	return model.Pattern{
		ID:         "p1",
		Name:       "consistent-error-wrap",
		Category:   category,
		Status:     model.StatusApproved,
		Confidence: model.Confidence{Score: 0.9},
		Locations:  locs,
		Outliers:   outliers,
		FirstSeen:  time.Now(),
	}
}

func TestPatternsToInvariantsRequiresApprovedAndThreshold(t *testing.T) {
	low := approvedPattern(model.CategoryErrors, 2, 0) // below location threshold
	ok := approvedPattern(model.CategoryAuth, 4, 1)

	invs := PatternsToInvariants([]model.Pattern{low, ok})
	assert.Len(t, invs, 1)
	assert.Equal(t, TypeMustPrecede, invs[0].Type)
	assert.InDelta(t, 4.0/5.0, invs[0].Confidence, 0.001)
}

type fakeCallGraph struct {
	entries  []string
	callees  map[string][]string
}

func (f fakeCallGraph) EntryPoints() []string { return f.entries }
func (f fakeCallGraph) TransitiveCallees(fn string) []string {
	return f.callees[fn]
}

func TestAuthBeforeDataEmitsAboveThreshold(t *testing.T) {
	cg := fakeCallGraph{
		entries: []string{"e1", "e2", "e3", "e4", "e5"},
		callees: map[string][]string{
			"e1": {"requireAuth", "getData"},
			"e2": {"checkAuth", "getData"},
			"e3": {"getData"},
			"e4": {"authorize", "getData"},
			"e5": {"hasRole", "getData"},
		},
	}
	inv, ok := AuthBeforeData(cg)
	assert.True(t, ok)
	assert.InDelta(t, 4.0/5.0, inv.Confidence, 0.01)
}

func TestAuthBeforeDataFuzzyMatchesNearMissSpelling(t *testing.T) {
	cg := fakeCallGraph{
		entries: []string{"e1", "e2", "e3"},
		callees: map[string][]string{
			"e1": {"athorize", "getData"}, // typo without "auth", only the fuzzy pass can match "authorize"
			"e2": {"checkAuth", "getData"},
			"e3": {"requireAuth", "getData"},
		},
	}
	inv, ok := AuthBeforeData(cg)
	assert.True(t, ok)
	assert.Equal(t, 3, inv.Evidence.Conforming)
}

type fakeBoundaryStore struct {
	access    map[string][]string
	sensitive []string
}

func (f fakeBoundaryStore) AccessPointsByTable() map[string][]string { return f.access }
func (f fakeBoundaryStore) SensitiveTables() []string                { return f.sensitive }

func TestDataAccessLayerPicksDominantLayer(t *testing.T) {
	bs := fakeBoundaryStore{
		access: map[string][]string{
			"users": {"UserRepository.find", "UserRepository.save", "UserRepository.update", "UserRepository.delete", "adHocQuery"},
		},
	}
	invs := DataAccessLayer(bs)
	assert.Len(t, invs, 1)
	assert.Equal(t, TypeDataFlow, invs[0].Type)
}

func TestSensitiveDataProtectionFixedConfidence(t *testing.T) {
	bs := fakeBoundaryStore{sensitive: []string{"payments"}}
	invs := SensitiveDataProtection(bs)
	assert.Len(t, invs, 1)
	assert.Equal(t, 0.95, invs[0].Confidence)
}

type fakeTestTopology struct {
	coverage, mockRatio float64
}

func (f fakeTestTopology) CoverageRatio() float64    { return f.coverage }
func (f fakeTestTopology) AverageMockRatio() float64 { return f.mockRatio }

func TestTestCoverageAndMockRatio(t *testing.T) {
	tt := fakeTestTopology{coverage: 0.75, mockRatio: 0.3}
	cov, ok := TestCoverage(tt)
	assert.True(t, ok)
	assert.InDelta(t, 0.75, cov.Confidence, 0.001)

	mock, ok := MockRatio(tt)
	assert.True(t, ok)
	assert.Equal(t, 0.7, mock.Confidence)
}

type fakeErrorTopology struct {
	tryCatch, emptyCatch float64
}

func (f fakeErrorTopology) AsyncTryCatchRatio() float64 { return f.tryCatch }
func (f fakeErrorTopology) EmptyCatchRatio() float64    { return f.emptyCatch }

func TestAsyncTryCatchAndNoSilentSwallow(t *testing.T) {
	et := fakeErrorTopology{tryCatch: 0.8, emptyCatch: 0.05}
	inv, ok := AsyncTryCatch(et)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityWarning, inv.Severity)

	inv2, ok := NoSilentSwallow(et)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityError, inv2.Severity)
}

func TestEvaluateFiltersByMinConfidenceAndCategory(t *testing.T) {
	src := Sources{
		Patterns: []model.Pattern{approvedPattern(model.CategoryAuth, 5, 0)},
	}
	invs := Evaluate(src, Options{MinConfidence: 0.5})
	assert.Len(t, invs, 1)

	invsFiltered := Evaluate(src, Options{MinConfidence: 0.5, Categories: []model.Category{model.CategoryTesting}})
	assert.Empty(t, invsFiltered)
}
