// Package constraint derives declarative invariants from several evidence
// sources — the pattern store, an external call graph, an external
// boundary store, test topology, and error-handling topology — so the
// quality-gate orchestrator has something concrete to check a change
// against beyond raw pattern confidence.
package constraint

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/ruizrica/drift/internal/model"
)

// Type is the closed set of invariant shapes a rule can emit.
type Type string

const (
	TypeMustPrecede Type = "must_precede"
	TypeMustWrap    Type = "must_wrap"
	TypeMustHave    Type = "must_have"
	TypeMustNotHave Type = "must_not_have"
	TypeDataFlow    Type = "data_flow"
)

// Evidence records what backed an emitted invariant: counts and a bounded
// sample of locations, plus which source components were consulted.
type Evidence struct {
	Conforming int
	Violating  int
	Samples    []model.Location
	Sources    []string
}

const maxSamples = 5

// Invariant is one derived rule the code base is expected to satisfy.
type Invariant struct {
	ID         string
	Type       Type
	Category   model.Category
	Scope      []string // directory globs the invariant applies to
	Confidence float64
	Severity   model.Severity
	Message    string
	Evidence   Evidence
}

// Options controls which invariants Evaluate emits.
type Options struct {
	MinConfidence float64 // default 0.90 when zero
	Categories    []model.Category
}

func (o Options) minConfidence() float64 {
	if o.MinConfidence <= 0 {
		return 0.90
	}
	return o.MinConfidence
}

func (o Options) allowsCategory(c model.Category) bool {
	if len(o.Categories) == 0 {
		return true
	}
	for _, want := range o.Categories {
		if want == c {
			return true
		}
	}
	return false
}

var authKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)auth`),
	regexp.MustCompile(`(?i)authenticate`),
	regexp.MustCompile(`(?i)authorize`),
	regexp.MustCompile(`(?i)checkAuth`),
	regexp.MustCompile(`(?i)requireAuth`),
	regexp.MustCompile(`(?i)isAuthenticated`),
	regexp.MustCompile(`(?i)verifyToken`),
	regexp.MustCompile(`(?i)validateToken`),
	regexp.MustCompile(`(?i)checkPermission`),
	regexp.MustCompile(`(?i)hasRole`),
}

var validationKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)validate`),
	regexp.MustCompile(`(?i)sanitize`),
	regexp.MustCompile(`(?i)check`),
	regexp.MustCompile(`(?i)verify`),
	regexp.MustCompile(`(?i)parse`),
	regexp.MustCompile(`(?i)schema`),
	regexp.MustCompile(`(?i)zod`),
	regexp.MustCompile(`(?i)yup`),
	regexp.MustCompile(`(?i)joi`),
}

var layerSuffix = regexp.MustCompile(`(\w+)(Repository|Service|DAO|Store|Manager)`)

// fuzzyMatchesAny reports whether name matches any keyword regex directly,
// or — when none match exactly — whether its Jaro-Winkler similarity to any
// keyword's literal form exceeds 0.85, catching near-miss spellings like
// "authroize".
func fuzzyMatchesAny(name string, keywords []*regexp.Regexp, literals []string) bool {
	for _, re := range keywords {
		if re.MatchString(name) {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, lit := range literals {
		score, err := edlib.StringsSimilarity(lower, lit, edlib.JaroWinkler)
		if err == nil && float64(score) >= 0.85 {
			return true
		}
	}
	return false
}

var authLiterals = []string{"auth", "authenticate", "authorize", "checkauth", "requireauth", "isauthenticated", "verifytoken", "validatetoken", "checkpermission", "hasrole"}
var validationLiterals = []string{"validate", "sanitize", "check", "verify", "parse", "schema", "zod", "yup", "joi"}

// PatternsToInvariants converts approved, well-evidenced patterns into
// invariants. A pattern qualifies at confidence >= 0.85 and >= 3 locations.
func PatternsToInvariants(patterns []model.Pattern) []Invariant {
	var out []Invariant
	for _, p := range patterns {
		if p.Status != model.StatusApproved {
			continue
		}
		if p.Confidence.Score < 0.85 || len(p.Locations) < 3 {
			continue
		}

		conforming := len(p.Locations)
		violating := len(p.Outliers)
		confidence := 1.0
		if conforming+violating > 0 {
			confidence = float64(conforming) / float64(conforming+violating)
		}

		out = append(out, Invariant{
			ID:         "pattern:" + string(p.ID),
			Type:       typeForCategory(p.Category),
			Category:   p.Category,
			Scope:      scopeFromLocations(p.Locations),
			Confidence: confidence,
			Severity:   severityForCategory(p.Category),
			Message:    "pattern " + p.Name + " must hold across its scope",
			Evidence: Evidence{
				Conforming: conforming,
				Violating:  violating,
				Samples:    sampleLocations(p.Locations),
				Sources:    []string{"patternstore"},
			},
		})
	}
	return out
}

func typeForCategory(c model.Category) Type {
	switch c {
	case model.CategoryAuth:
		return TypeMustPrecede
	case model.CategoryErrors:
		return TypeMustWrap
	case model.CategoryLogging, model.CategoryTesting, model.CategorySecurity:
		return TypeMustHave
	default:
		return TypeMustHave
	}
}

func severityForCategory(c model.Category) model.Severity {
	if c == model.CategoryAuth || c == model.CategorySecurity {
		return model.SeverityError
	}
	return model.SeverityWarning
}

func scopeFromLocations(locs []model.Location) []string {
	seen := make(map[string]bool)
	var out []string
	for _, loc := range locs {
		dir := filepath.ToSlash(filepath.Dir(loc.File))
		glob := dir + "/**"
		if !seen[glob] {
			seen[glob] = true
			out = append(out, glob)
		}
	}
	return out
}

func sampleLocations(locs []model.Location) []model.Location {
	if len(locs) <= maxSamples {
		return append([]model.Location(nil), locs...)
	}
	return append([]model.Location(nil), locs[:maxSamples]...)
}

// AuthBeforeData emits a must_precede invariant when most entry points that
// reach data access also reach an auth-bearing function first.
func AuthBeforeData(cg CallGraph) (Invariant, bool) {
	return callGraphGate(cg, authKeywords, authLiterals, 3, 0.80, model.SeverityError,
		"auth-before-data", "entry points reaching data access must first reach an auth check")
}

// InputValidation emits a must_precede invariant when most entry points
// that reach data access also reach an input-validation function first.
func InputValidation(cg CallGraph) (Invariant, bool) {
	return callGraphGate(cg, validationKeywords, validationLiterals, 3, 0.70, model.SeverityWarning,
		"input-validation", "entry points reaching data access must first reach input validation")
}

func callGraphGate(cg CallGraph, keywords []*regexp.Regexp, literals []string, minEntries int, threshold float64, sev model.Severity, id, message string) (Invariant, bool) {
	entries := cg.EntryPoints()
	if len(entries) < minEntries {
		return Invariant{}, false
	}

	var bearing int
	for _, e := range entries {
		for _, callee := range cg.TransitiveCallees(e) {
			if fuzzyMatchesAny(callee, keywords, literals) {
				bearing++
				break
			}
		}
	}

	ratio := float64(bearing) / float64(len(entries))
	if ratio < threshold {
		return Invariant{}, false
	}

	return Invariant{
		ID:         id,
		Type:       TypeMustPrecede,
		Category:   model.CategoryAuth,
		Confidence: ratio,
		Severity:   sev,
		Message:    message,
		Evidence: Evidence{
			Conforming: bearing,
			Violating:  len(entries) - bearing,
			Sources:    []string{"callgraph"},
		},
	}, true
}

// DataAccessLayer emits data_flow invariants naming the dominant accessor
// layer per table, where a single layer covers at least 80% of accesses.
func DataAccessLayer(bs BoundaryStore) []Invariant {
	var out []Invariant
	for table, accessors := range bs.AccessPointsByTable() {
		counts := make(map[string]int)
		for _, a := range accessors {
			m := layerSuffix.FindStringSubmatch(a)
			if m == nil {
				continue
			}
			counts[m[1]+m[2]]++
		}
		var dominant string
		var dominantCount int
		for layer, count := range counts {
			if count > dominantCount {
				dominant, dominantCount = layer, count
			}
		}
		if dominantCount == 0 || float64(dominantCount)/float64(len(accessors)) < 0.80 {
			continue
		}
		out = append(out, Invariant{
			ID:         "data-access-layer:" + table,
			Type:       TypeDataFlow,
			Category:   model.CategoryDataAccess,
			Confidence: float64(dominantCount) / float64(len(accessors)),
			Severity:   model.SeverityWarning,
			Message:    table + " must be accessed through " + dominant,
			Evidence:   Evidence{Conforming: dominantCount, Violating: len(accessors) - dominantCount, Sources: []string{"boundarystore"}},
		})
	}
	return out
}

// SensitiveDataProtection emits a fixed-confidence must_have invariant per
// table flagged as holding sensitive fields.
func SensitiveDataProtection(bs BoundaryStore) []Invariant {
	var out []Invariant
	for _, table := range bs.SensitiveTables() {
		out = append(out, Invariant{
			ID:         "sensitive-data:" + table,
			Type:       TypeMustHave,
			Category:   model.CategorySecurity,
			Confidence: 0.95,
			Severity:   model.SeverityError,
			Message:    table + " requires auth and audit on sensitive fields",
			Evidence:   Evidence{Sources: []string{"boundarystore"}},
		})
	}
	return out
}

// TestCoverage emits a must_have invariant when at least 70% of non-test
// functions are reached by at least one test.
func TestCoverage(tt TestTopology) (Invariant, bool) {
	ratio := tt.CoverageRatio()
	if ratio < 0.70 {
		return Invariant{}, false
	}
	return Invariant{
		ID:         "test-coverage",
		Type:       TypeMustHave,
		Category:   model.CategoryTesting,
		Confidence: ratio,
		Severity:   model.SeverityWarning,
		Message:    "non-test functions must be covered by at least one test",
		Evidence:   Evidence{Sources: []string{"testtopology"}},
	}, true
}

// MockRatio emits a must_not_have invariant capping mock ratio at 0.7 when
// the average mock ratio per test is under 0.5.
func MockRatio(tt TestTopology) (Invariant, bool) {
	if tt.AverageMockRatio() >= 0.5 {
		return Invariant{}, false
	}
	return Invariant{
		ID:         "mock-ratio",
		Type:       TypeMustNotHave,
		Category:   model.CategoryTesting,
		Confidence: 0.7,
		Severity:   model.SeverityInfo,
		Message:    "tests must not exceed a 0.7 mock ratio",
		Evidence:   Evidence{Sources: []string{"testtopology"}},
	}, true
}

// AsyncTryCatch emits a must_have invariant when at least 70% of async
// functions wrap their bodies in try/catch.
func AsyncTryCatch(et ErrorTopology) (Invariant, bool) {
	ratio := et.AsyncTryCatchRatio()
	if ratio < 0.70 {
		return Invariant{}, false
	}
	return Invariant{
		ID:         "async-try-catch",
		Type:       TypeMustHave,
		Category:   model.CategoryErrors,
		Confidence: ratio,
		Severity:   model.SeverityWarning,
		Message:    "async functions must wrap their bodies in try/catch",
		Evidence:   Evidence{Sources: []string{"errortopology"}},
	}, true
}

// NoSilentSwallow emits a must_not_have invariant when fewer than 10% of
// functions contain an empty catch block.
func NoSilentSwallow(et ErrorTopology) (Invariant, bool) {
	ratio := et.EmptyCatchRatio()
	if ratio >= 0.10 {
		return Invariant{}, false
	}
	return Invariant{
		ID:         "no-silent-swallow",
		Type:       TypeMustNotHave,
		Category:   model.CategoryErrors,
		Confidence: 1 - ratio,
		Severity:   model.SeverityError,
		Message:    "catch blocks must not silently swallow errors",
		Evidence:   Evidence{Sources: []string{"errortopology"}},
	}, true
}

// Sources bundles the external collaborators Evaluate draws from; any of
// them may be nil to skip that source's rules.
type Sources struct {
	Patterns []model.Pattern
	CallGraph
	BoundaryStore
	TestTopology
	ErrorTopology
}

// Evaluate runs every per-source rule and returns the invariants that pass
// opts' minConfidence and category filters.
func Evaluate(src Sources, opts Options) []Invariant {
	var all []Invariant

	if src.Patterns != nil {
		all = append(all, PatternsToInvariants(src.Patterns)...)
	}
	if src.CallGraph != nil {
		if inv, ok := AuthBeforeData(src.CallGraph); ok {
			all = append(all, inv)
		}
		if inv, ok := InputValidation(src.CallGraph); ok {
			all = append(all, inv)
		}
	}
	if src.BoundaryStore != nil {
		all = append(all, DataAccessLayer(src.BoundaryStore)...)
		all = append(all, SensitiveDataProtection(src.BoundaryStore)...)
	}
	if src.TestTopology != nil {
		if inv, ok := TestCoverage(src.TestTopology); ok {
			all = append(all, inv)
		}
		if inv, ok := MockRatio(src.TestTopology); ok {
			all = append(all, inv)
		}
	}
	if src.ErrorTopology != nil {
		if inv, ok := AsyncTryCatch(src.ErrorTopology); ok {
			all = append(all, inv)
		}
		if inv, ok := NoSilentSwallow(src.ErrorTopology); ok {
			all = append(all, inv)
		}
	}

	minConf := opts.minConfidence()
	var out []Invariant
	for _, inv := range all {
		if inv.Confidence < minConf {
			continue
		}
		if !opts.allowsCategory(inv.Category) {
			continue
		}
		out = append(out, inv)
	}
	return out
}
