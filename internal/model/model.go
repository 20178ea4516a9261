// Package model holds the data types shared across the core's components:
// locations, semantic locations, detection context, detector output, and
// the pattern/violation shapes the store and scan layers operate on.
// Centralizing them here, rather than letting each component define its
// own, is what lets the scan orchestrator's aggregation, the pattern
// store's merge, and the manifest's reverse index agree on dedup keys
// without converting between shapes.
package model

import (
	"time"

	"github.com/ruizrica/drift/internal/lang"
)

// Location is a single point in a file: 1-based line and column, with an
// optional end range.
type Location struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine,omitempty"`
	EndColumn int    `json:"endColumn,omitempty"`
}

// Key returns the (file, line, column) dedup key used to collapse
// duplicate observations in a pattern's location list.
func (l Location) Key() [3]any {
	return [3]any{l.File, l.Line, l.Column}
}

// SemanticKind enumerates the named constructs a semantic location can
// anchor to.
type SemanticKind string

const (
	KindClass     SemanticKind = "class"
	KindInterface SemanticKind = "interface"
	KindType      SemanticKind = "type"
	KindFunction  SemanticKind = "function"
	KindMethod    SemanticKind = "method"
	KindProperty  SemanticKind = "property"
	KindDecorator SemanticKind = "decorator"
	KindModule    SemanticKind = "module"
	KindBlock     SemanticKind = "block"
)

// SemanticLocation anchors a manifest entry to a named construct in a file
// rather than a bare line/column pair, so it survives reformatting.
type SemanticLocation struct {
	File        string       `json:"file"`
	ContentHash string       `json:"contentHash"`
	StartLine   int          `json:"startLine"`
	EndLine     int          `json:"endLine"`
	Kind        SemanticKind `json:"kind"`
	Name        string       `json:"name"`
	Signature   string       `json:"signature,omitempty"`
	Language    lang.Language `json:"language"`
	Confidence  float64      `json:"confidence"`
}

// Key returns the (file, start, end, name) dedup key used to collapse
// duplicate semantic-location observations.
func (s SemanticLocation) Key() [4]any {
	return [4]any{s.File, s.StartLine, s.EndLine, s.Name}
}

// Severity is the violation severity scale a detector assigns its output.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Category is the closed set of pattern categories a stored pattern falls
// into.
type Category string

const (
	CategoryAPI             Category = "api"
	CategoryAuth            Category = "auth"
	CategorySecurity        Category = "security"
	CategoryErrors          Category = "errors"
	CategoryStructural      Category = "structural"
	CategoryComponents      Category = "components"
	CategoryStyling         Category = "styling"
	CategoryLogging         Category = "logging"
	CategoryTesting         Category = "testing"
	CategoryDataAccess      Category = "data-access"
	CategoryConfig          Category = "config"
	CategoryTypes           Category = "types"
	CategoryPerformance     Category = "performance"
	CategoryAccessibility   Category = "accessibility"
	CategoryDocumentation   Category = "documentation"
)

// PatternMatch is one detector-local observation that a file conforms to a
// pattern, emitted per file by Detector.Detect.
type PatternMatch struct {
	DetectorLocalID string   `json:"detectorLocalId"`
	Confidence      float64  `json:"confidence"`
	Location        Location `json:"location"`
	Semantic        *SemanticLocation `json:"semantic,omitempty"`
}

// Fix is an optional quick-fix a detector can offer for a violation.
type Fix struct {
	Description string `json:"description"`
	Explanation string `json:"explanation,omitempty"`
}

// Violation is a specific, actionable deviation a detector reports for one
// file.
type Violation struct {
	DetectorID string   `json:"detectorId"`
	// DetectorLocalID, when set, names the same local pattern id a
	// PatternMatch from this detector would report, letting a violation be
	// folded back into that pattern's evidence as an outlier rather than
	// only surfacing as a standalone diagnostic.
	DetectorLocalID string   `json:"detectorLocalId,omitempty"`
	Category        Category `json:"category"`
	Severity        Severity `json:"severity"`
	Message         string   `json:"message"`
	Expected        string   `json:"expected,omitempty"`
	Actual          string   `json:"actual,omitempty"`
	Range           Location `json:"range"`
	Fix             *Fix     `json:"fix,omitempty"`
}

// DetectionMetadata is explicitly-shaped detector metadata. There is no
// free-form "custom violation" fallback: a detector emits a proper
// Violation or nothing.
type DetectionMetadata struct {
	Notes map[string]string `json:"notes,omitempty"`
}

// DetectionResult is a detector's tagged-variant output for one file: every
// field is always present, absence is an empty collection rather than nil.
type DetectionResult struct {
	Patterns   []PatternMatch     `json:"patterns"`
	Violations []Violation        `json:"violations"`
	Metadata   DetectionMetadata  `json:"metadata"`
}

// EmptyResult returns a DetectionResult with no patterns or violations,
// used when a detector errors or does not apply.
func EmptyResult() DetectionResult {
	return DetectionResult{
		Patterns:   []PatternMatch{},
		Violations: []Violation{},
		Metadata:   DetectionMetadata{},
	}
}

// ProjectContext is the shared, read-only context handed to every detector
// alongside its per-file DetectionContext.
type ProjectContext struct {
	Root     string
	Files    []string
	Config   map[string]string
}

// DetectionContext is the input to a detector for one file.
type DetectionContext struct {
	ScanID         string
	File           string
	Content        string
	Language       lang.Language
	SyntaxTree     interface{} // concrete type from internal/treeparse; nil when unavailable
	Imports        []string
	Exports        []string
	Extension      string
	IsTestFile     bool
	IsTypeDefFile  bool
	Project        ProjectContext
}

// ConfidenceLevel is the derived bucket for a pattern's confidence score.
type ConfidenceLevel string

const (
	LevelHigh      ConfidenceLevel = "high"
	LevelMedium    ConfidenceLevel = "medium"
	LevelLow       ConfidenceLevel = "low"
	LevelUncertain ConfidenceLevel = "uncertain"
)

// LevelForScore derives the confidence bucket from a numeric score.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.85:
		return LevelHigh
	case score >= 0.65:
		return LevelMedium
	case score >= 0.45:
		return LevelLow
	default:
		return LevelUncertain
	}
}

// Confidence holds the weighted components of a stored pattern's
// confidence record.
type Confidence struct {
	Frequency   float64         `json:"frequency"`
	Consistency float64         `json:"consistency"`
	Age         float64         `json:"age"`
	Spread      float64         `json:"spread"`
	Score       float64         `json:"score"`
	Level       ConfidenceLevel `json:"level"`
}

// Status is a pattern's user-controlled lifecycle state.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusApproved   Status = "approved"
	StatusIgnored    Status = "ignored"
)

// Outlier is a location that deviates from an otherwise coherent pattern.
type Outlier struct {
	Location       Location `json:"location"`
	Reason         string   `json:"reason"`
	DeviationScore float64  `json:"deviationScore"`
}

// Key returns the (file, line, reason) dedup key used for outlier
// deduplication.
func (o Outlier) Key() [3]any {
	return [3]any{o.Location.File, o.Location.Line, o.Reason}
}

// DetectorDescriptor records which detector/config produced a pattern.
type DetectorDescriptor struct {
	Kind   string            `json:"kind"`
	Config map[string]string `json:"config,omitempty"`
}

// PatternID is a stable pattern identifier, derived rather than assigned,
// so the same logical pattern resolves to the same id across scans.
type PatternID string

// Pattern is the persisted, cross-file learned-pattern record.
type Pattern struct {
	ID          PatternID           `json:"id"`
	Category    Category            `json:"category"`
	Subcategory string              `json:"subcategory"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Detector    DetectorDescriptor  `json:"detector"`
	Confidence  Confidence          `json:"confidence"`
	Locations   []Location          `json:"locations"`
	Outliers    []Outlier           `json:"outliers"`
	FirstSeen   time.Time           `json:"firstSeen"`
	LastSeen    time.Time           `json:"lastSeen"`
	Source      string              `json:"source,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Severity    Severity            `json:"severity"`
	AutoFixable bool                `json:"autoFixable"`
	Status      Status              `json:"status"`
	Language    lang.Language       `json:"language,omitempty"`
}

// MaxLocations bounds a pattern's location list; once reached, new
// locations evict the oldest (FIFO) rather than growing without bound.
const MaxLocations = 100
