package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ruizrica/drift/internal/model"
)

func configFloat(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func configInt(params map[string]any, key string, def int) int {
	if v, ok := params[key]; ok {
		if f, ok := v.(int); ok {
			return f
		}
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return def
}

func configBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func inFileSet(files []string, target string) bool {
	for _, f := range files {
		if f == target {
			return true
		}
	}
	return false
}

// PatternComplianceGate checks approved patterns (or all, per config)
// against the supplied files, counting outliers newly introduced in the
// changed files versus existing outliers still present elsewhere.
type PatternComplianceGate struct{}

func (PatternComplianceGate) ID() string { return "pattern-compliance" }

func (g PatternComplianceGate) Run(_ context.Context, in GateInput) GateResult {
	approvedOnly := !configBool(in.Config, "includeDiscovered", false)
	minRate := configFloat(in.Config, "minComplianceRate", 0.85)
	maxNewOutliers := configInt(in.Config, "maxNewOutliers", 0)

	var conforming, violating, newOutliers, existingOutliers int
	var violations []string

	for _, p := range in.Shared.Patterns {
		if approvedOnly && p.Status != model.StatusApproved {
			continue
		}
		conforming += len(p.Locations)
		violating += len(p.Outliers)
		for _, o := range p.Outliers {
			if inFileSet(in.Files, o.Location.File) {
				newOutliers++
				violations = append(violations, fmt.Sprintf("%s: new outlier in %s", p.Name, o.Location.File))
			} else {
				existingOutliers++
			}
		}
	}

	rate := 1.0
	if conforming+violating > 0 {
		rate = float64(conforming) / float64(conforming+violating)
	}

	passed := rate >= minRate && newOutliers <= maxNewOutliers
	status := StatusPassed
	if !passed {
		status = StatusFailed
	}

	return GateResult{
		Status:     status,
		Passed:     passed,
		Score:      rate * 100,
		Summary:    fmt.Sprintf("compliance %.1f%%, %d new outliers, %d existing", rate*100, newOutliers, existingOutliers),
		Violations: violations,
		Details: map[string]any{
			"complianceRate":  rate,
			"newOutliers":     newOutliers,
			"existingOutliers": existingOutliers,
		},
	}
}

// ConstraintVerificationGate evaluates stored invariants against the
// change set: an invariant is satisfied when its evidence shows no
// violations within the scope that overlaps the changed files.
type ConstraintVerificationGate struct{}

func (ConstraintVerificationGate) ID() string { return "constraint-verification" }

func (g ConstraintVerificationGate) Run(_ context.Context, in GateInput) GateResult {
	requireAll := configBool(in.Config, "requireAll", true)

	var satisfied, total int
	var violations []string
	for _, inv := range in.Shared.Invariants {
		if !scopeOverlapsFiles(inv.Scope, in.Files) {
			continue
		}
		total++
		ok := inv.Evidence.Violating == 0
		if ok {
			satisfied++
		} else {
			violations = append(violations, fmt.Sprintf("%s: %d violating locations", inv.ID, inv.Evidence.Violating))
		}
	}

	score := 100.0
	if total > 0 {
		score = 100 * float64(satisfied) / float64(total)
	}
	passed := total == 0 || (requireAll && satisfied == total) || (!requireAll && satisfied > 0)
	status := StatusPassed
	if !passed {
		status = StatusFailed
	}

	return GateResult{
		Status:     status,
		Passed:     passed,
		Score:      score,
		Summary:    fmt.Sprintf("%d/%d constraints satisfied in changed scope", satisfied, total),
		Violations: violations,
	}
}

func scopeOverlapsFiles(scope []string, files []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, glob := range scope {
		for _, f := range files {
			if ok, _ := doublestar.Match(glob, f); ok {
				return true
			}
		}
	}
	return false
}

// RegressionSeverity classifies how much a pattern regressed between
// snapshots.
type RegressionSeverity string

const (
	RegressionMinor   RegressionSeverity = "minor"
	RegressionMod     RegressionSeverity = "moderate"
	RegressionSevere  RegressionSeverity = "severe"
)

// RegressionGate compares the current pattern set against the previous
// health snapshot, classifying confidence/compliance regressions.
type RegressionGate struct {
	CriticalCategories []model.Category
}

func (RegressionGate) ID() string { return "regression" }

func (g RegressionGate) Run(_ context.Context, in GateInput) GateResult {
	prev := in.Shared.PreviousSnapshot
	if prev == nil {
		return GateResult{Status: StatusSkipped, Passed: true, Score: 100, Summary: "no previous snapshot to compare against"}
	}

	critical := make(map[model.Category]bool, len(g.CriticalCategories))
	for _, c := range g.CriticalCategories {
		critical[c] = true
	}
	maxConfidenceDrop := configFloat(in.Config, "maxConfidenceDrop", 0.2)
	maxComplianceDrop := configFloat(in.Config, "maxComplianceDrop", 0.2)

	var violations, warnings []string
	criticalRegression := false
	newOutliers := 0

	for _, p := range in.Shared.Patterns {
		prevHealth, ok := prev.Patterns[p.ID]
		if !ok {
			continue
		}

		compliance := patternComplianceRate(p)
		confidenceDrop := prevHealth.Confidence - p.Confidence.Score
		complianceDrop := prevHealth.Compliance - compliance
		outlierDelta := len(p.Outliers) - prevHealth.OutlierCount
		if outlierDelta > 0 {
			newOutliers += outlierDelta
		}

		if confidenceDrop <= 0 && complianceDrop <= 0 && outlierDelta <= 0 {
			continue
		}

		sev := classifyRegression(maxOf(confidenceDrop, complianceDrop))
		msg := fmt.Sprintf("%s regressed %s (confidence delta %.2f, compliance delta %.2f, +%d outliers)",
			p.Name, sev, confidenceDrop, complianceDrop, outlierDelta)

		switch {
		case critical[p.Category]:
			criticalRegression = true
			violations = append(violations, msg)
		case confidenceDrop > maxConfidenceDrop || complianceDrop > maxComplianceDrop:
			violations = append(violations, msg)
		default:
			warnings = append(warnings, msg)
		}
	}

	passed := !criticalRegression && len(violations) == 0
	status := StatusPassed
	if !passed {
		status = StatusFailed
	} else if len(warnings) > 0 {
		status = StatusWarned
	}

	return GateResult{
		Status:     status,
		Passed:     passed,
		Score:      100 - float64(len(violations))*10,
		Summary:    fmt.Sprintf("%d regressions, %d warnings, %d new outliers", len(violations), len(warnings), newOutliers),
		Violations: violations,
		Warnings:   warnings,
	}
}

// patternComplianceRate is the fraction of a pattern's recorded evidence
// that is a clean location rather than an outlier; a pattern with no
// evidence at all is vacuously fully compliant.
func patternComplianceRate(p model.Pattern) float64 {
	total := len(p.Locations) + len(p.Outliers)
	if total == 0 {
		return 1
	}
	return float64(len(p.Locations)) / float64(total)
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func classifyRegression(delta float64) RegressionSeverity {
	switch {
	case delta >= 0.3:
		return RegressionSevere
	case delta >= 0.15:
		return RegressionMod
	default:
		return RegressionMinor
	}
}

// ImpactSimulationGate reads the call graph and the change set to estimate
// blast radius: files/functions/entry-points affected, a friction score,
// and breaking-change risk.
type ImpactSimulationGate struct{}

func (ImpactSimulationGate) ID() string { return "impact-simulation" }

type BreakingRisk string

const (
	RiskLow      BreakingRisk = "low"
	RiskMedium   BreakingRisk = "medium"
	RiskHigh     BreakingRisk = "high"
	RiskCritical BreakingRisk = "critical"
)

func (g ImpactSimulationGate) Run(_ context.Context, in GateInput) GateResult {
	cg := in.Shared.CallGraph
	maxFriction := configFloat(in.Config, "maxFrictionScore", 80)

	if cg == nil {
		return GateResult{Status: StatusSkipped, Passed: true, Score: 100, Summary: "no call graph available"}
	}

	entryPoints := cg.EntryPoints()
	affectedEntries := 0
	affectedFns := make(map[string]bool)
	for _, e := range entryPoints {
		reached := false
		for _, callee := range cg.TransitiveCallees(e) {
			for _, f := range in.Files {
				if strings.Contains(callee, f) {
					affectedFns[callee] = true
					reached = true
					break
				}
			}
		}
		if reached {
			affectedEntries++
		}
	}

	friction := 0.0
	if len(entryPoints) > 0 {
		friction = 100 * float64(affectedEntries) / float64(len(entryPoints))
	}

	risk := RiskLow
	switch {
	case friction >= 75:
		risk = RiskCritical
	case friction >= 50:
		risk = RiskHigh
	case friction >= 25:
		risk = RiskMedium
	}

	passed := friction <= maxFriction
	status := StatusPassed
	if !passed {
		status = StatusFailed
	}

	return GateResult{
		Status:  status,
		Passed:  passed,
		Score:   100 - friction,
		Summary: fmt.Sprintf("friction %.1f, risk %s, %d functions affected", friction, risk, len(affectedFns)),
		Details: map[string]any{
			"filesAffected":       len(in.Files),
			"functionsAffected":   len(affectedFns),
			"entryPointsAffected": affectedEntries,
			"frictionScore":       friction,
			"breakingRisk":        string(risk),
		},
	}
}

// SecurityBoundaryGate reads the boundary store and classifies each
// sensitive table as protected, partial, or unprotected by how many of its
// accessor names pass LooksAuthenticated; it fails when any sensitive table
// is unprotected. It does not trace call-graph paths from entry points,
// does not read the change set, and does not report the per-table status.
type SecurityBoundaryGate struct{}

func (SecurityBoundaryGate) ID() string { return "security-boundary" }

type TableStatus string

const (
	TableProtected   TableStatus = "protected"
	TableUnprotected TableStatus = "unprotected"
	TablePartial     TableStatus = "partial"
)

func (g SecurityBoundaryGate) Run(_ context.Context, in GateInput) GateResult {
	bs := in.Shared.BoundaryStore
	if bs == nil {
		return GateResult{Status: StatusSkipped, Passed: true, Score: 100, Summary: "no boundary store available"}
	}

	sensitive := make(map[string]bool)
	for _, t := range bs.SensitiveTables() {
		sensitive[t] = true
	}

	var violations []string
	unprotectedCount := 0
	for table, accessors := range bs.AccessPointsByTable() {
		if !sensitive[table] {
			continue
		}
		authed := 0
		for _, a := range accessors {
			if LooksAuthenticated(a) {
				authed++
			}
		}
		var status TableStatus
		switch {
		case authed == len(accessors) && len(accessors) > 0:
			status = TableProtected
		case authed == 0:
			status = TableUnprotected
			unprotectedCount++
			violations = append(violations, fmt.Sprintf("table %s has no authenticated access path", table))
		default:
			status = TablePartial
		}
		_ = status
	}

	passed := unprotectedCount == 0
	status := StatusPassed
	if !passed {
		status = StatusFailed
	}

	return GateResult{
		Status:     status,
		Passed:     passed,
		Score:      100 - float64(unprotectedCount)*25,
		Summary:    fmt.Sprintf("%d unprotected sensitive tables", unprotectedCount),
		Violations: violations,
	}
}

var authHints = []string{"auth", "authenticate", "authorize", "checkauth", "requireauth"}

// LooksAuthenticated reports whether accessor's name contains a hint that
// it sits behind an auth check, the same heuristic SecurityBoundaryGate and
// a health snapshot's security summary both use to classify a table's
// access points.
func LooksAuthenticated(accessor string) bool {
	lower := strings.ToLower(accessor)
	for _, hint := range authHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// CustomRulesGate evaluates the user-supplied custom rule set against the
// change set; any enabled rule yielding a violation fails the gate.
type CustomRulesGate struct {
	FileReader func(path string) ([]byte, error)
}

func (CustomRulesGate) ID() string { return "custom-rules" }

func (g CustomRulesGate) Run(_ context.Context, in GateInput) GateResult {
	rs := in.Shared.CustomRuleSet
	if rs == nil {
		return GateResult{Status: StatusSkipped, Passed: true, Score: 100, Summary: "no custom rule set configured"}
	}

	var violations []string
	for _, rule := range rs.Rules {
		if !rule.Enabled {
			continue
		}
		vs := EvaluateRule(rule, RuleEvalInput{Files: in.Files, ProjectRoot: in.ProjectRoot, ReadFile: g.FileReader})
		violations = append(violations, vs...)
	}

	passed := len(violations) == 0
	status := StatusPassed
	if !passed {
		status = StatusFailed
	}
	score := 100.0
	if len(rs.Rules) > 0 {
		score = 100 * (1 - float64(len(violations))/float64(len(rs.Rules)))
		if score < 0 {
			score = 0
		}
	}

	return GateResult{
		Status:     status,
		Passed:     passed,
		Score:      score,
		Summary:    fmt.Sprintf("%d custom rule violations", len(violations)),
		Violations: violations,
	}
}
