// Package contract matches backend HTTP endpoint definitions to frontend
// API calls by path similarity and surfaces field-level schema mismatches
// between the two sides of a matched pair.
package contract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// Endpoint is a backend HTTP route definition.
type Endpoint struct {
	Method string
	Path   string
	Fields []Field
}

// Call is a frontend API call site.
type Call struct {
	Method string
	Path   string
	Fields []Field
}

// Field is one named value on either side of a contract, used for
// mismatch detection.
type Field struct {
	Name       string
	Type       string
	Optional   bool
	Nullable   bool
}

// Status is a matched contract's lifecycle state.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusMismatch   Status = "mismatch"
)

// MismatchSeverity mirrors model.Severity without importing it, since a
// contract mismatch isn't a detector violation.
type MismatchSeverity string

const (
	SevError   MismatchSeverity = "error"
	SevWarning MismatchSeverity = "warning"
	SevInfo    MismatchSeverity = "info"
)

// FieldMismatch is one detected discrepancy between a backend and frontend
// field pair.
type FieldMismatch struct {
	Field    string
	Kind     string // missing-in-frontend, missing-in-backend, type, optionality, nullability
	Severity MismatchSeverity
	Detail   string
}

// Contract is a matched backend/frontend pair (or backend-only) with its
// computed confidence and any field mismatches.
type Contract struct {
	Backend           Endpoint
	Frontend          []Call
	Mismatches        []FieldMismatch
	MatchConfidence   float64
	FieldConfidence   float64
	Score             float64
	Status            Status
}

var paramPlaceholder = regexp.MustCompile(`\{[^}]+\}|<[^>]+>|\$\{[^}]+\}|:[A-Za-z_][\w]*`)
var commonPrefixes = []string{"/api", "/v1", "/rest", "/graphql", "/public", "/private", "/internal", "/external"}

// normalizePath replaces path-parameter syntax with a common ":param"
// placeholder, lowercases, collapses slashes, and drops a recognized
// leading prefix segment.
func normalizePath(path string) []string {
	p := paramPlaceholder.ReplaceAllString(path, ":param")
	p = strings.ToLower(p)
	for _, prefix := range commonPrefixes {
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			p = strings.TrimPrefix(p, prefix)
			break
		}
	}
	var segs []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

// Similarity computes the weighted path-similarity score between a backend
// and frontend path, in [0,1].
func Similarity(backendPath, frontendPath string) float64 {
	b := normalizePath(backendPath)
	f := normalizePath(frontendPath)

	if strings.Join(b, "/") == strings.Join(f, "/") {
		return 1.0
	}

	score := 0.25*segmentJaccard(b, f) +
		0.10*segmentCountProximity(b, f) +
		0.30*suffixMatch(b, f) +
		0.25*resourceNameScore(b, f) +
		0.10*paramPositionMatch(b, f)

	if len(b) == 1 && resourceNameScore(b, f) < 0.8 {
		score *= 0.5
	}
	if len(b) == 1 && b[0] == ":param" {
		score *= 0.3
	}
	return score
}

func segmentJaccard(a, b []string) float64 {
	setA := meaningfulSet(a)
	setB := meaningfulSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	var inter, union int
	union = len(setA)
	for k := range setB {
		if !setA[k] {
			union++
		}
	}
	for k := range setA {
		if setB[k] {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func meaningfulSet(segs []string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range segs {
		if s != ":param" {
			out[s] = true
		}
	}
	return out
}

func segmentCountProximity(a, b []string) float64 {
	maxCount := len(a)
	if len(b) > maxCount {
		maxCount = len(b)
	}
	if maxCount == 0 {
		return 1.0
	}
	delta := len(a) - len(b)
	if delta < 0 {
		delta = -delta
	}
	return 1 - float64(delta)/float64(maxCount)
}

// suffixMatch aligns the backend path to the end of the frontend path and
// counts exact-segment matches (a :param segment facing any other segment
// matches at 0.7), divided by backend length.
func suffixMatch(backend, frontend []string) float64 {
	if len(backend) == 0 {
		return 0
	}
	var total float64
	for i := 0; i < len(backend); i++ {
		bi := len(backend) - 1 - i
		fi := len(frontend) - 1 - i
		if fi < 0 {
			break
		}
		if backend[bi] == frontend[fi] {
			total += 1.0
		} else if backend[bi] == ":param" || frontend[fi] == ":param" {
			total += 0.7
		}
	}
	return total / float64(len(backend))
}

func lastMeaningful(segs []string) (string, bool) {
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != ":param" {
			return segs[i], true
		}
	}
	return "", false
}

func resourceNameScore(a, b []string) float64 {
	ra, okA := lastMeaningful(a)
	rb, okB := lastMeaningful(b)
	if !okA || !okB {
		return 0
	}
	if ra == rb {
		return 1.0
	}
	if strings.HasPrefix(ra, rb) || strings.HasPrefix(rb, ra) {
		return 0.8
	}
	return 0
}

func paramPositionMatch(a, b []string) float64 {
	posA := paramPositions(a)
	posB := paramPositions(b)
	if len(posA) == 0 && len(posB) == 0 {
		return 1.0
	}
	if len(posA) == 0 || len(posB) == 0 {
		return 0
	}
	var matches int
	for _, pa := range posA {
		for _, pb := range posB {
			d := pa - pb
			if d < 0 {
				d = -d
			}
			if d <= 0.2 {
				matches++
				break
			}
		}
	}
	denom := len(posA)
	if len(posB) > denom {
		denom = len(posB)
	}
	return float64(matches) / float64(denom)
}

func paramPositions(segs []string) []float64 {
	if len(segs) == 0 {
		return nil
	}
	var out []float64
	for i, s := range segs {
		if s == ":param" {
			out = append(out, float64(i)/float64(len(segs)))
		}
	}
	return out
}

// MatchOptions configures the matching procedure.
type MatchOptions struct {
	MinSimilarity float64 // default 0.65
}

func (o MatchOptions) minSimilarity() float64 {
	if o.MinSimilarity <= 0 {
		return 0.65
	}
	return o.MinSimilarity
}

// Match pairs backend endpoints against frontend calls of the same HTTP
// method, keeping the best-scoring call (and any within 0.1 of it as
// co-winners), and computes each resulting contract's mismatches and
// confidence.
func Match(endpoints []Endpoint, calls []Call, opts MatchOptions) []Contract {
	byMethod := make(map[string][]Call)
	for _, c := range calls {
		byMethod[c.Method] = append(byMethod[c.Method], c)
	}

	var out []Contract
	minSim := opts.minSimilarity()

	for _, ep := range endpoints {
		candidates := byMethod[ep.Method]
		type scored struct {
			call  Call
			score float64
		}
		var best []scored
		var bestScore float64
		for _, c := range candidates {
			s := Similarity(ep.Path, c.Path)
			if s < minSim {
				continue
			}
			if s > bestScore {
				bestScore = s
			}
			best = append(best, scored{call: c, score: s})
		}

		var winners []Call
		var errCount int
		for _, s := range best {
			if bestScore-s.score <= 0.1 {
				winners = append(winners, s.call)
			}
		}

		contract := Contract{Backend: ep, Frontend: winners, Status: StatusDiscovered}
		if len(winners) == 0 {
			contract.MatchConfidence = 0
		} else {
			contract.MatchConfidence = bestScore
		}

		fieldConf := 0.0
		if len(ep.Fields) > 0 {
			fieldConf += 0.5
		}
		sideHasFields := false
		for _, w := range winners {
			if len(w.Fields) > 0 {
				sideHasFields = true
				break
			}
		}
		if sideHasFields {
			fieldConf += 0.5
		}
		contract.FieldConfidence = fieldConf

		for _, w := range winners {
			mismatches := FieldMismatches(ep.Fields, w.Fields)
			contract.Mismatches = append(contract.Mismatches, mismatches...)
		}
		for _, m := range contract.Mismatches {
			if m.Severity == SevError {
				errCount++
			}
		}

		factor := 1 - 0.1*float64(errCount)
		if factor < 0 {
			factor = 0
		}
		contract.Score = (0.6*contract.MatchConfidence + 0.4*contract.FieldConfidence) * factor

		if errCount > 0 {
			contract.Status = StatusMismatch
		}

		out = append(out, contract)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Backend.Path < out[j].Backend.Path })
	return out
}

var typeAliases = map[string]string{
	"str": "string", "text": "string",
	"int": "number", "integer": "number", "float": "number", "double": "number", "decimal": "number",
	"bool": "boolean",
	"dict": "object", "record": "object", "map": "object",
	"list": "array", "sequence": "array",
	"unknown": "any",
}

func canonicalType(t string) string {
	lower := strings.ToLower(strings.TrimSpace(t))
	if canon, ok := typeAliases[lower]; ok {
		return canon
	}
	return lower
}

// FieldMismatches compares backend and frontend field sets by name (exact
// name first, then go-edlib Jaro-Winkler similarity as a fallback for
// mildly-drifted names like user_id vs userId) and reports every
// discrepancy found.
func FieldMismatches(backend, frontend []Field) []FieldMismatch {
	beByName := make(map[string]Field, len(backend))
	for _, f := range backend {
		beByName[f.Name] = f
	}
	feByName := make(map[string]Field, len(frontend))
	for _, f := range frontend {
		feByName[f.Name] = f
	}

	pairs := pairFields(beByName, feByName)

	var out []FieldMismatch
	for _, pair := range pairs {
		be, beOK := beByName[pair.backendName]
		fe, feOK := feByName[pair.frontendName]

		switch {
		case beOK && !feOK:
			out = append(out, FieldMismatch{Field: be.Name, Kind: "missing-in-frontend", Severity: SevError, Detail: "backend field not consumed by frontend"})
			continue
		case !beOK && feOK:
			out = append(out, FieldMismatch{Field: fe.Name, Kind: "missing-in-backend", Severity: SevInfo, Detail: "frontend reads a field the backend does not define"})
			continue
		}

		if canonicalType(be.Type) != canonicalType(fe.Type) && be.Type != "" && fe.Type != "" {
			out = append(out, FieldMismatch{Field: be.Name, Kind: "type", Severity: SevError, Detail: be.Type + " vs " + fe.Type})
		}
		if be.Optional != fe.Optional {
			out = append(out, FieldMismatch{Field: be.Name, Kind: "optionality", Severity: SevWarning, Detail: "optionality differs"})
		}
		if be.Nullable != fe.Nullable {
			out = append(out, FieldMismatch{Field: be.Name, Kind: "nullability", Severity: SevWarning, Detail: "nullability differs"})
		}
	}
	return out
}

type fieldPair struct {
	backendName, frontendName string
}

// pairFields pairs backend/frontend fields by exact name first, then by
// best Jaro-Winkler similarity (>=0.85) among the remainder, and finally
// emits unmatched names from either side as one-sided pairs.
func pairFields(be, fe map[string]Field) []fieldPair {
	var pairs []fieldPair
	matchedBE := make(map[string]bool)
	matchedFE := make(map[string]bool)

	for name := range be {
		if _, ok := fe[name]; ok {
			pairs = append(pairs, fieldPair{name, name})
			matchedBE[name] = true
			matchedFE[name] = true
		}
	}

	var beNames, feNames []string
	for name := range be {
		if !matchedBE[name] {
			beNames = append(beNames, name)
		}
	}
	for name := range fe {
		if !matchedFE[name] {
			feNames = append(feNames, name)
		}
	}
	sort.Strings(beNames)
	sort.Strings(feNames)

	for _, bn := range beNames {
		bestName := ""
		bestScore := float32(0)
		for _, fn := range feNames {
			if matchedFE[fn] {
				continue
			}
			score, err := edlib.StringsSimilarity(strings.ToLower(bn), strings.ToLower(fn), edlib.JaroWinkler)
			if err == nil && score > bestScore {
				bestScore, bestName = score, fn
			}
		}
		if bestName != "" && bestScore >= 0.85 {
			pairs = append(pairs, fieldPair{bn, bestName})
			matchedBE[bn] = true
			matchedFE[bestName] = true
		}
	}

	for _, bn := range beNames {
		if !matchedBE[bn] {
			pairs = append(pairs, fieldPair{bn, ""})
		}
	}
	for _, fn := range feNames {
		if !matchedFE[fn] {
			pairs = append(pairs, fieldPair{"", fn})
		}
	}

	return pairs
}
