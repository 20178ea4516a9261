package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/jsonschema-go/jsonschema"
)

// ConditionKind is the closed set of custom-rule condition shapes.
type ConditionKind string

const (
	ConditionFilePattern    ConditionKind = "file-pattern"
	ConditionContentPattern ConditionKind = "content-pattern"
	ConditionDependency     ConditionKind = "dependency"
	ConditionNaming         ConditionKind = "naming"
	ConditionStructure      ConditionKind = "structure"
	ConditionComposite      ConditionKind = "composite"
)

// NamingTargetKind is what a naming condition's pattern is checked against.
type NamingTargetKind string

const (
	TargetFile     NamingTargetKind = "file"
	TargetClass    NamingTargetKind = "class"
	TargetFunction NamingTargetKind = "function"
	TargetVariable NamingTargetKind = "variable"
)

// CompositeOp combines child conditions.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
	CompositeNot CompositeOp = "not"
)

// Condition is one node of a custom rule's condition tree.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// file-pattern
	Glob        string `json:"glob,omitempty"`
	MustExist   bool   `json:"mustExist,omitempty"`
	MustNotExist bool  `json:"mustNotExist,omitempty"`
	Corresponds string `json:"corresponds,omitempty"` // when Glob matches any file, at least one file in the set must match this glob

	// content-pattern
	MustContain    string `json:"mustContain,omitempty"`
	MustNotContain string `json:"mustNotContain,omitempty"`
	Regex          string `json:"regex,omitempty"`

	// dependency
	Forbidden bool `json:"forbidden,omitempty"`
	Required  bool `json:"required,omitempty"`
	Source    string `json:"source,omitempty"`

	// naming
	Target NamingTargetKind `json:"target,omitempty"`

	// structure
	RequiredPath   string `json:"requiredPath,omitempty"`
	MaxFilesPerDir int    `json:"maxFilesPerDir,omitempty"`

	// composite
	Op       CompositeOp `json:"op,omitempty"`
	Children []Condition `json:"children,omitempty"`
}

// Rule is one named, enable-able custom rule.
type Rule struct {
	ID        string    `json:"id"`
	Enabled   bool      `json:"enabled"`
	Condition Condition `json:"condition"`
}

// RuleSet is a loaded custom-rule document.
type RuleSet struct {
	Rules []Rule `json:"rules"`
}

// ruleSetSchema validates the shape of a loaded rule-set document before
// it is evaluated, catching malformed policy files early rather than
// failing deep inside rule evaluation.
var ruleSetSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"rules": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":      {Type: "string"},
					"enabled": {Type: "boolean"},
					"condition": {
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"kind": {Type: "string"},
						},
						Required: []string{"kind"},
					},
				},
				Required: []string{"id", "condition"},
			},
		},
	},
	Required: []string{"rules"},
}

// LoadRuleSet decodes a JSON custom-rule document, validates it against
// ruleSetSchema, and returns the parsed RuleSet.
func LoadRuleSet(data []byte) (*RuleSet, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("gate: decode rule set: %w", err)
	}

	resolved, err := ruleSetSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("gate: resolve rule set schema: %w", err)
	}
	if err := resolved.Validate(raw); err != nil {
		return nil, fmt.Errorf("gate: rule set failed schema validation: %w", err)
	}

	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("gate: decode rule set: %w", err)
	}
	return &rs, nil
}

// RuleEvalInput is the context one rule is evaluated against.
type RuleEvalInput struct {
	Files       []string
	ProjectRoot string
	ReadFile    func(path string) ([]byte, error)
}

func (in RuleEvalInput) readFile(path string) ([]byte, error) {
	if in.ReadFile != nil {
		return in.ReadFile(path)
	}
	return os.ReadFile(filepath.Join(in.ProjectRoot, path))
}

// EvaluateRule evaluates a rule's condition tree and returns one
// human-readable violation string per failure found.
func EvaluateRule(r Rule, in RuleEvalInput) []string {
	return evaluateCondition(r.ID, r.Condition, in)
}

func evaluateCondition(ruleID string, c Condition, in RuleEvalInput) []string {
	switch c.Kind {
	case ConditionFilePattern:
		return evalFilePattern(ruleID, c, in)
	case ConditionContentPattern:
		return evalContentPattern(ruleID, c, in)
	case ConditionDependency:
		return evalDependency(ruleID, c, in)
	case ConditionNaming:
		return evalNaming(ruleID, c, in)
	case ConditionStructure:
		return evalStructure(ruleID, c, in)
	case ConditionComposite:
		return evalComposite(ruleID, c, in)
	default:
		return nil
	}
}

func matchingFiles(glob string, files []string) []string {
	var out []string
	for _, f := range files {
		if ok, _ := doublestar.Match(glob, f); ok {
			out = append(out, f)
		}
	}
	return out
}

func evalFilePattern(ruleID string, c Condition, in RuleEvalInput) []string {
	matches := matchingFiles(c.Glob, in.Files)

	var out []string
	if c.MustExist && len(matches) == 0 {
		out = append(out, fmt.Sprintf("%s: no file matches %s", ruleID, c.Glob))
	}
	if c.MustNotExist && len(matches) > 0 {
		out = append(out, fmt.Sprintf("%s: %d files unexpectedly match %s", ruleID, len(matches), c.Glob))
	}
	if c.Corresponds != "" {
		for _, m := range matches {
			correspondents := matchingFiles(c.Corresponds, in.Files)
			if len(correspondents) == 0 {
				out = append(out, fmt.Sprintf("%s: %s has no corresponding file matching %s", ruleID, m, c.Corresponds))
			}
		}
	}
	return out
}

func evalContentPattern(ruleID string, c Condition, in RuleEvalInput) []string {
	var out []string
	targets := in.Files
	if c.Glob != "" {
		targets = matchingFiles(c.Glob, in.Files)
	}

	var re *regexp.Regexp
	if c.Regex != "" {
		re = regexp.MustCompile(c.Regex)
	}

	for _, f := range targets {
		content, err := in.readFile(f)
		if err != nil {
			continue
		}
		text := string(content)
		if c.MustContain != "" && !strings.Contains(text, c.MustContain) {
			out = append(out, fmt.Sprintf("%s: %s missing required content %q", ruleID, f, c.MustContain))
		}
		if c.MustNotContain != "" && strings.Contains(text, c.MustNotContain) {
			out = append(out, fmt.Sprintf("%s: %s contains forbidden content %q", ruleID, f, c.MustNotContain))
		}
		if re != nil && !re.MatchString(text) {
			out = append(out, fmt.Sprintf("%s: %s does not match required pattern %s", ruleID, f, c.Regex))
		}
	}
	return out
}

// importRe captures the remainder of each import-like line; evalDependency
// looks for the rule's source anywhere in it.
var importRe = regexp.MustCompile(`(?m)^\s*(?:import|require|using|from)\s+(.*)$`)

func evalDependency(ruleID string, c Condition, in RuleEvalInput) []string {
	var out []string
	targets := in.Files
	if c.Glob != "" {
		targets = matchingFiles(c.Glob, in.Files)
	}
	for _, f := range targets {
		content, err := in.readFile(f)
		if err != nil {
			continue
		}
		found := false
		for _, m := range importRe.FindAllStringSubmatch(string(content), -1) {
			if strings.Contains(m[1], c.Source) {
				found = true
				break
			}
		}
		if c.Forbidden && found {
			out = append(out, fmt.Sprintf("%s: %s imports forbidden source %s", ruleID, f, c.Source))
		}
		if c.Required && !found {
			out = append(out, fmt.Sprintf("%s: %s missing required import %s", ruleID, f, c.Source))
		}
	}
	return out
}

func evalNaming(ruleID string, c Condition, in RuleEvalInput) []string {
	if c.Target != TargetFile || c.Regex == "" {
		return nil
	}
	re := regexp.MustCompile(c.Regex)
	var out []string
	for _, f := range in.Files {
		base := filepath.Base(f)
		if !re.MatchString(base) {
			out = append(out, fmt.Sprintf("%s: %s does not match naming pattern %s", ruleID, base, c.Regex))
		}
	}
	return out
}

func evalStructure(ruleID string, c Condition, in RuleEvalInput) []string {
	var out []string
	if c.RequiredPath != "" {
		full := filepath.Join(in.ProjectRoot, c.RequiredPath)
		if _, err := os.Stat(full); err != nil {
			out = append(out, fmt.Sprintf("%s: required path %s is missing", ruleID, c.RequiredPath))
		}
	}
	if c.MaxFilesPerDir > 0 {
		counts := make(map[string]int)
		for _, f := range in.Files {
			counts[filepath.Dir(f)]++
		}
		for dir, count := range counts {
			if count > c.MaxFilesPerDir {
				out = append(out, fmt.Sprintf("%s: %s has %d files, exceeding max %d", ruleID, dir, count, c.MaxFilesPerDir))
			}
		}
	}
	return out
}

func evalComposite(ruleID string, c Condition, in RuleEvalInput) []string {
	switch c.Op {
	case CompositeAnd:
		var out []string
		for _, child := range c.Children {
			out = append(out, evaluateCondition(ruleID, child, in)...)
		}
		return out
	case CompositeOr:
		var allChild [][]string
		for _, child := range c.Children {
			allChild = append(allChild, evaluateCondition(ruleID, child, in))
		}
		for _, violations := range allChild {
			if len(violations) == 0 {
				return nil
			}
		}
		var out []string
		for _, v := range allChild {
			out = append(out, v...)
		}
		return out
	case CompositeNot:
		if len(c.Children) != 1 {
			return nil
		}
		if len(evaluateCondition(ruleID, c.Children[0], in)) == 0 {
			return []string{fmt.Sprintf("%s: negated condition unexpectedly held", ruleID)}
		}
		return nil
	default:
		return nil
	}
}
