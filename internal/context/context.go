// Package context builds the per-file DetectionContext that every detector
// receives: language resolution, import/export extraction, test/typedef
// flagging, and — when a grammar is registered for the file's language — a
// parsed syntax tree.
package context

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ruizrica/drift/internal/lang"
	"github.com/ruizrica/drift/internal/model"
	"github.com/ruizrica/drift/internal/treeparse"
	"github.com/ruizrica/drift/internal/walker"
)

// importPattern captures the regexes used to recognize and parse one
// language's import statements.
type importPattern struct {
	regexes  []*regexp.Regexp
	extract  func(match string) []string
	exported func(match string) []string
}

var patterns = map[lang.Language]importPattern{
	lang.Go: {
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`import\s+"([^"]+)"`),
			regexp.MustCompile(`(?s)import\s*\(\s*([^)]+)\s*\)`),
		},
		extract: extractGoImports,
	},
	lang.JavaScript: {
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`import\s+(?:[\w*{}\s,]+\s+from\s+)?['"]([^'"]+)['"]`),
			regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
		},
		extract: extractQuotedPath,
	},
	lang.TypeScript: {
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`import\s+(?:[\w*{}\s,]+\s+from\s+)?['"]([^'"]+)['"]`),
			regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
		},
		extract: extractQuotedPath,
	},
	lang.Python: {
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`from\s+([^\s]+)\s+import`),
			regexp.MustCompile(`import\s+([^\s#\n]+)`),
		},
		extract: extractQuotedPath,
	},
	lang.Java: {
		regexes:  []*regexp.Regexp{regexp.MustCompile(`import\s+(?:static\s+)?([\w.]+(?:\.\*)?);`)},
		extract:  extractGroup1,
	},
	lang.CSharp: {
		regexes: []*regexp.Regexp{regexp.MustCompile(`using\s+([\w.]+);`)},
		extract: extractGroup1,
	},
}

var exportPatterns = map[lang.Language]*regexp.Regexp{
	lang.JavaScript: regexp.MustCompile(`export\s+(?:default\s+)?(?:const|function|class|let|var)\s+(\w+)`),
	lang.TypeScript: regexp.MustCompile(`export\s+(?:default\s+)?(?:const|function|class|let|var|interface|type)\s+(\w+)`),
}

var testFileSuffixes = []string{"_test.go", ".test.ts", ".test.tsx", ".test.js", ".test.jsx", ".spec.ts", ".spec.js", "Test.java", "Tests.cs"}
var testFileInfixes = []string{"/test/", "/tests/", "/__tests__/", "/spec/"}

var typeDefSuffixes = []string{".d.ts"}

// BuildContext assembles the DetectionContext a detector consumes for one
// walked file: language gate, import/export extraction, test/typedef
// flags, and a best-effort syntax tree.
func BuildContext(ctx context.Context, file walker.File, content []byte, proj model.ProjectContext) (*model.DetectionContext, error) {
	language := lang.Resolve(file.Ext)

	dctx := &model.DetectionContext{
		File:          file.RelPath,
		Content:       string(content),
		Language:      language,
		Extension:     file.Ext,
		IsTestFile:    isTestFile(file.RelPath),
		IsTypeDefFile: isTypeDefFile(file.RelPath),
		Project:       proj,
	}

	if language == lang.Unknown {
		return dctx, nil
	}

	dctx.Imports = extractImports(language, string(content))
	dctx.Exports = extractExports(language, string(content))

	if tree, err := treeparse.Parse(ctx, language, content); err == nil && tree != nil {
		dctx.SyntaxTree = tree
	}

	return dctx, nil
}

func extractImports(language lang.Language, content string) []string {
	pattern, ok := patterns[language]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, re := range pattern.regexes {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			for _, imp := range pattern.extract(match[0]) {
				imp = strings.TrimSpace(imp)
				if imp == "" || seen[imp] {
					continue
				}
				seen[imp] = true
				out = append(out, imp)
			}
		}
	}
	return out
}

func extractExports(language lang.Language, content string) []string {
	re, ok := exportPatterns[language]
	if !ok {
		return nil
	}
	var out []string
	for _, match := range re.FindAllStringSubmatch(content, -1) {
		if len(match) > 1 {
			out = append(out, match[1])
		}
	}
	return out
}

func extractGoImports(match string) []string {
	inner := match
	if start := strings.Index(match, "("); start >= 0 {
		if end := strings.LastIndex(match, ")"); end > start {
			inner = match[start+1 : end]
		}
	}
	var out []string
	for _, line := range strings.Split(inner, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		path := strings.Trim(line, `"`)
		if idx := strings.LastIndex(path, " "); idx >= 0 {
			path = strings.Trim(line[idx+1:], `"`)
		}
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}

func extractQuotedPath(match string) []string {
	for _, quote := range []string{`"`, `'`} {
		if start := strings.Index(match, quote); start >= 0 {
			if end := strings.LastIndex(match, quote); end > start {
				return []string{match[start+1 : end]}
			}
		}
	}
	return nil
}

func extractGroup1(match string) []string {
	// extractImports passes the whole match (match[0]), not the capture
	// group; re-derive the imported name here by dropping the trailing ";"
	// and keeping the last whitespace-separated field.
	trimmed := strings.TrimSuffix(strings.TrimSpace(match), ";")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil
	}
	return []string{fields[len(fields)-1]}
}

func isTestFile(relPath string) bool {
	base := filepath.Base(relPath)
	for _, suffix := range testFileSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	slashed := "/" + filepath.ToSlash(relPath)
	for _, infix := range testFileInfixes {
		if strings.Contains(slashed, infix) {
			return true
		}
	}
	return false
}

func isTypeDefFile(relPath string) bool {
	for _, suffix := range typeDefSuffixes {
		if strings.HasSuffix(relPath, suffix) {
			return true
		}
	}
	return false
}
