// Package lang resolves file extensions to the closed language tag set the
// rest of the core uses as its cross-component identifier.
package lang

import "strings"

// Language is one of the closed set of recognized language tags.
type Language string

const (
	TypeScript Language = "typescript"
	JavaScript Language = "javascript"
	Python     Language = "python"
	Java       Language = "java"
	CSharp     Language = "csharp"
	PHP        Language = "php"
	Go         Language = "go"
	Rust       Language = "rust"
	Cpp        Language = "cpp"
	Unknown    Language = "unknown"
)

// All enumerates every recognized language tag, excluding Unknown.
func All() []Language {
	return []Language{TypeScript, JavaScript, Python, Java, CSharp, PHP, Go, Rust, Cpp}
}

// extToLanguage is exhaustive over every extension the core recognizes.
// .tsx and .mts both resolve to TypeScript.
var extToLanguage = map[string]Language{
	".ts":  TypeScript,
	".tsx": TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,

	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,

	".py":  Python,
	".pyi": Python,

	".java": Java,

	".cs": CSharp,

	".php": PHP,

	".go": Go,

	".rs": Rust,

	".cpp": Cpp,
	".cc":  Cpp,
	".cxx": Cpp,
	".hpp": Cpp,
	".hh":  Cpp,
	".h":   Cpp,
	".c":   Cpp,
}

// Resolve maps a file extension (with or without a leading dot, any case)
// to its language tag, or Unknown if the extension is not recognized.
func Resolve(ext string) Language {
	if ext == "" {
		return Unknown
	}
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if l, ok := extToLanguage[ext]; ok {
		return l
	}
	return Unknown
}
