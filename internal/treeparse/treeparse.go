// Package treeparse wires go-tree-sitter grammars to the language tag set
// so the detection-context builder can attach a parsed syntax tree when a
// grammar is registered, and fall through to nil otherwise — detectors
// must tolerate both.
package treeparse

import (
	"context"
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/ruizrica/drift/internal/lang"
)

// Tree is the parsed syntax tree a DetectionContext carries; detectors
// that need structural analysis type-assert it back to *tree_sitter.Tree.
type Tree = tree_sitter.Tree

type grammar struct {
	language *tree_sitter.Language
}

var (
	mu       sync.Mutex
	grammars map[lang.Language]grammar
)

func init() {
	grammars = map[lang.Language]grammar{
		lang.Go:         {tree_sitter.NewLanguage(tree_sitter_go.Language())},
		lang.JavaScript: {tree_sitter.NewLanguage(tree_sitter_javascript.Language())},
		lang.TypeScript: {tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())},
		lang.Python:     {tree_sitter.NewLanguage(tree_sitter_python.Language())},
		lang.Java:       {tree_sitter.NewLanguage(tree_sitter_java.Language())},
		lang.CSharp:     {tree_sitter.NewLanguage(tree_sitter_csharp.Language())},
		lang.Cpp:        {tree_sitter.NewLanguage(tree_sitter_cpp.Language())},
		lang.PHP:        {tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())},
	}
}

// Supported reports whether a grammar is registered for the given language.
func Supported(l lang.Language) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := grammars[l]
	return ok
}

// Parse returns a parsed syntax tree for content in the given language, or
// nil (with no error) when no grammar is registered for that language. The
// returned tree must be closed with tree.Close() by the caller once no
// longer needed, since go-tree-sitter trees hold native memory.
func Parse(ctx context.Context, l lang.Language, content []byte) (*Tree, error) {
	mu.Lock()
	g, ok := grammars[l]
	mu.Unlock()
	if !ok {
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(g.language); err != nil {
		return nil, fmt.Errorf("treeparse: set language %s: %w", l, err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("treeparse: parser returned nil tree for %s", l)
	}
	return tree, nil
}
