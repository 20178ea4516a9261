package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift/internal/lang"
	"github.com/ruizrica/drift/internal/model"
	"github.com/ruizrica/drift/internal/walker"
)

func TestBuildContextGoImports(t *testing.T) {
	src := []byte(`package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println(os.Args)
}
`)
	dctx, err := BuildContext(context.Background(), walker.File{RelPath: "main.go", Ext: ".go"}, src, model.ProjectContext{})
	require.NoError(t, err)
	assert.Equal(t, lang.Go, dctx.Language)
	assert.ElementsMatch(t, []string{"fmt", "os"}, dctx.Imports)
	assert.NotNil(t, dctx.SyntaxTree)
}

func TestBuildContextUnknownLanguageSkipsExtraction(t *testing.T) {
	dctx, err := BuildContext(context.Background(), walker.File{RelPath: "data.bin", Ext: ".bin"}, []byte("\x00\x01"), model.ProjectContext{})
	require.NoError(t, err)
	assert.Equal(t, lang.Unknown, dctx.Language)
	assert.Nil(t, dctx.Imports)
	assert.Nil(t, dctx.SyntaxTree)
}

func TestBuildContextDetectsTestFile(t *testing.T) {
	dctx, err := BuildContext(context.Background(), walker.File{RelPath: "internal/foo/foo_test.go", Ext: ".go"}, []byte("package foo"), model.ProjectContext{})
	require.NoError(t, err)
	assert.True(t, dctx.IsTestFile)
}

func TestBuildContextDetectsTypeDefFile(t *testing.T) {
	dctx, err := BuildContext(context.Background(), walker.File{RelPath: "types/index.d.ts", Ext: ".ts"}, []byte("export type Foo = string"), model.ProjectContext{})
	require.NoError(t, err)
	assert.True(t, dctx.IsTypeDefFile)
}

func TestBuildContextExtractsJSExports(t *testing.T) {
	src := []byte(`export const Widget = () => {}
export function helper() {}
`)
	dctx, err := BuildContext(context.Background(), walker.File{RelPath: "widget.js", Ext: ".js"}, src, model.ProjectContext{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Widget", "helper"}, dctx.Exports)
}
