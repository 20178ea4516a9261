package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ruizrica/drift/internal/lang"
)

func TestEnumeratePrimitivesUnionsAcrossFrameworks(t *testing.T) {
	names := EnumeratePrimitives(lang.TypeScript)
	assert.Contains(t, names, "useState")
	assert.Contains(t, names, "ref")
}

func TestEnumerateFrameworks(t *testing.T) {
	fws := EnumerateFrameworks(lang.Python)
	assert.ElementsMatch(t, []string{"django", "flask"}, fws)
}

func TestLocateFindsFrameworkAndCategory(t *testing.T) {
	loc, ok := Locate("useEffect", lang.TypeScript)
	assert.True(t, ok)
	assert.Equal(t, "react", loc.Framework)
	assert.Equal(t, "effect", loc.Category)
}

func TestLocateMissingReturnsFalse(t *testing.T) {
	_, ok := Locate("nonexistent", lang.TypeScript)
	assert.False(t, ok)
}

func TestLooksLikePrimitiveHeuristics(t *testing.T) {
	assert.True(t, LooksLikePrimitive("useWidget", lang.TypeScript))
	assert.False(t, LooksLikePrimitive("user", lang.TypeScript))
	assert.True(t, LooksLikePrimitive("@Component", lang.Java))
	assert.True(t, LooksLikePrimitive("createStore", lang.JavaScript))
	assert.False(t, LooksLikePrimitive("store", lang.JavaScript))
}
