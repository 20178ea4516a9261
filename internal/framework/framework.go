// Package framework holds the static catalog of named framework primitives
// (hooks, decorators, annotations, macros) that detectors cross-reference
// when deciding whether a construct is "framework-shaped" rather than
// project-specific. The catalog is data, not behavior: the core ships only
// enough of it to exercise the contract, the exhaustive version is an
// external artifact.
package framework

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ruizrica/drift/internal/lang"
)

// catalog is language -> framework -> category -> primitive names.
var catalog = map[lang.Language]map[string]map[string][]string{
	lang.TypeScript: {
		"react": {
			"state":   {"useState", "useReducer", "useContext"},
			"effect":  {"useEffect", "useLayoutEffect"},
			"memo":    {"useMemo", "useCallback", "memo"},
			"routing": {"useNavigate", "useParams", "useLocation"},
		},
		"vue": {
			"state":  {"ref", "reactive", "computed"},
			"effect": {"watch", "watchEffect", "onMounted"},
		},
	},
	lang.JavaScript: {
		"react": {
			"state":  {"useState", "useReducer"},
			"effect": {"useEffect"},
		},
	},
	lang.Python: {
		"django": {
			"routing":    {"path", "re_path", "include"},
			"middleware": {"process_request", "process_response"},
			"orm":        {"Model", "ForeignKey", "ManyToManyField"},
		},
		"flask": {
			"routing": {"route", "add_url_rule"},
			"di":      {"before_request", "after_request"},
		},
	},
	lang.Java: {
		"spring": {
			"di":         {"Autowired", "Component", "Service", "Repository"},
			"routing":    {"RequestMapping", "GetMapping", "PostMapping"},
			"middleware": {"Aspect", "Around"},
		},
	},
	lang.CSharp: {
		"aspnet": {
			"routing":    {"HttpGet", "HttpPost", "Route"},
			"di":         {"Inject", "FromServices"},
			"middleware": {"UseMiddleware"},
		},
	},
}

var factoryPrefixes = []string{"create", "make", "build", "new"}

// EnumeratePrimitives returns the union of every primitive name registered
// for a language, across every framework and category.
func EnumeratePrimitives(l lang.Language) []string {
	seen := make(map[string]bool)
	var out []string
	for _, categories := range catalog[l] {
		for _, names := range categories {
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// EnumerateFrameworks returns the framework names registered for a language.
func EnumerateFrameworks(l lang.Language) []string {
	var out []string
	for fw := range catalog[l] {
		out = append(out, fw)
	}
	return out
}

// Location identifies where a primitive lives in the catalog.
type Location struct {
	Framework string
	Category  string
}

// Locate finds the {framework, category} a primitive name belongs to for a
// given language, if registered.
func Locate(name string, l lang.Language) (Location, bool) {
	for fw, categories := range catalog[l] {
		for cat, names := range categories {
			for _, n := range names {
				if n == name {
					return Location{Framework: fw, Category: cat}, true
				}
			}
		}
	}
	return Location{}, false
}

var decoratorPrefix = regexp.MustCompile(`^(@|#\[|\[)`)

// LooksLikePrimitive is a heuristic predicate: does name follow a
// language-specific convention for a framework primitive, even if it isn't
// in the catalog? TypeScript/JavaScript "useXxx" hook names, decorator
// syntax (@Foo, #[foo], [Foo]), and common factory-verb prefixes all count.
func LooksLikePrimitive(name string, l lang.Language) bool {
	if decoratorPrefix.MatchString(name) {
		return true
	}
	if (l == lang.TypeScript || l == lang.JavaScript) && isUseHook(name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, prefix := range factoryPrefixes {
		if strings.HasPrefix(lower, prefix) && len(name) > len(prefix) {
			return true
		}
	}
	return false
}

func isUseHook(name string) bool {
	if !strings.HasPrefix(name, "use") || len(name) <= 3 {
		return false
	}
	return unicode.IsUpper(rune(name[3]))
}
