package walker

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ruizrica/drift/internal/errors"
)

// ignorePattern is one parsed line from a .gitignore/.driftignore file.
type ignorePattern struct {
	raw       string
	negate    bool
	directory bool
	anchored  bool // pattern contained a leading "/" or an internal "/"
}

// ignoreFrame holds the patterns contributed by one directory level, plus a
// link to its parent so matching walks the stack outward-in: ignore rules
// layer from the workspace root down to the current directory, with deeper
// rules taking precedence.
type ignoreFrame struct {
	dir      string
	patterns []ignorePattern
	parent   *ignoreFrame
}

// ignoreStack tracks workspace-root-level ignore files (loaded once) plus
// the per-directory frames discovered during the walk.
type ignoreStack struct {
	root *ignoreFrame
}

func newIgnoreStack() *ignoreStack {
	return &ignoreStack{}
}

// pushFile loads name (".gitignore" or ".driftignore") from dir and chains
// it onto the stack's root frame. Missing files are not an error.
func (s *ignoreStack) pushFile(dir, name string) error {
	patterns, err := loadIgnoreFile(filepath.Join(dir, name))
	if err != nil {
		return errors.New(errors.KindPath, "load-ignore-file", err).WithPath(dir)
	}
	if len(patterns) == 0 {
		return nil
	}
	s.root = &ignoreFrame{dir: dir, patterns: patterns, parent: s.root}
	return nil
}

// pushLines chains a synthetic frame of already-parsed pattern lines (used
// for Options.CustomIgnore, which isn't backed by a file) onto the root.
func (s *ignoreStack) pushLines(dir string, lines []string) {
	if len(lines) == 0 {
		return
	}
	patterns := make([]ignorePattern, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, parseIgnoreLine(line))
	}
	if len(patterns) == 0 {
		return
	}
	s.root = &ignoreFrame{dir: dir, patterns: patterns, parent: s.root}
}

// push loads any ignore files present directly in dir and returns a new
// frame chained onto parent (or parent unchanged if dir has none).
func (s *ignoreStack) push(dir string, parent *ignoreFrame) *ignoreFrame {
	var patterns []ignorePattern
	for _, name := range []string{".gitignore", ".driftignore"} {
		p, err := loadIgnoreFile(filepath.Join(dir, name))
		if err == nil {
			patterns = append(patterns, p...)
		}
	}
	if len(patterns) == 0 {
		return parent
	}
	return &ignoreFrame{dir: dir, patterns: patterns, parent: parent}
}

func loadIgnoreFile(path string) ([]ignorePattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []ignorePattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, parseIgnoreLine(line))
	}
	return patterns, scanner.Err()
}

func parseIgnoreLine(line string) ignorePattern {
	p := ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") {
		p.anchored = true
	}
	p.raw = line
	return p
}

// shouldIgnoreDir reports whether relPath (workspace-relative, forward
// slashes, no trailing slash) should be pruned as a directory.
func (s *ignoreStack) shouldIgnoreDir(relPath string, frame *ignoreFrame) bool {
	return evalFrames(s.root, frame, relPath, true)
}

// shouldIgnoreFile reports whether relPath should be excluded as a file.
func (s *ignoreStack) shouldIgnoreFile(relPath string, frame *ignoreFrame) bool {
	return evalFrames(s.root, frame, relPath, false)
}

// evalFrames walks root-level patterns first, then the per-directory chain
// from outermost to innermost, so later (deeper) matches win — matching
// gitignore's own precedence rule.
func evalFrames(root, frame *ignoreFrame, relPath string, isDir bool) bool {
	var chain []*ignoreFrame
	for f := frame; f != nil; f = f.parent {
		chain = append(chain, f)
	}
	for f := root; f != nil; f = f.parent {
		chain = append(chain, f)
	}

	ignored := false
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].patterns {
			if matchesIgnorePattern(p, relPath, isDir) {
				ignored = !p.negate
			}
		}
	}
	return ignored
}

func matchesIgnorePattern(p ignorePattern, relPath string, isDir bool) bool {
	if p.directory && !isDir {
		return strings.HasPrefix(relPath, p.raw+"/")
	}

	if p.anchored {
		return globMatch(p.raw, relPath)
	}

	if globMatch(p.raw, relPath) {
		return true
	}
	parts := strings.Split(relPath, "/")
	for i := range parts {
		if globMatch(p.raw, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}

// globMatch matches an ignore-file pattern against a workspace-relative
// path. doublestar understands "**" spanning directory separators (the
// gitignore convention for "any depth"), which filepath.Match alone never
// matches since it treats "/" like any other glob-significant character.
func globMatch(pattern, path string) bool {
	if matched, err := doublestar.Match(pattern, path); err == nil && matched {
		return true
	}
	return pattern == path
}
