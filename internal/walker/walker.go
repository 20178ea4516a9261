// Package walker performs the ignore-aware, depth-first directory traversal
// that produces file descriptors for the rest of the core.
// It layers gitignore-style ignore stacks per directory, applies extension
// and glob include/exclude filters, and optionally computes a short content
// hash per file so downstream incremental scanning (internal/incremental)
// doesn't have to re-read files it has already seen.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ruizrica/drift/internal/errors"
	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/lang"
)

// rootErr is a plain sentinel error for Walk's own root-validation
// failures, as distinct from the os/filepath errors it also wraps.
type rootErr string

func (e rootErr) Error() string { return string(e) }

var errNotADirectory = rootErr("walk root is not a directory")

// File is a single walked file's descriptor.
type File struct {
	RelPath   string
	AbsPath   string
	Name      string
	Ext       string
	Size      int64
	ModTime   time.Time
	IsSymlink bool
	Language  lang.Language
	Hash      string // empty unless Options.ComputeHashes is set
	Err       error  // set when the file was visited but could not be read/stat'd cleanly
}

// Options configures a walk.
type Options struct {
	RespectGitignore  bool
	RespectToolIgnore bool // .driftignore, layered on top of .gitignore
	FollowSymlinks    bool
	ComputeHashes     bool
	MaxFileSize       int64
	MaxDepth          int // 0 means unbounded
	ExtWhitelist      []string
	IncludeGlobs      []string
	ExcludeGlobs      []string
	CustomIgnore      []string // additional gitignore-syntax patterns, layered like .driftignore
}

// Phase marks which stage of a walk a progress callback fires from.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseDone        Phase = "done"
)

// DefaultExclude is the baseline exclusion set applied regardless of
// Options.ExcludeGlobs; project-specific excludes are layered on top of it.
var DefaultExclude = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/vendor/**",
	"**/.drift/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",
}

// ProgressFunc is invoked after every file visited (matched or filtered),
// so a caller can render incremental progress for large trees. percent is
// -1 when the total file count isn't known in advance.
type ProgressFunc func(phase Phase, processed int, percent float64, elapsedMs int64, lastFile string)

// Result is the accumulated output of a single Walk.
type Result struct {
	Files   []File
	Visited int
	Skipped int
}

// Walk performs a depth-first traversal of root, applying ignore stacks and
// filters, and returns every file descriptor that survives them.
//
// Symlinks are skipped unless opts.FollowSymlinks is set; when following,
// the walker tracks resolved real directory paths and refuses to descend
// into one it has already visited, breaking symlink cycles.
func Walk(ctx context.Context, root string, opts Options, progress ProgressFunc) (*Result, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, errors.New(errors.KindPath, "walk", err).WithPath(root)
	}
	info, err := os.Stat(realRoot)
	if err != nil {
		return nil, errors.New(errors.KindPath, "walk", err).WithPath(root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.KindPath, "walk", errNotADirectory).WithPath(root)
	}

	stack := newIgnoreStack()
	if opts.RespectGitignore {
		if err := stack.pushFile(realRoot, ".gitignore"); err != nil {
			return nil, err
		}
	}
	if opts.RespectToolIgnore {
		if err := stack.pushFile(realRoot, ".driftignore"); err != nil {
			return nil, err
		}
	}
	stack.pushLines(realRoot, opts.CustomIgnore)

	res := &Result{}
	visitedDirs := map[string]bool{realRoot: true}
	start := time.Now()

	var walk func(dir string, rel string, depth int, frame *ignoreFrame) error
	walk = func(dir, rel string, depth int, frame *ignoreFrame) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil // unreadable directory: skip, don't abort the whole walk
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			name := entry.Name()
			absPath := filepath.Join(dir, name)
			relPath := filepath.ToSlash(filepath.Join(rel, name))

			info, err := entry.Info()
			if err != nil {
				res.Visited++
				continue
			}

			isSymlink := info.Mode()&os.ModeSymlink != 0
			if isSymlink {
				if !opts.FollowSymlinks {
					res.Visited++
					res.Skipped++
					continue
				}
				real, err := filepath.EvalSymlinks(absPath)
				if err != nil {
					res.Visited++
					res.Skipped++
					continue
				}
				if !withinRoot(real, realRoot) {
					res.Visited++
					res.Skipped++
					continue
				}
				if entry.IsDir() || isDir(real) {
					if visitedDirs[real] {
						res.Visited++
						continue // cycle: already descended into this real path
					}
					visitedDirs[real] = true
				}
				absPath = real
				if fi, err := os.Stat(real); err == nil {
					info = fi
				}
			}

			if entry.IsDir() {
				childFrame := frame
				if opts.RespectGitignore || opts.RespectToolIgnore {
					childFrame = stack.push(dir, frame)
				}
				if stack.shouldIgnoreDir(relPath, childFrame) {
					res.Visited++
					continue
				}
				if opts.MaxDepth > 0 && depth+1 > opts.MaxDepth {
					res.Visited++
					continue
				}
				if err := walk(absPath, relPath, depth+1, childFrame); err != nil {
					return err
				}
				continue
			}

			res.Visited++
			if progress != nil {
				progress(PhaseDiscovering, res.Visited, -1, time.Since(start).Milliseconds(), relPath)
			}

			if stack.shouldIgnoreFile(relPath, frame) {
				res.Skipped++
				continue
			}
			if !matches(relPath, opts) {
				res.Skipped++
				continue
			}
			if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
				res.Skipped++
				continue
			}

			f := File{
				RelPath:   relPath,
				AbsPath:   absPath,
				Name:      name,
				Ext:       filepath.Ext(name),
				Size:      info.Size(),
				ModTime:   info.ModTime(),
				IsSymlink: isSymlink,
				Language:  lang.Resolve(filepath.Ext(name)),
			}
			if opts.ComputeHashes {
				h, err := hashutil.ShortFile(absPath)
				if err != nil {
					f.Err = err
				} else {
					f.Hash = h
				}
			}
			res.Files = append(res.Files, f)
		}
		return nil
	}

	if err := walk(realRoot, "", 0, nil); err != nil {
		return res, err
	}
	if progress != nil {
		progress(PhaseDone, res.Visited, 100, time.Since(start).Milliseconds(), "")
	}
	return res, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// withinRoot reports whether real (a resolved symlink target) is realRoot
// itself or falls inside it. A symlink resolving outside the workspace
// root is never followed, even with Options.FollowSymlinks set, so a
// project can't be tricked into scanning (and potentially leaking the
// contents of) an arbitrary path elsewhere on disk.
func withinRoot(real, realRoot string) bool {
	if real == realRoot {
		return true
	}
	return strings.HasPrefix(real, realRoot+string(filepath.Separator))
}

// matches applies the extension whitelist and include/exclude glob layers,
// in that order: a file must pass the whitelist (if any), must not match an
// exclude pattern, and must match an include pattern if any are configured.
func matches(relPath string, opts Options) bool {
	if len(opts.ExtWhitelist) > 0 {
		ext := filepath.Ext(relPath)
		ok := false
		for _, w := range opts.ExtWhitelist {
			if w == ext {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for _, pat := range DefaultExclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	for _, pat := range opts.ExcludeGlobs {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}

	if len(opts.IncludeGlobs) == 0 {
		return true
	}
	for _, pat := range opts.IncludeGlobs {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
	}
	return false
}
