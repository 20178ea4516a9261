// Package watch runs the debounced file-watch engine: an fsnotify watcher
// recursively registered over the workspace, a per-path debounce timer
// collapsing rapid edits into one rescan, and a merge step that re-runs
// the single-file scan path and folds the result into the pattern and
// manifest stores under the workspace lock.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/ruizrica/drift/internal/debug"
	detectcontext "github.com/ruizrica/drift/internal/context"
	"github.com/ruizrica/drift/internal/detect"
	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/lock"
	"github.com/ruizrica/drift/internal/manifest"
	"github.com/ruizrica/drift/internal/model"
	"github.com/ruizrica/drift/internal/patternstore"
	"github.com/ruizrica/drift/internal/walker"
)

// Options configures the watch engine.
type Options struct {
	Root           string
	DebounceMs     int
	SaveOnly       bool
	RespectIgnore  bool
	ExcludeGlobs   []string
	LockPath       string
	LockStaleAfter time.Duration
	LockTimeout    time.Duration
}

// Engine is a running watch session over one workspace.
type Engine struct {
	opts     Options
	registry *detect.Registry
	patterns *patternstore.Store
	manifest *manifest.Store
	project  model.ProjectContext

	watcher *fsnotify.Watcher
	lock    *lock.Lock
	sf      singleflight.Group

	mu       sync.Mutex
	pending  map[string]bool
	timer    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mergedMu sync.Mutex
	merged   int
}

// Start creates and starts a watch engine rooted at opts.Root.
func Start(ctx context.Context, opts Options, registry *detect.Registry, patterns *patternstore.Store, mf *manifest.Store, proj model.ProjectContext) (*Engine, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	childCtx, cancel := context.WithCancel(ctx)
	e := &Engine{
		opts:     opts,
		registry: registry,
		patterns: patterns,
		manifest: mf,
		project:  proj,
		watcher:  w,
		lock:     lock.New(opts.LockPath),
		pending:  make(map[string]bool),
		ctx:      childCtx,
		cancel:   cancel,
	}

	if err := e.addWatches(opts.Root); err != nil {
		cancel()
		w.Close()
		return nil, err
	}

	e.wg.Add(1)
	go e.loop()

	return e, nil
}

// Stop tears down the watch engine and waits for its goroutine to exit.
func (e *Engine) Stop() {
	e.cancel()
	e.watcher.Close()
	e.wg.Wait()
}

// MergedCount reports how many debounced merges have completed, mostly
// useful for tests.
func (e *Engine) MergedCount() int {
	e.mergedMu.Lock()
	defer e.mergedMu.Unlock()
	return e.merged
}

func (e *Engine) addWatches(root string) error {
	visited := make(map[string]bool)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if matchesExclude(path, e.opts.ExcludeGlobs) {
			return filepath.SkipDir
		}
		if err := e.watcher.Add(path); err != nil {
			debug.LogWatch("add watch %s: %v", path, err)
		}
		return nil
	})
}

func matchesExclude(path string, globs []string) bool {
	base := filepath.Base(path)
	for _, g := range globs {
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}

func (e *Engine) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			debug.LogWatch("watcher error: %v", err)
		}
	}
}

func (e *Engine) handleEvent(ev fsnotify.Event) {
	info, err := os.Stat(ev.Name)
	if err == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			if err := e.watcher.Add(ev.Name); err != nil {
				debug.LogWatch("add watch for new dir %s: %v", ev.Name, err)
			}
		}
		return
	}

	if e.opts.SaveOnly && ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	e.mu.Lock()
	e.pending[ev.Name] = true
	if e.timer != nil {
		e.timer.Stop()
	}
	debounce := time.Duration(e.opts.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	e.timer = time.AfterFunc(debounce, e.flush)
	e.mu.Unlock()
}

func (e *Engine) flush() {
	e.mu.Lock()
	paths := e.pending
	e.pending = make(map[string]bool)
	e.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	// singleflight collapses concurrent flush calls for the same debounce
	// window onto one merge, in case a timer fires while a prior flush is
	// still holding the workspace lock.
	_, _, _ = e.sf.Do("flush", func() (interface{}, error) {
		e.mergeFiles(paths)
		return nil, nil
	})
}

func (e *Engine) mergeFiles(paths map[string]bool) {
	release, err := e.lock.Acquire(e.ctx, "watch", e.opts.LockStaleAfter, e.opts.LockTimeout)
	if err != nil {
		debug.LogWatch("acquire lock: %v", err)
		return
	}
	defer release()

	for path := range paths {
		e.mergeOne(path)
	}

	if err := e.patterns.Save(); err != nil {
		debug.LogWatch("save patterns: %v", err)
	}
	if err := e.manifest.Save(); err != nil {
		debug.LogWatch("save manifest: %v", err)
	}

	e.mergedMu.Lock()
	e.merged++
	e.mergedMu.Unlock()
}

func (e *Engine) mergeOne(absPath string) {
	relPath, err := filepath.Rel(e.opts.Root, absPath)
	if err != nil {
		relPath = absPath
	}
	relPath = filepath.ToSlash(relPath)

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			e.manifest.RemoveFile(relPath)
			e.patterns.RemoveFile(relPath)
		}
		return
	}

	file := walker.File{RelPath: relPath, AbsPath: absPath, Ext: filepath.Ext(absPath)}
	dctx, err := detectcontext.BuildContext(e.ctx, file, content, e.project)
	if err != nil {
		debug.LogWatch("build context for %s: %v", relPath, err)
		return
	}

	// Evidence is batched per pattern id before calling Add, since Add
	// drops and replaces a file's prior evidence for that pattern: calling
	// it once per match would let each successive call erase the one
	// before it for this same file.
	type evidence struct {
		category    model.Category
		subcategory string
		locations   []model.Location
		outliers    []model.Outlier
	}
	byID := make(map[model.PatternID]*evidence)

	var semantics []model.SemanticLocation
	for _, d := range e.registry.ForLanguage(dctx.Language) {
		out, err := d.Detect(e.ctx, dctx)
		if err != nil {
			debug.LogWatch("detector %s on %s: %v", d.ID(), relPath, err)
			continue
		}
		for _, match := range out.Patterns {
			id := model.PatternID(hashutil.StablePatternID(string(d.Category()), d.Subcategory(), d.ID(), match.DetectorLocalID))
			ev, ok := byID[id]
			if !ok {
				ev = &evidence{category: d.Category(), subcategory: d.Subcategory()}
				byID[id] = ev
			}
			ev.locations = append(ev.locations, match.Location)
			if match.Semantic != nil {
				semantics = append(semantics, *match.Semantic)
			}
		}
		for _, v := range out.Violations {
			if v.DetectorLocalID == "" {
				continue
			}
			id := model.PatternID(hashutil.StablePatternID(string(d.Category()), d.Subcategory(), d.ID(), v.DetectorLocalID))
			ev, ok := byID[id]
			if !ok {
				ev = &evidence{category: d.Category(), subcategory: d.Subcategory()}
				byID[id] = ev
			}
			ev.outliers = append(ev.outliers, model.Outlier{
				Location:       v.Range,
				Reason:         v.Message,
				DeviationScore: deviationScore(v.Severity),
			})
		}
	}

	for id, ev := range byID {
		_ = e.patterns.Add(id, patternstore.Evidence{
			Category:    ev.category,
			Subcategory: ev.subcategory,
			File:        relPath,
			Locations:   ev.locations,
			Outliers:    ev.outliers,
		})
	}

	e.manifest.UpdatePatterns(e.patterns.GetAll())
	e.manifest.SetFile(relPath, hashutil.Short(content), semantics)
}

// deviationScore maps a violation's severity onto the [0,1] deviation
// scale an outlier records.
func deviationScore(sev model.Severity) float64 {
	switch sev {
	case model.SeverityError:
		return 1.0
	case model.SeverityWarning:
		return 0.6
	case model.SeverityInfo:
		return 0.3
	case model.SeverityHint:
		return 0.1
	default:
		return 0.5
	}
}
