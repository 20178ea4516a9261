// Package drift is the composition root: it wires the walker, detector
// registry, scan orchestrator, pattern/manifest stores, quality-gate
// orchestrator, and watch engine together behind a single facade over the
// on-disk .drift/ workspace layout.
package drift

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ruizrica/drift/internal/config"
	"github.com/ruizrica/drift/internal/detect"
	"github.com/ruizrica/drift/internal/errors"
	"github.com/ruizrica/drift/internal/gate"
	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/incremental"
	"github.com/ruizrica/drift/internal/lock"
	"github.com/ruizrica/drift/internal/manifest"
	"github.com/ruizrica/drift/internal/model"
	"github.com/ruizrica/drift/internal/patternstore"
	"github.com/ruizrica/drift/internal/scan"
	"github.com/ruizrica/drift/internal/walker"
	"github.com/ruizrica/drift/internal/watch"
)

const (
	lockStaleAfter     = 30 * time.Second
	lockAcquireTimeout = 15 * time.Second
	defaultRunHistory  = 200
	defaultSnapshots   = 50
)

// layout centralizes the on-disk paths every composition-root operation
// reads or writes under root/.drift/.
type layout struct {
	patternsPath string
	manifestPath string
	lockPath     string
	snapshotsDir string
	runsDir      string
}

func paths(root string) layout {
	base := filepath.Join(root, ".drift")
	return layout{
		patternsPath: filepath.Join(base, "patterns.json"),
		manifestPath: filepath.Join(base, "index", "manifest.json"),
		lockPath:     filepath.Join(base, "index", ".lock"),
		snapshotsDir: filepath.Join(base, "quality-gates", "snapshots"),
		runsDir:      filepath.Join(base, "quality-gates", "history", "runs"),
	}
}

// ScanOptions controls one Scan call.
type ScanOptions struct {
	Incremental  bool
	Categories   []model.Category
	CriticalOnly bool
	Workers      int
}

// Scan walks root under its resolved configuration, runs every applicable
// detector across the (optionally incremental) file set, and merges the
// result into the pattern store and manifest before returning it.
func Scan(ctx context.Context, root string, opts ScanOptions) (*scan.ScanResult, error) {
	cfg, err := config.LoadWithRoot(".drift.kdl", root)
	if err != nil {
		return nil, errors.New(errors.KindConfig, "drift.scan.config", err).WithPath(root)
	}
	p := paths(root)

	walkOpts := walker.Options{
		RespectGitignore:  cfg.Index.RespectGitignore,
		RespectToolIgnore: cfg.Index.RespectToolIgnore,
		FollowSymlinks:    cfg.Index.FollowSymlinks,
		ComputeHashes:     true,
		MaxFileSize:       cfg.Index.MaxFileSize,
		ExtWhitelist:      cfg.Index.ExtWhitelist,
		IncludeGlobs:      cfg.Include,
		ExcludeGlobs:      cfg.Exclude,
	}
	walked, err := walker.Walk(ctx, root, walkOpts, nil)
	if err != nil {
		return nil, err
	}

	patterns := patternstore.New(p.patternsPath)
	if err := patterns.Initialize(); err != nil {
		return nil, err
	}
	mf := manifest.New(p.manifestPath)
	if err := mf.Initialize(); err != nil {
		return nil, err
	}

	removeDeletedFiles(walked.Files, patterns, mf)

	files := walked.Files
	if opts.Incremental {
		files = incremental.Plan(files, mf)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Performance.ParallelFileWorkers
	}

	l := lock.New(p.lockPath)
	release, err := l.Acquire(ctx, "scan", lockStaleAfter, lockAcquireTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	orch := scan.NewOrchestrator(detect.Default(), scan.Config{
		Workers:      workers,
		Categories:   opts.Categories,
		CriticalOnly: opts.CriticalOnly,
		Incremental:  opts.Incremental,
	})

	proj := model.ProjectContext{Root: root}
	result, err := orch.Scan(ctx, files, proj)
	if err != nil {
		return nil, err
	}

	mergeIntoStores(result, patterns, mf, files, root)

	if err := patterns.Save(); err != nil {
		return nil, err
	}
	if err := mf.Save(); err != nil {
		return nil, err
	}
	return result, nil
}

// removeDeletedFiles diffs the manifest's previously-tracked file set
// against the current walk and strips every trace of a file no longer on
// disk from both stores, satisfying the "deleted files disappear from
// every index" invariant for the offline scan path the same way the watch
// engine's delete branch does for a single file at a time.
func removeDeletedFiles(walked []walker.File, patterns *patternstore.Store, mf *manifest.Store) {
	present := make(map[string]bool, len(walked))
	for _, f := range walked {
		present[f.RelPath] = true
	}
	for _, file := range mf.Files() {
		if present[file] {
			continue
		}
		mf.RemoveFile(file)
		patterns.RemoveFile(file)
	}
}

// patternMeta carries the identifying fields a pattern id resolves to,
// whichever evidence (a match or a violation) first introduced it, so
// every per-file Evidence built for that id can share them.
type patternMeta struct {
	category    model.Category
	subcategory string
	name        string
	description string
	detector    model.DetectorDescriptor
	severity    model.Severity
	language    string
}

// fileBatch accumulates one pattern id's evidence for one file, across
// however many individual locations and violations the scan produced for
// that pair, so patterns.Add is called exactly once per (pattern, file)
// combination.
type fileBatch struct {
	locations []model.Location
	outliers  []model.Outlier
}

// mergeIntoStores folds one scan's aggregated patterns, violations, and
// manifest entries into the persisted pattern store and manifest. Every
// pattern's evidence is grouped by file before merging, because Add's
// per-file replace-then-append semantics would otherwise let a second call
// for the same (pattern, file) pair wipe out the first.
func mergeIntoStores(result *scan.ScanResult, patterns *patternstore.Store, mf *manifest.Store, files []walker.File, root string) {
	meta := make(map[model.PatternID]patternMeta, len(result.Patterns))
	byID := make(map[model.PatternID]map[string]*fileBatch, len(result.Patterns))

	batchFor := func(id model.PatternID, file string) *fileBatch {
		byFile, ok := byID[id]
		if !ok {
			byFile = make(map[string]*fileBatch)
			byID[id] = byFile
		}
		b, ok := byFile[file]
		if !ok {
			b = &fileBatch{}
			byFile[file] = b
		}
		return b
	}

	for id, p := range result.Patterns {
		meta[id] = patternMeta{
			category:    p.Category,
			subcategory: p.Subcategory,
			name:        p.Name,
			description: p.Description,
			detector:    p.Detector,
			severity:    p.Severity,
			language:    string(p.Language),
		}
		for _, loc := range p.Locations {
			b := batchFor(id, loc.File)
			b.locations = append(b.locations, loc)
		}
	}

	for _, v := range result.Violations {
		if v.DetectorLocalID == "" {
			continue
		}
		id := model.PatternID(hashutil.StablePatternID(string(v.Category), "", v.DetectorID, v.DetectorLocalID))
		if _, ok := meta[id]; !ok {
			meta[id] = patternMeta{category: v.Category, detector: model.DetectorDescriptor{Kind: v.DetectorID}, severity: v.Severity}
		}
		b := batchFor(id, v.Range.File)
		b.outliers = append(b.outliers, model.Outlier{
			Location:       v.Range,
			Reason:         v.Message,
			DeviationScore: deviationScore(v.Severity),
		})
	}

	for id, byFile := range byID {
		m := meta[id]
		for file, b := range byFile {
			_ = patterns.Add(id, patternstore.Evidence{
				Category:    m.category,
				Subcategory: m.subcategory,
				Name:        m.name,
				Description: m.description,
				Detector:    m.detector,
				File:        file,
				Locations:   b.locations,
				Outliers:    b.outliers,
				Severity:    m.severity,
				Language:    m.language,
			})
		}
	}

	mf.UpdatePatterns(patterns.GetAll())

	byFile := make(map[string][]model.SemanticLocation)
	for _, loc := range result.ManifestEntries {
		byFile[loc.File] = append(byFile[loc.File], loc)
	}
	hashes := make(map[string]string, len(files))
	for _, f := range files {
		hashes[f.RelPath] = f.Hash
	}
	for file, locs := range byFile {
		hash := hashes[file]
		if hash == "" {
			if h, err := hashutil.ShortFile(filepath.Join(root, file)); err == nil {
				hash = h
			}
		}
		mf.SetFile(file, hash, locs)
	}
}

// deviationScore maps a violation's severity onto the [0,1] deviation
// scale an outlier records, so pattern-compliance scoring can weigh a
// hint-level nit differently from an error-level break from convention.
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

// QueryManifestByPattern runs q against root's persisted manifest.
func QueryManifestByPattern(root string, q manifest.PatternQuery) ([]manifest.PatternQueryResult, error) {
	mf := manifest.New(paths(root).manifestPath)
	if err := mf.Initialize(); err != nil {
		return nil, err
	}
	return mf.QueryByPattern(q)
}

// QueryManifestByFile runs q against root's persisted manifest.
func QueryManifestByFile(root string, q manifest.FileQuery) (*manifest.FileQueryResult, error) {
	mf := manifest.New(paths(root).manifestPath)
	if err := mf.Initialize(); err != nil {
		return nil, err
	}
	return mf.QueryByFile(q)
}

// RecentGateRuns returns the newest limit persisted gate-run records for
// root (0 means "no limit").
func RecentGateRuns(root string, limit int) ([]gate.RunRecord, error) {
	store := gate.NewRunStore(paths(root).runsDir, defaultRunHistory)
	return store.GetRecent(limit)
}

// RecentHealthSnapshots returns the newest limit persisted health
// snapshots for root and branch.
func RecentHealthSnapshots(root, branch string, limit int) ([]gate.HealthSnapshot, error) {
	store := gate.NewSnapshotStore(paths(root).snapshotsDir, defaultSnapshots)
	return store.GetRecent(branch, limit)
}

// defaultGateRegistry builds the registry of the six built-in gate
// implementations this core ships, so callers of RunGatePolicy never have
// to know about gate.RunPolicy's lower-level registry parameter.
func defaultGateRegistry() map[string]gate.Gate {
	return map[string]gate.Gate{
		"pattern-compliance":      gate.PatternComplianceGate{},
		"constraint-verification": gate.ConstraintVerificationGate{},
		"regression":              gate.RegressionGate{},
		"impact-simulation":       gate.ImpactSimulationGate{},
		"security-boundary":       gate.SecurityBoundaryGate{},
		"custom-rules":            gate.CustomRulesGate{FileReader: os.ReadFile},
	}
}

// RunGatePolicy resolves in's shared context (latest health snapshot) if
// the caller hasn't already populated one, dispatches policy's gates
// against the six built-in implementations, and persists both a run
// record and a fresh health snapshot before returning the result.
func RunGatePolicy(ctx context.Context, root string, policy gate.Policy, in gate.GateInput) (*gate.RunResult, error) {
	p := paths(root)

	if in.Shared.PreviousSnapshot == nil {
		snaps := gate.NewSnapshotStore(p.snapshotsDir, defaultSnapshots)
		if latest, err := snaps.Latest(in.Branch); err == nil {
			in.Shared.PreviousSnapshot = latest
		}
	}

	result, err := gate.RunPolicy(ctx, policy, in, defaultGateRegistry())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := gate.RunRecord{
		ID:        gate.NewRunID(now),
		Timestamp: now,
		Branch:    in.Branch,
		CommitSha: in.CommitSha,
		Overall:   result.Overall,
		Score:     result.Score,
		Results:   result.Results,
	}
	runs := gate.NewRunStore(p.runsDir, defaultRunHistory)
	if err := runs.Save(record); err != nil {
		return nil, err
	}

	snapshot := buildHealthSnapshot(record.ID, now, in)
	snaps := gate.NewSnapshotStore(p.snapshotsDir, defaultSnapshots)
	if err := snaps.Save(snapshot); err != nil {
		return nil, err
	}

	return result, nil
}

// buildHealthSnapshot assembles one point-in-time view of the project's
// pattern, constraint, and security posture from the shared context a
// gate run was dispatched against.
func buildHealthSnapshot(id string, now time.Time, in gate.GateInput) gate.HealthSnapshot {
	patterns := make(map[model.PatternID]gate.PatternHealth, len(in.Shared.Patterns))
	var scoreTotal float64
	for _, p := range in.Shared.Patterns {
		patterns[p.ID] = gate.PatternHealth{
			Confidence:    p.Confidence.Score,
			Compliance:    patternComplianceRate(p),
			LocationCount: len(p.Locations),
			OutlierCount:  len(p.Outliers),
		}
		scoreTotal += p.Confidence.Score
	}
	overall := 0.0
	if len(patterns) > 0 {
		overall = 100 * scoreTotal / float64(len(patterns))
	}

	constraints := make(map[string]gate.ConstraintHealth, len(in.Shared.Invariants))
	for _, inv := range in.Shared.Invariants {
		constraints[inv.ID] = gate.ConstraintHealth{
			Satisfied:  inv.Evidence.Violating == 0,
			Confidence: inv.Confidence,
		}
	}

	var security gate.SecuritySummary
	if bs := in.Shared.BoundaryStore; bs != nil {
		sensitive := make(map[string]bool)
		for _, t := range bs.SensitiveTables() {
			sensitive[t] = true
		}
		var authedTables int
		for table, accessors := range bs.AccessPointsByTable() {
			if !sensitive[table] {
				continue
			}
			security.SensitiveAccessCount += len(accessors)
			authed := 0
			for _, a := range accessors {
				if gate.LooksAuthenticated(a) {
					authed++
				}
			}
			if authed == len(accessors) && len(accessors) > 0 {
				authedTables++
				security.ProtectedTables++
			} else {
				security.UnprotectedTables++
			}
		}
		protectedPlusUnprotected := security.ProtectedTables + security.UnprotectedTables
		if protectedPlusUnprotected > 0 {
			security.AuthCoveragePercent = 100 * float64(authedTables) / float64(protectedPlusUnprotected)
		}
	}

	return gate.HealthSnapshot{
		ID:              id,
		Timestamp:       now,
		Branch:          in.Branch,
		OverallScore:    overall,
		Patterns:        patterns,
		Constraints:     constraints,
		Security:        security,
		PatternCount:    len(patterns),
		ConstraintCount: len(constraints),
	}
}

// patternComplianceRate mirrors gate.RegressionGate's own definition: the
// fraction of a pattern's recorded evidence that is a clean location
// rather than an outlier.
func patternComplianceRate(p model.Pattern) float64 {
	total := len(p.Locations) + len(p.Outliers)
	if total == 0 {
		return 1
	}
	return float64(len(p.Locations)) / float64(total)
}

// StartWatch opens the pattern store and manifest for root and starts a
// watch engine over it, using detect.Default() as the registered detector
// set and opts for its fsnotify/debounce/lock configuration.
func StartWatch(ctx context.Context, root string, opts watch.Options) (*watch.Engine, error) {
	p := paths(root)
	if opts.Root == "" {
		opts.Root = root
	}
	if opts.LockPath == "" {
		opts.LockPath = p.lockPath
	}
	if opts.LockStaleAfter == 0 {
		opts.LockStaleAfter = lockStaleAfter
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = lockAcquireTimeout
	}

	patterns := patternstore.New(p.patternsPath)
	if err := patterns.Initialize(); err != nil {
		return nil, err
	}
	mf := manifest.New(p.manifestPath)
	if err := mf.Initialize(); err != nil {
		return nil, err
	}

	proj := model.ProjectContext{Root: root}
	return watch.Start(ctx, opts, detect.Default(), patterns, mf, proj)
}
