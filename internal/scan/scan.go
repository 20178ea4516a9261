// Package scan runs the registered detector set across a walked file list
// using a bounded worker pool, fanning file-scan tasks out to workers and
// fanning detection results back in to a single aggregator, the way the
// teacher's scanner/processor/integrator pipeline stages a parallel index
// build.
package scan

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	detectcontext "github.com/ruizrica/drift/internal/context"
	"github.com/ruizrica/drift/internal/debug"
	"github.com/ruizrica/drift/internal/detect"
	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/lang"
	"github.com/ruizrica/drift/internal/model"
	"github.com/ruizrica/drift/internal/walker"
)

// Config controls how a single Scan runs.
type Config struct {
	UseWorkerPool    bool
	Workers          int // 0 = runtime.NumCPU()-1
	Categories       []model.Category
	CriticalOnly     bool
	Incremental      bool
	GenerateManifest bool
}

// Orchestrator runs one registry's detectors across a file set.
type Orchestrator struct {
	registry *detect.Registry
	cfg      Config
}

// NewOrchestrator builds an orchestrator bound to reg with the given config.
func NewOrchestrator(reg *detect.Registry, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = max(1, runtime.NumCPU()-1)
	}
	return &Orchestrator{registry: reg, cfg: cfg}
}

// ScanResult aggregates every detector's output across the scanned file set.
type ScanResult struct {
	Patterns        map[model.PatternID]*model.Pattern
	Violations      []model.Violation
	FilesScanned    int
	FilesErrored    int
	ManifestEntries []model.SemanticLocation
}

type fileTask struct {
	file walker.File
}

type fileResult struct {
	file       walker.File
	detections []detectorDetection
	semantics  []model.SemanticLocation
	err        error
}

type detectorDetection struct {
	detectorID string
	category   model.Category
	result     model.DetectionResult
}

// Scan reads each file's content, builds its detection context, runs every
// applicable detector against it, and aggregates the results. Aggregation
// runs single-threaded on the result channel so the pattern map needs no
// locking.
func (o *Orchestrator) Scan(ctx context.Context, files []walker.File, proj model.ProjectContext) (*ScanResult, error) {
	taskChan := make(chan fileTask, len(files))
	resultChan := make(chan fileResult, o.cfg.Workers*2)

	for _, f := range files {
		taskChan <- fileTask{file: f}
	}
	close(taskChan)

	// scanID correlates every detection context built within this one Scan
	// call, so a detector can tell which contexts belong to the same run. It
	// is not copied into ScanResult or into any persisted record.
	scanID := uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)
	var wg sync.WaitGroup
	wg.Add(o.cfg.Workers)
	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			o.runWorker(gctx, taskChan, resultChan, proj, scanID)
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	result := &ScanResult{Patterns: make(map[model.PatternID]*model.Pattern)}
	for res := range resultChan {
		o.integrate(result, res)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) runWorker(ctx context.Context, tasks <-chan fileTask, results chan<- fileResult, proj model.ProjectContext, scanID string) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			return
		default:
		}
		results <- o.scanOne(ctx, task.file, proj, scanID)
	}
}

func (o *Orchestrator) scanOne(ctx context.Context, file walker.File, proj model.ProjectContext, scanID string) fileResult {
	content, err := readFile(file.AbsPath)
	if err != nil {
		debug.LogScan("read %s: %v", file.RelPath, err)
		return fileResult{file: file, err: err}
	}

	dctx, err := detectcontext.BuildContext(ctx, file, content, proj)
	if err != nil {
		return fileResult{file: file, err: err}
	}
	dctx.ScanID = scanID

	detectors := o.applicableDetectors(dctx.Language)
	res := fileResult{file: file}
	for _, d := range detectors {
		out, err := d.Detect(ctx, dctx)
		if err != nil {
			debug.LogScan("detector %s on %s: %v", d.ID(), file.RelPath, err)
			continue
		}
		res.detections = append(res.detections, detectorDetection{
			detectorID: d.ID(),
			category:   d.Category(),
			result:     out,
		})
	}
	return res
}

func (o *Orchestrator) applicableDetectors(l lang.Language) []detect.Detector {
	candidates := o.registry.ForLanguage(l)
	if o.cfg.CriticalOnly {
		var filtered []detect.Detector
		for _, d := range candidates {
			if d.Critical() {
				filtered = append(filtered, d)
			}
		}
		candidates = filtered
	}
	if len(o.cfg.Categories) == 0 {
		return candidates
	}
	want := make(map[model.Category]bool, len(o.cfg.Categories))
	for _, c := range o.cfg.Categories {
		want[c] = true
	}
	var filtered []detect.Detector
	for _, d := range candidates {
		if want[d.Category()] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (o *Orchestrator) integrate(result *ScanResult, res fileResult) {
	if res.err != nil {
		result.FilesErrored++
		return
	}
	result.FilesScanned++

	for _, det := range res.detections {
		for _, match := range det.result.Patterns {
			id := model.PatternID(hashutil.StablePatternID(string(det.category), "", det.detectorID, match.DetectorLocalID))
			p, ok := result.Patterns[id]
			if !ok {
				p = &model.Pattern{
					ID:       id,
					Category: det.category,
					Detector: model.DetectorDescriptor{Kind: det.detectorID},
					Status:   model.StatusDiscovered,
				}
				result.Patterns[id] = p
			}
			p.Locations = appendLocationBounded(p.Locations, match.Location)
			if match.Semantic != nil {
				result.ManifestEntries = append(result.ManifestEntries, *match.Semantic)
			}
		}
		result.Violations = append(result.Violations, det.result.Violations...)
	}
}

func appendLocationBounded(locs []model.Location, loc model.Location) []model.Location {
	for _, existing := range locs {
		if existing.Key() == loc.Key() {
			return locs
		}
	}
	locs = append(locs, loc)
	if len(locs) > model.MaxLocations {
		locs = locs[len(locs)-model.MaxLocations:]
	}
	return locs
}
