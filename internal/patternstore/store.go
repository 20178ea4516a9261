// Package patternstore persists the learned-pattern catalog as a single
// JSON document, merging new detector evidence into existing patterns and
// writing the result back atomically so a crash mid-save never corrupts
// the on-disk file.
package patternstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ruizrica/drift/internal/debug"
	"github.com/ruizrica/drift/internal/errors"
	"github.com/ruizrica/drift/internal/lang"
	"github.com/ruizrica/drift/internal/model"
)

// Evidence is one file's worth of detector observations to merge into a
// pattern: every location and outlier Add should now record for File,
// replacing whatever that file previously contributed to the pattern.
type Evidence struct {
	Category    model.Category
	Subcategory string
	Name        string
	Description string
	Detector    model.DetectorDescriptor
	File        string
	Locations   []model.Location
	Outliers    []model.Outlier
	Severity    model.Severity
	Language    string
	AutoFixable bool
}

// Stats summarizes the store's current contents.
type Stats struct {
	TotalPatterns int
	ByCategory    map[model.Category]int
	ByStatus      map[model.Status]int
}

// Store is a file-backed, merge-on-write pattern catalog.
type Store struct {
	mu       sync.Mutex
	path     string
	patterns map[model.PatternID]*model.Pattern
	dirty    bool
}

// New returns a Store backed by path; call Initialize to load existing
// contents before use.
func New(path string) *Store {
	return &Store{path: path, patterns: make(map[model.PatternID]*model.Pattern)}
}

// Initialize loads the store's contents from disk, if the file exists. A
// missing file is not an error: the store starts empty.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(errors.KindStoreIO, "patternstore.load", err).WithPath(s.path)
	}

	var doc struct {
		Patterns []*model.Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.New(errors.KindStoreIO, "patternstore.decode", err).WithPath(s.path)
	}
	for _, p := range doc.Patterns {
		s.patterns[p.ID] = p
	}
	return nil
}

// Add merges ev into the pattern identified by id, creating it if absent.
// Merge steps:
//  1. drop every location and outlier already recorded against ev.File
//  2. append ev's locations, then cap the list at MaxLocations (FIFO)
//  3. append ev's outliers, deduped by (file, line, reason); no cap
//  4. recompute frequency/consistency/age/spread confidence components
//  5. if the pattern already existed, everything but LastSeen/evidence is
//     left untouched: status, overrides, tags, FirstSeen survive the merge
//  6. if the pattern is new, status defaults to discovered and severity is
//     derived from whether ev carries any outliers
//
// A pattern left with zero locations and zero outliers after the merge
// (every file that ever evidenced it has since been cleared) is deleted
// rather than kept around empty.
func (s *Store) Add(id model.PatternID, ev Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p, existed := s.patterns[id]
	if !existed {
		p = &model.Pattern{
			ID:          id,
			Category:    ev.Category,
			Subcategory: ev.Subcategory,
			Name:        ev.Name,
			Description: ev.Description,
			Detector:    ev.Detector,
			AutoFixable: ev.AutoFixable,
			Status:      model.StatusDiscovered,
			FirstSeen:   now,
			Language:    lang.Language(ev.Language),
		}
	}
	p.LastSeen = now

	p.Locations = dropFile(p.Locations, ev.File)
	p.Outliers = dropOutlierFile(p.Outliers, ev.File)
	p.Locations = appendLocations(p.Locations, ev.Locations)
	p.Outliers = appendOutliers(p.Outliers, ev.Outliers)

	if len(p.Locations) == 0 && len(p.Outliers) == 0 {
		delete(s.patterns, id)
		s.dirty = true
		return nil
	}

	p.Confidence.Frequency = frequencyScore(len(p.Locations))
	p.Confidence.Consistency = consistencyScore(p)
	p.Confidence.Age = ageScore(p.FirstSeen, now)
	p.Confidence.Spread = spreadScore(p.Locations)
	p.Confidence.Score = weightedScore(p.Confidence)
	p.Confidence.Level = model.LevelForScore(p.Confidence.Score)

	if !existed {
		p.Severity = defaultSeverity(ev)
	}

	s.patterns[id] = p
	s.dirty = true
	return nil
}

// RemoveFile strips every location and outlier recorded against file across
// the whole store (a deleted or renamed-away file), deleting any pattern
// left with neither.
func (s *Store) RemoveFile(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file == "" {
		return
	}

	now := time.Now()
	for id, p := range s.patterns {
		locs := dropFile(p.Locations, file)
		outliers := dropOutlierFile(p.Outliers, file)
		if len(locs) == len(p.Locations) && len(outliers) == len(p.Outliers) {
			continue
		}
		if len(locs) == 0 && len(outliers) == 0 {
			delete(s.patterns, id)
			s.dirty = true
			continue
		}

		p.Locations = locs
		p.Outliers = outliers
		p.LastSeen = now
		p.Confidence.Frequency = frequencyScore(len(p.Locations))
		p.Confidence.Consistency = consistencyScore(p)
		p.Confidence.Spread = spreadScore(p.Locations)
		p.Confidence.Score = weightedScore(p.Confidence)
		p.Confidence.Level = model.LevelForScore(p.Confidence.Score)
		s.dirty = true
	}
}

// Update replaces a pattern's evidence-derived fields the same way Add
// does, without requiring the caller to have called Add first.
func (s *Store) Update(id model.PatternID, ev Evidence) error {
	return s.Add(id, ev)
}

// Get returns the pattern with the given id, if present.
func (s *Store) Get(id model.PatternID) (model.Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[id]
	if !ok {
		return model.Pattern{}, false
	}
	return *p, true
}

// Delete removes a pattern from the store.
func (s *Store) Delete(id model.PatternID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, id)
	s.dirty = true
	return nil
}

// GetAll returns a snapshot of every stored pattern.
func (s *Store) GetAll() []model.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, *p)
	}
	return out
}

// GetStats summarizes the store's current contents.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{
		TotalPatterns: len(s.patterns),
		ByCategory:    make(map[model.Category]int),
		ByStatus:      make(map[model.Status]int),
	}
	for _, p := range s.patterns {
		stats.ByCategory[p.Category]++
		stats.ByStatus[p.Status]++
	}
	return stats
}

// Save writes the full pattern set to disk atomically: a temp file is
// written in the store's own directory, then renamed over the target path
// so a reader never observes a partially-written document.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	patterns := make([]*model.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		patterns = append(patterns, p)
	}
	doc := struct {
		Patterns []*model.Pattern `json:"patterns"`
	}{Patterns: patterns}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.New(errors.KindStoreIO, "patternstore.encode", err).WithPath(s.path)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return errors.New(errors.KindStoreIO, "patternstore.save", err).WithPath(s.path)
	}

	debug.LogStore("saved %d patterns to %s", len(patterns), s.path)
	s.dirty = false
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".patternstore-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// dropFile removes every location belonging to file, leaving the rest of
// locs (and its order) untouched.
func dropFile(locs []model.Location, file string) []model.Location {
	if file == "" || len(locs) == 0 {
		return locs
	}
	out := make([]model.Location, 0, len(locs))
	for _, l := range locs {
		if l.File != file {
			out = append(out, l)
		}
	}
	return out
}

// dropOutlierFile is dropFile's counterpart for a pattern's outlier list.
func dropOutlierFile(outliers []model.Outlier, file string) []model.Outlier {
	if file == "" || len(outliers) == 0 {
		return outliers
	}
	out := make([]model.Outlier, 0, len(outliers))
	for _, o := range outliers {
		if o.Location.File != file {
			out = append(out, o)
		}
	}
	return out
}

// appendLocations appends add to locs, deduping by key, then caps the
// result at model.MaxLocations, evicting the oldest entries (FIFO).
func appendLocations(locs []model.Location, add []model.Location) []model.Location {
	seen := make(map[[3]any]bool, len(locs)+len(add))
	for _, l := range locs {
		seen[l.Key()] = true
	}
	for _, l := range add {
		k := l.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		locs = append(locs, l)
	}
	if len(locs) > model.MaxLocations {
		locs = locs[len(locs)-model.MaxLocations:]
	}
	return locs
}

// appendOutliers appends add to outliers, deduping by (file, line, reason).
// Unlike locations, outliers are never capped: every deviation observed
// stays on record until its file is cleared.
func appendOutliers(outliers []model.Outlier, add []model.Outlier) []model.Outlier {
	seen := make(map[[3]any]bool, len(outliers)+len(add))
	for _, o := range outliers {
		seen[o.Key()] = true
	}
	for _, o := range add {
		k := o.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		outliers = append(outliers, o)
	}
	return outliers
}

// defaultSeverity picks a newly-discovered pattern's severity: evidence
// that already carries outliers describes a convention with observed
// deviations, so it defaults to warning rather than the plain info level a
// clean, not-yet-violated pattern gets.
func defaultSeverity(ev Evidence) model.Severity {
	if ev.Severity != "" {
		return ev.Severity
	}
	if len(ev.Outliers) > 0 {
		return model.SeverityWarning
	}
	return model.SeverityInfo
}

// frequencyScore maps the pattern's total recorded location count onto
// [0,1], saturating once ten or more locations have been observed.
func frequencyScore(count int) float64 {
	v := float64(count) / 10.0
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// consistencyScore starts from a 0.9 ceiling (a pattern is never fully
// "certain", only highly consistent) and subtracts a small penalty per
// recorded outlier, since each one is evidence the convention isn't
// applied uniformly.
func consistencyScore(p *model.Pattern) float64 {
	if len(p.Locations) == 0 && len(p.Outliers) == 0 {
		return 0
	}
	const outlierPenalty = 0.05
	score := 0.9 - outlierPenalty*float64(len(p.Outliers))
	if score < 0 {
		return 0
	}
	return score
}

func ageScore(firstSeen, now time.Time) float64 {
	days := now.Sub(firstSeen).Hours() / 24
	switch {
	case days >= 30:
		return 1.0
	case days <= 0:
		return 0
	default:
		return days / 30.0
	}
}

// spreadScore rewards a pattern that shows up in more than one file: a
// single-file pattern is only partial evidence of a project-wide
// convention, so it scores half, while two or more files reach the max.
func spreadScore(locs []model.Location) float64 {
	files := make(map[string]bool, len(locs))
	for _, loc := range locs {
		files[loc.File] = true
	}
	switch len(files) {
	case 0:
		return 0
	case 1:
		return 0.5
	default:
		return 1
	}
}

func weightedScore(c model.Confidence) float64 {
	return 0.35*c.Frequency + 0.25*c.Consistency + 0.15*c.Age + 0.25*c.Spread
}
