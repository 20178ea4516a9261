// Package manifest persists two mirrored indexes over the same evidence:
// a file-keyed reverse index ("what semantic locations live in this
// file") used for incremental-scan change detection and per-file lookup,
// and a pattern-keyed forward index ("what locations has this pattern
// been observed at") used to answer pattern queries without rescanning
// every file entry. Persistence mirrors patternstore's atomic-save shape;
// the query language uses doublestar for the glob half of a query.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ruizrica/drift/internal/debug"
	"github.com/ruizrica/drift/internal/errors"
	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/model"
)

// FileEntry is one file's manifest record: its content hash and the
// semantic locations discovered in it.
type FileEntry struct {
	File        string                   `json:"file"`
	ContentHash string                   `json:"contentHash"`
	Locations   []model.SemanticLocation `json:"locations"`
}

// PatternEntry is one pattern's manifest record: the identifying and
// status fields a query needs to filter on, plus the locations it has
// been observed at. It mirrors a subset of model.Pattern rather than
// embedding it, so the manifest can be rebuilt from UpdatePattern calls
// without depending on patternstore's merge internals.
type PatternEntry struct {
	PatternID   model.PatternID  `json:"patternId"`
	PatternName string           `json:"patternName"`
	Category    model.Category   `json:"category"`
	Status      model.Status     `json:"status"`
	Confidence  float64          `json:"confidence"`
	Locations   []model.Location `json:"locations"`
}

// Store is a file-backed pair of reverse (file->locations) and forward
// (pattern->locations) indexes.
type Store struct {
	mu       sync.Mutex
	path     string
	entries  map[string]*FileEntry
	patterns map[model.PatternID]*PatternEntry
	// codebaseHash is recomputed from entries on every Save.
	codebaseHash string
	dirty        bool
}

// New returns a Store backed by path; call Initialize before use.
func New(path string) *Store {
	return &Store{
		path:     path,
		entries:  make(map[string]*FileEntry),
		patterns: make(map[model.PatternID]*PatternEntry),
	}
}

// Initialize loads existing contents from disk, if present.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(errors.KindStoreIO, "manifest.load", err).WithPath(s.path)
	}

	var doc struct {
		CodebaseHash string          `json:"codebaseHash"`
		Files        []*FileEntry    `json:"files"`
		Patterns     []*PatternEntry `json:"patterns"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.New(errors.KindStoreIO, "manifest.decode", err).WithPath(s.path)
	}
	for _, f := range doc.Files {
		s.entries[f.File] = f
	}
	for _, p := range doc.Patterns {
		s.patterns[p.PatternID] = p
	}
	s.codebaseHash = doc.CodebaseHash
	return nil
}

// SetFile replaces the manifest's file-keyed record for one file.
func (s *Store) SetFile(file, contentHash string, locations []model.SemanticLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[file] = &FileEntry{File: file, ContentHash: contentHash, Locations: locations}
	s.dirty = true
}

// RemoveFile deletes a file's record from both indexes (e.g. the file was
// deleted): its file-keyed entry, and its locations out of every pattern
// that referenced it.
func (s *Store) RemoveFile(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[file]; ok {
		delete(s.entries, file)
		s.dirty = true
	}
	s.clearFilePatternsLocked(file)
}

// ClearFilePatterns strips file's locations out of every pattern entry,
// deleting any pattern left with none, without touching the file-keyed
// index. Scan callers use this ahead of re-merging a rescanned file's
// fresh pattern evidence; RemoveFile uses it for a file that no longer
// exists at all.
func (s *Store) ClearFilePatterns(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearFilePatternsLocked(file)
}

func (s *Store) clearFilePatternsLocked(file string) {
	if file == "" {
		return
	}
	for id, pe := range s.patterns {
		locs := make([]model.Location, 0, len(pe.Locations))
		for _, l := range pe.Locations {
			if l.File != file {
				locs = append(locs, l)
			}
		}
		if len(locs) == len(pe.Locations) {
			continue
		}
		if len(locs) == 0 {
			delete(s.patterns, id)
		} else {
			pe.Locations = locs
		}
		s.dirty = true
	}
}

// UpdatePattern upserts p's manifest-facing projection into the
// pattern-keyed index.
func (s *Store) UpdatePattern(p model.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatePatternLocked(p)
}

// UpdatePatterns upserts every pattern in ps under a single lock.
func (s *Store) UpdatePatterns(ps []model.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.updatePatternLocked(p)
	}
}

func (s *Store) updatePatternLocked(p model.Pattern) {
	s.patterns[p.ID] = &PatternEntry{
		PatternID:   p.ID,
		PatternName: p.Name,
		Category:    p.Category,
		Status:      p.Status,
		Confidence:  p.Confidence.Score,
		Locations:   append([]model.Location(nil), p.Locations...),
	}
	s.dirty = true
}

// Files returns every file path currently tracked in the file-keyed
// index, letting a caller diff it against a fresh directory walk to find
// files that have since been deleted.
func (s *Store) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for f := range s.entries {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FileHash returns the recorded content hash for file, if present.
func (s *Store) FileHash(file string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[file]
	if !ok {
		return "", false
	}
	return e.ContentHash, true
}

// PatternQuery selects pattern-keyed manifest entries. Every filter is
// optional; a zero value for a field means "match everything" along that
// dimension. NameQuery matches case-insensitively against either the
// pattern id or its name.
type PatternQuery struct {
	NameQuery     string
	Category      model.Category
	Status        model.Status
	MinConfidence float64
	FileGlob      string
	Limit         int
}

// PatternQueryResult is one pattern's query projection: its identity, a
// (possibly limited) slice of its locations, and the total count before
// limiting so a caller can tell the result was truncated.
type PatternQueryResult struct {
	PatternID   model.PatternID
	PatternName string
	Category    model.Category
	Locations   []model.Location
	TotalCount  int
}

// QueryByPattern returns every pattern entry matching q.
func (s *Store) QueryByPattern(q PatternQuery) ([]PatternQueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PatternQueryResult
	for id, pe := range s.patterns {
		if q.Category != "" && pe.Category != q.Category {
			continue
		}
		if q.Status != "" && pe.Status != q.Status {
			continue
		}
		if q.MinConfidence > 0 && pe.Confidence < q.MinConfidence {
			continue
		}
		if q.NameQuery != "" {
			needle := strings.ToLower(q.NameQuery)
			if !strings.Contains(strings.ToLower(string(id)), needle) &&
				!strings.Contains(strings.ToLower(pe.PatternName), needle) {
				continue
			}
		}

		locs := pe.Locations
		if q.FileGlob != "" {
			filtered := make([]model.Location, 0, len(locs))
			for _, l := range locs {
				ok, err := doublestar.Match(q.FileGlob, l.File)
				if err != nil {
					return nil, errors.New(errors.KindStoreIO, "manifest.query", err).WithPath(q.FileGlob)
				}
				if ok {
					filtered = append(filtered, l)
				}
			}
			locs = filtered
			if len(locs) == 0 {
				continue
			}
		}

		total := len(locs)
		limited := locs
		if q.Limit > 0 && len(limited) > q.Limit {
			limited = limited[:q.Limit]
		}
		out = append(out, PatternQueryResult{
			PatternID:   id,
			PatternName: pe.PatternName,
			Category:    pe.Category,
			Locations:   limited,
			TotalCount:  total,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternID < out[j].PatternID })
	return out, nil
}

// FileQuery looks up a single file's manifest record, either by exact path
// or by the first entry (in path order) matching a glob.
type FileQuery struct {
	File string
	Glob string
}

// FilePatternRef is a pattern entry's identity, returned alongside a file
// query result for every pattern observed in that file.
type FilePatternRef struct {
	PatternID   model.PatternID
	PatternName string
	Category    model.Category
}

// FileQueryResult is one file's full manifest record: its file-keyed entry
// plus every pattern that currently references it.
type FileQueryResult struct {
	File        string
	ContentHash string
	Locations   []model.SemanticLocation
	Patterns    []FilePatternRef
}

// QueryByFile returns the manifest record for one file, if present.
func (s *Store) QueryByFile(q FileQuery) (*FileQueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := q.File
	if file == "" && q.Glob != "" {
		files := make([]string, 0, len(s.entries))
		for f := range s.entries {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			ok, err := doublestar.Match(q.Glob, f)
			if err != nil {
				return nil, errors.New(errors.KindStoreIO, "manifest.query", err).WithPath(q.Glob)
			}
			if ok {
				file = f
				break
			}
		}
	}
	if file == "" {
		return nil, nil
	}
	entry, ok := s.entries[file]
	if !ok {
		return nil, nil
	}

	var refs []FilePatternRef
	for id, pe := range s.patterns {
		for _, l := range pe.Locations {
			if l.File == file {
				refs = append(refs, FilePatternRef{PatternID: id, PatternName: pe.PatternName, Category: pe.Category})
				break
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].PatternID < refs[j].PatternID })

	return &FileQueryResult{File: entry.File, ContentHash: entry.ContentHash, Locations: entry.Locations, Patterns: refs}, nil
}

// CodebaseHash returns the last-saved aggregate codebase hash.
func (s *Store) CodebaseHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codebaseHash
}

// Save recomputes the aggregate codebase hash from every file's content
// hash and writes both indexes to disk atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	files := make([]*FileEntry, 0, len(s.entries))
	hashes := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		files = append(files, e)
		hashes = append(hashes, e.ContentHash)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].File < files[j].File })
	s.codebaseHash = hashutil.Codebase(hashes)

	patterns := make([]*PatternEntry, 0, len(s.patterns))
	for _, p := range s.patterns {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].PatternID < patterns[j].PatternID })

	doc := struct {
		CodebaseHash string          `json:"codebaseHash"`
		Files        []*FileEntry    `json:"files"`
		Patterns     []*PatternEntry `json:"patterns"`
	}{CodebaseHash: s.codebaseHash, Files: files, Patterns: patterns}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.New(errors.KindStoreIO, "manifest.encode", err).WithPath(s.path)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return errors.New(errors.KindStoreIO, "manifest.save", err).WithPath(s.path)
	}

	debug.LogStore("saved manifest with %d files, %d patterns, codebase hash %s", len(files), len(patterns), s.codebaseHash)
	s.dirty = false
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
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
