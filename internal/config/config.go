// Package config loads and validates the drift workspace configuration: the
// walker's size/symlink/gitignore knobs, the worker pool's concurrency
// budget, watch-mode debounce, and the quality-gate engine's defaults. A
// typed struct is loaded from a KDL document, then normalized and defaulted
// by a separate Validator.
package config

import "os"

const (
	// DefaultMaxFileSize is the per-file size ceiling the walker applies
	// when a workspace config doesn't override it.
	DefaultMaxFileSize = 10 * 1024 * 1024
	// DefaultMaxTotalSizeMB bounds the cumulative size of one scan.
	DefaultMaxTotalSizeMB = 500
	// DefaultMaxFileCount bounds the number of files one scan will visit.
	DefaultMaxFileCount = 50000
)

type Config struct {
	Version      int
	Project      Project
	Index        Index
	Performance  Performance
	Watch        Watch
	Gate         Gate
	FeatureFlags FeatureFlags
	Include      []string
	Exclude      []string
}

type Project struct {
	Root string
	Name string
}

// Index configures the walker's traversal.
type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	RespectToolIgnore bool
	ExtWhitelist     []string
}

// Performance configures the parallel scan worker pool.
type Performance struct {
	MaxMemoryMB         int
	MaxGoroutines       int
	ParallelFileWorkers int // 0 = auto-detect (NumCPU-1)
	ScanTimeoutSec      int
	StartupDelayMs      int
}

// Watch configures the debounced file-watch engine.
type Watch struct {
	Enabled     bool
	DebounceMs  int
	SaveOnly    bool // only merge on an editor save event, not every fs event
}

// Gate configures the quality-gate engine's default policy when none is
// supplied explicitly.
type Gate struct {
	DefaultAggregation string // "any", "all", "weighted", "threshold"
	Threshold          float64
	HistoryRetention   int // max run records kept before the oldest are evicted
}

// FeatureFlags controls optional/expensive subsystems.
type FeatureFlags struct {
	EnableMemoryLimits          bool
	EnableGracefulDegradation   bool
	EnablePerformanceMonitoring bool
	EnableDetailedErrorLogging  bool
	EnableFeatureFlagLogging    bool
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads a global config from ~/.drift.kdl (if present), then a
// project config from rootDir (or the current directory), and merges them:
// the project config wins on scalar fields, but exclusions from both are
// unioned: global excludes always apply, projects only add to them.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	if kdlCfg, err := LoadKDL(searchDir); err != nil {
		return nil, err
	} else if kdlCfg != nil {
		projectConfig = kdlCfg
	}

	switch {
	case baseConfig != nil && projectConfig != nil:
		return mergeConfigs(baseConfig, projectConfig), nil
	case projectConfig != nil:
		return projectConfig, nil
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		return baseConfig, nil
	}

	return Default(searchDir), nil
}

// Default returns the built-in configuration used when no .drift.kdl is
// present anywhere in the search path.
func Default(root string) *Config {
	cwd := root
	if cwd == "" || cwd == "." {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		} else {
			cwd = "."
		}
	}

	cfg := &Config{
		Version: 1,
		Project: Project{Root: cwd},
		Index: Index{
			MaxFileSize:       DefaultMaxFileSize,
			MaxTotalSizeMB:    DefaultMaxTotalSizeMB,
			MaxFileCount:      DefaultMaxFileCount,
			FollowSymlinks:    false,
			RespectGitignore:  true,
			RespectToolIgnore: true,
		},
		Performance: Performance{
			MaxMemoryMB:         1024,
			MaxGoroutines:       0,
			ParallelFileWorkers: 0,
			ScanTimeoutSec:      120,
			StartupDelayMs:      0,
		},
		Watch: Watch{
			Enabled:    true,
			DebounceMs: 300,
			SaveOnly:   false,
		},
		Gate: Gate{
			DefaultAggregation: "all",
			Threshold:          0.8,
			HistoryRetention:   200,
		},
		FeatureFlags: FeatureFlags{
			EnableMemoryLimits:          true,
			EnableGracefulDegradation:   true,
			EnablePerformanceMonitoring: true,
			EnableDetailedErrorLogging:  true,
			EnableFeatureFlagLogging:    false,
		},
		Include: []string{},
		Exclude: append([]string{}, defaultExclusions...),
	}

	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg
}

// mergeConfigs merges a base (global) config with a project config. Project
// settings win on scalars; exclusions from both are unioned and
// deduplicated.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		excludeSet := make(map[string]bool, len(base.Exclude)+len(project.Exclude))
		for _, pattern := range base.Exclude {
			excludeSet[pattern] = true
		}
		for _, pattern := range project.Exclude {
			excludeSet[pattern] = true
		}
		merged.Exclude = make([]string, 0, len(excludeSet))
		for pattern := range excludeSet {
			merged.Exclude = append(merged.Exclude, pattern)
		}
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// EnrichExclusionsWithBuildArtifacts detects build output directories from
// language-specific project files and adds them to the exclusion list.
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}
	detector := NewBuildArtifactDetector(c.Project.Root)
	detected := detector.DetectOutputDirectories()
	if len(detected) > 0 {
		c.Exclude = append(c.Exclude, detected...)
		c.Exclude = DeduplicatePatterns(c.Exclude)
	}
}
