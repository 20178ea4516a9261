package config

import (
	goerrors "errors"
	"fmt"
	"runtime"

	"github.com/ruizrica/drift/internal/errors"
)

// Validator validates configuration and applies smart defaults, one
// section at a time.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates cfg section by section and fills in
// zero-valued fields with sensible defaults.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return errors.New(errors.KindConfig, "validate-project", err)
	}
	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return errors.New(errors.KindConfig, "validate-index", err)
	}
	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return errors.New(errors.KindConfig, "validate-performance", err)
	}
	if err := v.validateGateConfig(&cfg.Gate); err != nil {
		return errors.New(errors.KindConfig, "validate-gate", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return goerrors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxTotalSizeMB <= 0 {
		return fmt.Errorf("MaxTotalSizeMB must be positive, got %d", index.MaxTotalSizeMB)
	}
	if index.MaxFileCount <= 0 {
		return fmt.Errorf("MaxFileCount must be positive, got %d", index.MaxFileCount)
	}
	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}
	return nil
}

func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	if perf.MaxMemoryMB < 0 {
		return fmt.Errorf("MaxMemoryMB cannot be negative, got %d", perf.MaxMemoryMB)
	}
	if perf.MaxGoroutines < 0 {
		return fmt.Errorf("MaxGoroutines cannot be negative, got %d", perf.MaxGoroutines)
	}
	if perf.ParallelFileWorkers < 0 {
		return fmt.Errorf("ParallelFileWorkers cannot be negative, got %d", perf.ParallelFileWorkers)
	}
	return nil
}

func (v *Validator) validateGateConfig(gate *Gate) error {
	switch gate.DefaultAggregation {
	case "any", "all", "weighted", "threshold", "":
	default:
		return fmt.Errorf("unknown gate aggregation mode %q", gate.DefaultAggregation)
	}
	if gate.Threshold < 0 || gate.Threshold > 1 {
		return fmt.Errorf("gate threshold must be in [0,1], got %v", gate.Threshold)
	}
	if gate.HistoryRetention < 0 {
		return fmt.Errorf("gate history retention cannot be negative, got %d", gate.HistoryRetention)
	}
	return nil
}

// setSmartDefaults fills in zero-valued fields: CPU-derived worker counts,
// a conservative memory ceiling, and a default gate aggregation mode.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Performance.MaxGoroutines == 0 {
		cfg.Performance.MaxGoroutines = max(1, runtime.NumCPU()-1)
	}
	if cfg.Performance.ParallelFileWorkers == 0 {
		cfg.Performance.ParallelFileWorkers = max(1, runtime.NumCPU()-1)
	}
	if cfg.Performance.MaxMemoryMB == 0 {
		cfg.Performance.MaxMemoryMB = 1024
	}
	if cfg.Performance.ScanTimeoutSec == 0 {
		cfg.Performance.ScanTimeoutSec = 120
	}
	if cfg.Gate.DefaultAggregation == "" {
		cfg.Gate.DefaultAggregation = "all"
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 300
	}
}

// ValidateConfig is a convenience wrapper around Validator.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
