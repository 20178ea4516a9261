// Package errors defines the tagged error shapes the drift core returns
// across every component boundary: path errors from the walker,
// detector/worker errors from the scan orchestrator, store I/O errors from
// the pattern and manifest stores, lock-acquisition failures from watch
// mode, and gate-execution errors from the quality-gate orchestrator.
package errors

import (
	"fmt"
	"time"
)

// Kind identifies which category of failure a DriftError represents.
type Kind string

const (
	KindPath      Kind = "path"      // walker: access/read/symlink-loop/size
	KindDetector  Kind = "detector"  // a single detector threw during Detect
	KindWorker    Kind = "worker"    // a scan worker task failed fatally
	KindStoreIO   Kind = "store_io"  // pattern/manifest/history persistence
	KindLock      Kind = "lock"      // workspace writer lock acquisition
	KindGate      Kind = "gate"      // a quality gate's executor errored
	KindConfig    Kind = "config"    // configuration load/validation
	KindInternal  Kind = "internal"  // corrupt persisted state, OOM, etc.
)

// DriftError is the common error shape used at every cross-component
// boundary. Operation names the boundary call that failed
// (e.g. "walk", "detect", "patternstore.save"); Path, when set, is the file
// or store document the error concerns.
type DriftError struct {
	Kind        Kind
	Operation   string
	Path        string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// New creates a DriftError for the given boundary and underlying cause.
func New(kind Kind, op string, err error) *DriftError {
	return &DriftError{
		Kind:       kind,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithPath attaches the file or document path the error concerns.
func (e *DriftError) WithPath(path string) *DriftError {
	e.Path = path
	return e
}

// WithRecoverable marks whether a caller may retry the operation.
func (e *DriftError) WithRecoverable(recoverable bool) *DriftError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface.
func (e *DriftError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Kind, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *DriftError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable reports whether the caller may retry the failed operation.
func (e *DriftError) IsRecoverable() bool {
	return e.Recoverable
}

// MultiError aggregates several errors collected while an operation
// continued despite individual failures — the shape the walker and
// scan orchestrator use to report per-path/per-file errors without
// aborting the overall traversal or scan.
type MultiError struct {
	Errors []error
}

// NewMultiError filters nils and wraps the remainder.
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors (first: %v)", len(e.Errors), e.Errors[0])
	}
}

// Unwrap exposes the full error list to errors.Is/errors.As (Go 1.20+).
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// HasErrors reports whether the aggregate holds any non-nil error.
func (e *MultiError) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}
