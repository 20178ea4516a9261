package errors

import (
	"errors"
	"testing"
)

func TestDriftErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := New(KindStoreIO, "patternstore.save", cause).WithPath(".drift/patterns.json").WithRecoverable(true)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find underlying cause")
	}
	if !err.IsRecoverable() {
		t.Fatalf("expected recoverable flag to stick")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestMultiErrorAggregation(t *testing.T) {
	m := NewMultiError([]error{nil, errors.New("a"), nil, errors.New("b")})
	if len(m.Errors) != 2 {
		t.Fatalf("expected nils filtered, got %d errors", len(m.Errors))
	}
	if !m.HasErrors() {
		t.Fatalf("expected HasErrors true")
	}

	empty := NewMultiError(nil)
	if empty.HasErrors() {
		t.Fatalf("expected HasErrors false for empty aggregate")
	}
}
