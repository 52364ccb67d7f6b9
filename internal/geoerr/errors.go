// Package geoerr defines the error kinds raised by geoprocessing runs.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind classifies a geoprocessing failure.
type Kind string

const (
	// InvalidField means a named attribute field does not exist on a dataset.
	InvalidField Kind = "invalid_field"
	// EmptySelection means a step produced no features for the next step.
	EmptySelection Kind = "empty_selection"
	// SpatialReferenceMismatch means input datasets disagree on their
	// coordinate system, or coordinates fall outside the declared one.
	SpatialReferenceMismatch Kind = "spatial_reference_mismatch"
	// EngineCallFailed wraps any failure raised by the geoprocessing engine.
	EngineCallFailed Kind = "engine_call_failed"
	// CleanupFailed reports intermediate artifacts that could not be removed.
	// It is the only non-fatal kind.
	CleanupFailed Kind = "cleanup_failed"
	// ContainerExists means the scratch container name is already taken.
	ContainerExists Kind = "container_exists"
	// InvalidInput covers bad run parameters (tolerance, paths, flags).
	InvalidInput Kind = "invalid_input"
)

// Error is a classified geoprocessing error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err under kind for the operation op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain, or ""
// when err carries no classification.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Is reports whether err (or any error it wraps) has the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var ge *Error
	for e := err; errors.As(e, &ge); e = ge.Err {
		if ge.Kind == kind {
			return true
		}
		if ge.Err == nil {
			break
		}
	}
	return false
}

// IsFatal reports whether err should abort a run. Unclassified errors are
// fatal; only CleanupFailed is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != CleanupFailed
}
