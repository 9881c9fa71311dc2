package markers

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching. The typed errors below unwrap to
// one of these so callers can branch on the category without caring about
// the offending field.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNoReferencesSelected = errors.New("no reference markers selected")
	ErrNoReferenceData      = errors.New("no valid reference data")
	ErrInvalidSelection     = errors.New("invalid selection")
	ErrInsufficientData     = errors.New("insufficient data")
)

// NotFoundError reports a marker, axis or frame that is absent from a Store.
type NotFoundError struct {
	Kind string // "marker", "axis" or "frame"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func markerNotFound(name string) error {
	return &NotFoundError{Kind: "marker", Name: name}
}

func frameNotFound(frame int) error {
	return &NotFoundError{Kind: "frame", Name: fmt.Sprint(frame)}
}

// InvalidParameterError reports a parameter that failed validation before any
// computation or mutation took place.
type InvalidParameterError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// InvalidParam is shorthand for building an InvalidParameterError.
func InvalidParam(field string, value interface{}, reason string) error {
	return &InvalidParameterError{Field: field, Value: value, Reason: reason}
}

// NoReferenceDataError reports a pattern-repair target with no fully valid
// frame anywhere in the dataset.
type NoReferenceDataError struct {
	Marker string
}

func (e *NoReferenceDataError) Error() string {
	return fmt.Sprintf("no valid data for marker %q in entire dataset", e.Marker)
}

func (e *NoReferenceDataError) Unwrap() error { return ErrNoReferenceData }

// InvalidSelectionError reports a reference set that cannot be used, such as
// one containing the target marker itself.
type InvalidSelectionError struct {
	Marker string
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid selection %q: %s", e.Marker, e.Reason)
}

func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }

// InsufficientDataError reports an interpolant that cannot be built because
// the series has too few valid knots.
type InsufficientDataError struct {
	Marker string
	Axis   Axis
	Need   int
	Have   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s_%s: need at least %d valid samples, have %d", e.Marker, e.Axis, e.Need, e.Have)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }
