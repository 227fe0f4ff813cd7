package core

import (
	"errors"
	"fmt"

	m "volcast/models"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrModelFit         = errors.New("model fit failed")
	ErrNotConfigured    = errors.New("not configured")
)

// InsufficientDataError is returned when a price series cannot produce a single return.
// It is fatal for that instrument only.
type InsufficientDataError struct {
	Symbol       string
	Observations int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least 2 price observations, got %d", e.Symbol, e.Observations)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// ModelFitError is recorded, never returned to callers of Forecast; the grid date gets a missing value.
type ModelFitError struct {
	Kind m.FitFailureKind
	Err  error
}

func (e *ModelFitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model fit failed (%s)", e.Kind.Name())
	}
	return fmt.Sprintf("model fit failed (%s): %v", e.Kind.Name(), e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

func (e *ModelFitError) Is(target error) bool {
	return target == ErrModelFit
}

func newModelFitError(kind m.FitFailureKind, format string, args ...any) *ModelFitError {
	return &ModelFitError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// fitFailureKind maps any fit error to the kind recorded on the forecast point.
func fitFailureKind(err error) m.FitFailureKind {
	var fitErr *ModelFitError
	if errors.As(err, &fitErr) {
		return fitErr.Kind
	}
	return m.FitFailureNumerical
}
