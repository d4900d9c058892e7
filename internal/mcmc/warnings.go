package mcmc

import (
	"errors"
	"fmt"

	"decipher/internal/bigram"
)

var (
	ErrInvalidConfig   = errors.New("invalid sampler config")
	ErrDegenerateModel = errors.New("degenerate bigram model")
)

type WarningKind string

const (
	WarningConfiguration   WarningKind = "configuration"
	WarningDegenerateModel WarningKind = "degenerate_model"
)

// Warning describes a run that can proceed but whose result is probably
// meaningless.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Validate rejects configurations the sampler cannot run and reports the
// degenerate ones it can.
func (c Config) Validate() ([]Warning, error) {
	if c.Iterations < 0 {
		return nil, fmt.Errorf("%w: iterations must be >= 0, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.StepSize < 0 {
		return nil, fmt.Errorf("%w: step size must be >= 0, got %d", ErrInvalidConfig, c.StepSize)
	}
	if c.PrintEvery < 0 {
		return nil, fmt.Errorf("%w: print cadence must be >= 0, got %d", ErrInvalidConfig, c.PrintEvery)
	}

	var warnings []Warning
	if c.Iterations == 0 {
		warnings = append(warnings, Warning{Kind: WarningConfiguration, Message: "zero iterations: the identity key is returned unchanged"})
	}
	if c.StepSize == 0 {
		warnings = append(warnings, Warning{Kind: WarningConfiguration, Message: "zero step size: every proposal equals the current key"})
	}
	return warnings, nil
}

// ModelWarnings reports all-zero matrices, for which scoring reduces to
// smoothing terms only.
func ModelWarnings(observed, reference *bigram.Matrix) []Warning {
	var warnings []Warning
	if reference.IsZero() {
		warnings = append(warnings, Warning{Kind: WarningDegenerateModel, Message: fmt.Sprintf("%v: reference matrix is all zero", ErrDegenerateModel)})
	}
	if observed.IsZero() {
		warnings = append(warnings, Warning{Kind: WarningDegenerateModel, Message: fmt.Sprintf("%v: observed matrix is all zero", ErrDegenerateModel)})
	}
	return warnings
}
