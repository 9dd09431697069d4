// Package site is the data holder's side of a federated ridge regression
// run. A site answers each aggregator broadcast with a contribution computed
// from its private dataset; only gradients, sums and statistics leave it.
package site

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/absmach/fedridge/pkg/fl"
)

const DefaultEta = 0.1

type FitMethod string

const (
	// FitExact solves the ridge normal equations.
	FitExact FitMethod = "exact"
	// FitIterative minimises the objective with BFGS from a random start.
	FitIterative FitMethod = "iterative"
)

var ErrInvalidFitMethod = errors.New("unknown fit method")

type Config struct {
	Eta       float64   `json:"eta,omitempty"        toml:"eta"`
	Lambda    float64   `json:"lambda"               toml:"lambda"`
	FitMethod FitMethod `json:"fit_method,omitempty" toml:"fit_method"`
}

func (c Config) withDefaults() Config {
	if c.Eta == 0 {
		c.Eta = DefaultEta
	}
	if c.FitMethod == "" {
		c.FitMethod = FitExact
	}

	return c
}

func (c Config) Validate() error {
	c = c.withDefaults()
	if c.Lambda < 0 || math.IsNaN(c.Lambda) || math.IsInf(c.Lambda, 0) {
		return fl.Validation(fmt.Errorf("%w: got %g", fl.ErrInvalidLambda, c.Lambda))
	}
	if c.Eta < 0 || math.IsNaN(c.Eta) {
		return fl.Validation(fmt.Errorf("eta must be positive, got %g", c.Eta))
	}
	switch c.FitMethod {
	case FitExact, FitIterative:
	default:
		return fl.Validation(fmt.Errorf("%w: %q", ErrInvalidFitMethod, c.FitMethod))
	}

	return nil
}

type Service interface {
	ID() string
	// Step answers the broadcast of a run. It returns a nil contribution
	// once the run is completed.
	Step(ctx context.Context, runID string, b fl.Broadcast) (fl.Contribution, error)
	// Result returns the final result of a run this site completed.
	Result(ctx context.Context, runID string) (fl.Result, error)
}
