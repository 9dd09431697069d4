// Package adadelta implements the ADADELTA per-parameter step-size rule used
// by the aggregator to move the shared weight vector.
package adadelta

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultRho     = 0.98
	DefaultEpsilon = 0.04
)

var (
	ErrInvalidParams  = errors.New("invalid optimizer parameters")
	ErrLengthMismatch = errors.New("optimizer vectors differ in length")
)

// Optimizer holds the run-level decay rate and conditioning constant.
type Optimizer struct {
	Rho     float64 `json:"rho"`
	Epsilon float64 `json:"epsilon"`
}

// Accumulators are the running averages of squared gradients (Eg2) and
// squared updates (EdW).
type Accumulators struct {
	Eg2 []float64 `json:"eg2"`
	EdW []float64 `json:"edw"`
}

func New(rho, epsilon float64) (Optimizer, error) {
	o := Optimizer{Rho: rho, Epsilon: epsilon}
	if err := o.Validate(); err != nil {
		return Optimizer{}, err
	}

	return o, nil
}

func (o Optimizer) Validate() error {
	if o.Rho <= 0 || o.Rho >= 1 || math.IsNaN(o.Rho) {
		return fmt.Errorf("%w: rho must lie in (0, 1), got %g", ErrInvalidParams, o.Rho)
	}
	if o.Epsilon <= 0 || math.IsNaN(o.Epsilon) || math.IsInf(o.Epsilon, 0) {
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidParams, o.Epsilon)
	}

	return nil
}

// Zero returns accumulators of n zeros.
func Zero(n int) Accumulators {
	return Accumulators{Eg2: make([]float64, n), EdW: make([]float64, n)}
}

// Step applies one update to prevW. None of the inputs are modified; the
// returned slices are freshly allocated.
func (o Optimizer) Step(acc Accumulators, prevW, grad []float64) (w []float64, next Accumulators, delta []float64, err error) {
	k := len(prevW)
	if len(grad) != k || len(acc.Eg2) != k || len(acc.EdW) != k {
		return nil, Accumulators{}, nil, fmt.Errorf("%w: W=%d gradient=%d Eg2=%d EdW=%d",
			ErrLengthMismatch, k, len(grad), len(acc.Eg2), len(acc.EdW))
	}

	w = make([]float64, k)
	delta = make([]float64, k)
	next = Zero(k)
	for i := range k {
		g := grad[i]
		next.Eg2[i] = o.Rho*acc.Eg2[i] + (1-o.Rho)*g*g
		delta[i] = -math.Sqrt(acc.EdW[i]+o.Epsilon) / math.Sqrt(next.Eg2[i]+o.Epsilon) * g
		next.EdW[i] = o.Rho*acc.EdW[i] + (1-o.Rho)*delta[i]*delta[i]
		w[i] = prevW[i] + delta[i]
	}

	return w, next, delta, nil
}
