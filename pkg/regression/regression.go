// Package regression holds the ridge regression math shared by sites and the
// aggregator. Every function is pure: inputs are never modified.
//
// The objective is the residual sum of squares plus an L2 penalty of
// λ·(W·W)/2, so its gradient is −2·Xᵀ(y − X·W) + λ·W. FitExact minimises the
// same objective.
package regression

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// DefaultLambda is used when no regularisation strength is configured.
	DefaultLambda = 0.0

	// maxCondition bounds the condition number of XᵀX + (λ/2)·I before the
	// system is treated as singular.
	maxCondition = 1e12

	iterativeGradientThreshold = 1e-8
)

// Residuals returns y − X·W.
func Residuals(w []float64, x mat.Matrix, y []float64) ([]float64, error) {
	n, k := x.Dims()
	if n == 0 {
		return nil, ErrEmptyDesign
	}
	if len(w) != k || len(y) != n {
		return nil, fmt.Errorf("%w: X is %dx%d, W has %d entries, y has %d", ErrDimensionMismatch, n, k, len(w), len(y))
	}

	var fitted mat.VecDense
	fitted.MulVec(x, mat.NewVecDense(k, w))

	res := make([]float64, n)
	for i := range res {
		res[i] = y[i] - fitted.AtVec(i)
	}

	return res, nil
}

// Objective returns Σ(yᵢ − Xᵢ·W)² + λ·(W·W)/2.
func Objective(w []float64, x mat.Matrix, y []float64, lambda float64) (float64, error) {
	res, err := Residuals(w, x, y)
	if err != nil {
		return 0, err
	}

	return floats.Dot(res, res) + lambda*floats.Dot(w, w)*0.5, nil
}

// Gradient returns −2·Xᵀ(y − X·W) + λ·W.
func Gradient(w []float64, x mat.Matrix, y []float64, lambda float64) ([]float64, error) {
	res, err := Residuals(w, x, y)
	if err != nil {
		return nil, err
	}

	var xtr mat.VecDense
	xtr.MulVec(x.T(), mat.NewVecDense(len(res), res))

	grad := make([]float64, len(w))
	for j := range grad {
		grad[j] = -2*xtr.AtVec(j) + lambda*w[j]
	}

	return grad, nil
}

// FitExact solves (XᵀX + (λ/2)·I)·W = Xᵀy, the stationary point of Objective.
func FitExact(x mat.Matrix, y []float64, lambda float64) ([]float64, error) {
	n, _ := x.Dims()
	if n == 0 {
		return nil, ErrEmptyDesign
	}
	if len(y) != n {
		return nil, fmt.Errorf("%w: X has %d rows, y has %d", ErrDimensionMismatch, n, len(y))
	}

	chol, err := factorize(x, lambda/2)
	if err != nil {
		return nil, err
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, y))

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSingularMatrix, err)
	}

	return vecToSlice(&w), nil
}

// FitIterative minimises Objective with BFGS starting from init. A nil init
// is replaced by a random vector.
func FitIterative(x mat.Matrix, y []float64, lambda float64, init []float64) ([]float64, error) {
	n, k := x.Dims()
	if n == 0 {
		return nil, ErrEmptyDesign
	}
	if len(y) != n {
		return nil, fmt.Errorf("%w: X has %d rows, y has %d", ErrDimensionMismatch, n, len(y))
	}
	if init == nil {
		init = make([]float64, k)
		for i := range init {
			init[i] = rand.Float64()
		}
	}
	if len(init) != k {
		return nil, fmt.Errorf("%w: initial W has %d entries, X has %d columns", ErrDimensionMismatch, len(init), k)
	}

	p := optimize.Problem{
		Func: func(w []float64) float64 {
			f, _ := Objective(w, x, y, lambda)

			return f
		},
		Grad: func(grad, w []float64) {
			g, _ := Gradient(w, x, y, lambda)
			copy(grad, g)
		},
	}

	result, err := optimize.Minimize(p, init, &optimize.Settings{GradientThreshold: iterativeGradientThreshold}, &optimize.BFGS{})
	if err != nil {
		return nil, fmt.Errorf("iterative fit failed: %w", err)
	}

	return append([]float64(nil), result.X...), nil
}

// RSquared returns 1 − SSresidual/SStotal where SStotal is taken around
// meanY. The caller picks meanY, which may be a cross-site mean.
func RSquared(w []float64, x mat.Matrix, y []float64, meanY float64) (float64, error) {
	sse, err := SSE(w, x, y)
	if err != nil {
		return 0, err
	}

	return 1 - sse/SST(y, meanY), nil
}

// SSE returns the residual sum of squares.
func SSE(w []float64, x mat.Matrix, y []float64) (float64, error) {
	res, err := Residuals(w, x, y)
	if err != nil {
		return 0, err
	}

	return floats.Dot(res, res), nil
}

// SST returns Σ(yᵢ − meanY)².
func SST(y []float64, meanY float64) float64 {
	var sst float64
	for _, v := range y {
		d := v - meanY
		sst += d * d
	}

	return sst
}

// TValues returns Wᵢ / sqrt(varBetaᵢᵢ) with varBeta = (XᵀX)⁻¹ · SSE/(n − k).
func TValues(w []float64, x mat.Matrix, y []float64) ([]float64, error) {
	n, k := x.Dims()
	if df := n - k; df <= 0 {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", ErrInsufficientDegreesOfFreedom, n, k)
	}

	sse, err := SSE(w, x, y)
	if err != nil {
		return nil, err
	}
	varError := sse / float64(n-k)

	chol, err := factorize(x, 0)
	if err != nil {
		return nil, err
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSingularMatrix, err)
	}

	t := make([]float64, k)
	for i := range t {
		t[i] = w[i] / math.Sqrt(inv.At(i, i)*varError)
	}

	return t, nil
}

// GramDiagonal returns diag(XᵀX), the per-column sums of squares.
func GramDiagonal(x mat.Matrix) []float64 {
	n, k := x.Dims()
	diag := make([]float64, k)
	for i := range n {
		for j := range k {
			v := x.At(i, j)
			diag[j] += v * v
		}
	}

	return diag
}

// factorize returns the Cholesky factorisation of XᵀX + ridge·I.
func factorize(x mat.Matrix, ridge float64) (*mat.Cholesky, error) {
	_, k := x.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, x.T())
	if ridge != 0 {
		for i := range k {
			gram.SetSym(i, i, gram.At(i, i)+ridge)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, ErrSingularMatrix
	}
	if c := chol.Cond(); c > maxCondition || math.IsInf(c, 0) || math.IsNaN(c) {
		return nil, fmt.Errorf("%w: condition number %g", ErrSingularMatrix, c)
	}

	return &chol, nil
}

func vecToSlice(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}

	return out
}
