package regression

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DegreesOfFreedom returns count − numFeatures, the residual degrees of
// freedom used for every t-test in a run.
func DegreesOfFreedom(count, numFeatures int) int {
	return count - numFeatures
}

// PValues returns two-tailed p-values 2·(1 − CDF(|t|)) under a Student-t
// distribution with df degrees of freedom.
func PValues(df int, t []float64) []float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}

	p := make([]float64, len(t))
	for i, v := range t {
		switch {
		case math.IsNaN(v):
			p[i] = math.NaN()
		case math.IsInf(v, 0):
			p[i] = 0
		default:
			p[i] = 2 * dist.Survival(math.Abs(v))
		}
	}

	return p
}

// Mean returns the arithmetic mean of y.
func Mean(y []float64) float64 {
	return stat.Mean(y, nil)
}

// WeightedMean returns Σ(meanᵢ·countᵢ)/Σcountᵢ.
func WeightedMean(means []float64, counts []int) float64 {
	weights := make([]float64, len(counts))
	for i, c := range counts {
		weights[i] = float64(c)
	}

	return stat.Mean(means, weights)
}
