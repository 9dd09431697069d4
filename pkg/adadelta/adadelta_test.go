package adadelta_test

import (
	"math"
	"testing"

	"github.com/absmach/fedridge/pkg/adadelta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cases := []struct {
		desc    string
		rho     float64
		epsilon float64
		err     error
	}{
		{desc: "defaults", rho: adadelta.DefaultRho, epsilon: adadelta.DefaultEpsilon},
		{desc: "rho of one", rho: 1, epsilon: 0.1, err: adadelta.ErrInvalidParams},
		{desc: "negative rho", rho: -0.5, epsilon: 0.1, err: adadelta.ErrInvalidParams},
		{desc: "zero epsilon", rho: 0.5, epsilon: 0, err: adadelta.ErrInvalidParams},
		{desc: "nan epsilon", rho: 0.5, epsilon: math.NaN(), err: adadelta.ErrInvalidParams},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := adadelta.New(tc.rho, tc.epsilon)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStepFirstUpdate(t *testing.T) {
	o := adadelta.Optimizer{Rho: 0.5, Epsilon: 0.1}
	prevW := []float64{1, -1}
	grad := []float64{2, 0}

	w, next, delta, err := o.Step(adadelta.Zero(2), prevW, grad)
	require.NoError(t, err)

	// Eg2 = 0.5*4 = 2; delta = -sqrt(0.1)/sqrt(2.1)*2.
	wantDelta := -math.Sqrt(0.1) / math.Sqrt(2.1) * 2
	assert.InDeltaSlice(t, []float64{2, 0}, next.Eg2, 1e-12)
	assert.InDeltaSlice(t, []float64{wantDelta, 0}, delta, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5 * wantDelta * wantDelta, 0}, next.EdW, 1e-12)
	assert.InDeltaSlice(t, []float64{1 + wantDelta, -1}, w, 1e-12)

	assert.Equal(t, []float64{1, -1}, prevW, "prevW must not be modified")
	assert.Equal(t, []float64{2, 0}, grad, "gradient must not be modified")
}

func TestStepDoesNotMutateAccumulators(t *testing.T) {
	o := adadelta.Optimizer{Rho: adadelta.DefaultRho, Epsilon: adadelta.DefaultEpsilon}
	acc := adadelta.Accumulators{Eg2: []float64{1, 2}, EdW: []float64{3, 4}}

	_, next, _, err := o.Step(acc, []float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2}, acc.Eg2)
	assert.Equal(t, []float64{3, 4}, acc.EdW)
	assert.NotEqual(t, acc.Eg2, next.Eg2)
}

func TestStepMovesAgainstGradient(t *testing.T) {
	o := adadelta.Optimizer{Rho: adadelta.DefaultRho, Epsilon: adadelta.DefaultEpsilon}

	_, _, delta, err := o.Step(adadelta.Zero(3), []float64{0, 0, 0}, []float64{5, -3, 0})
	require.NoError(t, err)

	assert.Less(t, delta[0], 0.0)
	assert.Greater(t, delta[1], 0.0)
	assert.Equal(t, 0.0, delta[2])
}

func TestStepLengthMismatch(t *testing.T) {
	o := adadelta.Optimizer{Rho: adadelta.DefaultRho, Epsilon: adadelta.DefaultEpsilon}

	_, _, _, err := o.Step(adadelta.Zero(2), []float64{0, 0}, []float64{1})
	assert.ErrorIs(t, err, adadelta.ErrLengthMismatch)

	_, _, _, err = o.Step(adadelta.Zero(3), []float64{0, 0}, []float64{1, 1})
	assert.ErrorIs(t, err, adadelta.ErrLengthMismatch)
}

func TestStepMinimisesQuadratic(t *testing.T) {
	o := adadelta.Optimizer{Rho: adadelta.DefaultRho, Epsilon: adadelta.DefaultEpsilon}
	// f(w) = (w-3)², gradient 2(w-3).
	w := []float64{0}
	acc := adadelta.Zero(1)
	for range 500 {
		var err error
		w, acc, _, err = o.Step(acc, w, []float64{2 * (w[0] - 3)})
		require.NoError(t, err)
	}

	assert.InDelta(t, 3, w[0], 1e-2)
}
