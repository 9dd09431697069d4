package fl_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastRoundTrip(t *testing.T) {
	cases := []struct {
		desc      string
		broadcast fl.Broadcast
	}{
		{desc: "kickoff", broadcast: fl.Kickoff{}},
		{desc: "iterate", broadcast: fl.Iterate{W: []float64{0.5, -1}, Lambda: 0.1, Iteration: 4}},
		{desc: "halted", broadcast: fl.Halted{W: []float64{1, 10}, Reason: fl.Converged}},
		{desc: "mean y", broadcast: fl.MeanY{W: []float64{1, 10}, GlobalMeanY: 13, StatisticsPhase: 1}},
		{desc: "deferred", broadcast: fl.Deferred{Phase: fl.AwaitingMeanY, Pending: []string{"site-b"}}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			data, err := fl.EncodeBroadcast(tc.broadcast)
			require.NoError(t, err)

			got, err := fl.DecodeBroadcast(data)
			require.NoError(t, err)
			assert.Equal(t, tc.broadcast, got)
		})
	}
}

func TestCompletedKeepsNonFiniteStatistics(t *testing.T) {
	b := fl.Completed{Result: fl.Result{
		Complete: true,
		Global: fl.GlobalResult{
			Beta:       []float64{1, 10},
			RSquared:   1,
			TValues:    []float64{math.Inf(1), math.Inf(1)},
			PValues:    []float64{0, 0},
			HaltReason: fl.Converged,
		},
		PerSite: map[string]fl.SiteResult{"a": {TValues: []float64{math.Inf(-1)}}},
	}}

	data, err := fl.EncodeBroadcast(b)
	require.NoError(t, err)

	got, err := fl.DecodeBroadcast(data)
	require.NoError(t, err)
	completed, ok := got.(fl.Completed)
	require.True(t, ok)
	assert.True(t, math.IsInf(completed.Result.Global.TValues[0], 1))
	assert.True(t, math.IsInf(completed.Result.PerSite["a"].TValues[0], -1))
}

func TestContributionsRoundTrip(t *testing.T) {
	round := []fl.Contribution{
		fl.Preprocessed{SiteID: "a", NumFeatures: 3, Eta: 0.1, Count: 10, XLabels: []string{"age", "isControl"}, YLabel: "TotalGrayVol"},
		fl.Gradient{SiteID: "b", Gradient: []float64{1, 2, 3}, Objective: 4, NumFeatures: 3},
		fl.LocalStats{SiteID: "c", MeanY: 2, Count: 5, Beta: []float64{1, 1}},
		fl.FinalStats{SiteID: "d", Count: 5, SSE: 1, SST: 2, VarX: []float64{3, 4}, Original: fl.LocalStats{SiteID: "d", Beta: []float64{1, 2}}},
		fl.Failed{SiteID: "e", Error: "unrecognized feature: \"Not-A-Region\""},
	}

	data, err := fl.EncodeContributions(round)
	require.NoError(t, err)

	got, err := fl.DecodeContributions(data)
	require.NoError(t, err)
	assert.Equal(t, round, got)
}

func TestDecodeUnknownKind(t *testing.T) {
	data, err := fl.Marshal(fl.Envelope{Kind: "bogus"})
	require.NoError(t, err)

	_, err = fl.DecodeBroadcast(data)
	assert.ErrorIs(t, err, fl.ErrUnknownKind)

	_, err = fl.DecodeContribution(data)
	assert.ErrorIs(t, err, fl.ErrUnknownKind)

	// A broadcast envelope is not a contribution.
	data, err = fl.EncodeBroadcast(fl.Kickoff{})
	require.NoError(t, err)
	_, err = fl.DecodeContribution(data)
	assert.ErrorIs(t, err, fl.ErrUnknownKind)
}

func TestEncodeNil(t *testing.T) {
	_, err := fl.EncodeBroadcast(nil)
	assert.Error(t, err)

	_, err = fl.EncodeContribution(nil)
	assert.Error(t, err)
}

func TestPhaseText(t *testing.T) {
	data, err := json.Marshal(fl.AwaitingFinalStats)
	require.NoError(t, err)
	assert.JSONEq(t, `"awaiting_final_stats"`, string(data))

	var p fl.Phase
	require.NoError(t, json.Unmarshal([]byte(`"iterating"`), &p))
	assert.Equal(t, fl.Iterating, p)

	assert.ErrorIs(t, p.UnmarshalText([]byte("nope")), fl.ErrUnknownPhase)

	_, err = fl.Phase(42).MarshalText()
	assert.ErrorIs(t, err, fl.ErrUnknownPhase)
}

func TestFeatureMismatchError(t *testing.T) {
	var err error = &fl.FeatureMismatchError{SiteA: "local0", FeaturesA: 2, SiteB: "local1", FeaturesB: 3}

	assert.ErrorIs(t, err, fl.ErrValidation)
	assert.ErrorIs(t, err, fl.ErrFeatureMismatch)
	assert.Contains(t, err.Error(), `"local0" has 2`)
	assert.Contains(t, err.Error(), `"local1" has 3`)
}

func TestValidation(t *testing.T) {
	assert.NoError(t, fl.Validation(nil))

	err := fl.Validation(fl.ErrUnknownFeature)
	assert.ErrorIs(t, err, fl.ErrValidation)
	assert.ErrorIs(t, err, fl.ErrUnknownFeature)
	assert.Same(t, err, fl.Validation(err))
}
