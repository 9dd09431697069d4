package sdk_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/fedridge"
	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/aggregator/api"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/sdk"
	"github.com/absmach/fedridge/pkg/storage"
	"github.com/absmach/fedridge/site"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSDK(t *testing.T) sdk.SDK {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := aggregator.NewService(storage.NewInMemoryStorage[aggregator.Run](), logger)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(ts.Close)

	return sdk.NewSDK(sdk.Config{AggregatorURL: ts.URL})
}

func TestRunOverSDK(t *testing.T) {
	s := newSDK(t)

	run, err := s.CreateRun(aggregator.RunConfig{
		Name:   "line",
		Config: aggregator.Config{InitialW: []float64{0, 0}},
		Sites:  []string{"site-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "line", run.Name)
	assert.Equal(t, aggregator.Running, run.Status)

	runner, err := site.NewRunner("site-a", site.MatrixSource{
		Rows: [][]float64{{1}, {2}, {3}, {4}, {5}},
		Y:    []float64{11, 12, 13, 14, 15},
	}, site.Config{})
	require.NoError(t, err)

	var b fl.Broadcast = fl.Kickoff{}
	for b.Kind() != fl.KindCompleted {
		c, err := runner.Step(context.Background(), b)
		require.NoError(t, err)
		require.NotNil(t, c)

		b, err = s.SubmitRound(run.ID, []fl.Contribution{c})
		require.NoError(t, err)
	}

	res, err := s.GetResult(run.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Converged, res.Global.HaltReason)
	assert.InDeltaSlice(t, []float64{1, 10}, res.Global.Beta, 1e-3)
	assert.Contains(t, res.PerSite, "site-a")

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Completed, got.Status)

	page, err := s.ListRuns(0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)
	require.Len(t, page.Runs, 1)
	assert.Equal(t, run.ID, page.Runs[0].ID)
}

func TestSDKErrors(t *testing.T) {
	s := newSDK(t)

	run, err := s.CreateRun(aggregator.RunConfig{Sites: []string{"site-a"}})
	require.NoError(t, err)

	cases := []struct {
		desc   string
		call   func() error
		status int
	}{
		{
			desc: "missing run",
			call: func() error {
				_, err := s.GetRun("missing")
				return err
			},
			status: http.StatusNotFound,
		},
		{
			desc: "result before completion",
			call: func() error {
				_, err := s.GetResult(run.ID)
				return err
			},
			status: http.StatusConflict,
		},
		{
			desc: "limit above maximum",
			call: func() error {
				_, err := s.ListRuns(0, 1000)
				return err
			},
			status: http.StatusBadRequest,
		},
		{
			desc: "negative rho",
			call: func() error {
				_, err := s.CreateRun(aggregator.RunConfig{Config: aggregator.Config{Rho: -1}})
				return err
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.call()
			var sdkErr *sdk.Error
			require.ErrorAs(t, err, &sdkErr)
			assert.Equal(t, tc.status, sdkErr.StatusCode)
			assert.NotEmpty(t, sdkErr.Message)
		})
	}
}

func TestSimulateAgainstRemoteAggregator(t *testing.T) {
	s := newSDK(t)
	cfg := &fedridge.Config{
		Run: fedridge.RunConfig{Name: "remote", InitialW: []float64{0, 0}},
		Sites: []fedridge.SiteConfig{
			{ID: "site-a", Rows: [][]float64{{1}, {2}, {3}}, Y: []float64{3.1, 4.9, 7.2}},
			{ID: "site-b", Rows: [][]float64{{4}, {5}, {6}}, Y: []float64{8.8, 11.1, 13.0}},
		},
	}

	run, res, err := fedridge.Simulate(context.Background(), cfg, sdk.NewService(s), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, aggregator.Completed, run.Status)
	assert.InDeltaSlice(t, []float64{1.99143, 1.04667}, res.Global.Beta, 1e-3)

	remote, err := s.GetResult(run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Global.Beta, remote.Global.Beta)
}
