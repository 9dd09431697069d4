package aggregator_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/absmach/fedridge/aggregator"
	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, opts ...aggregator.ServiceOption) aggregator.Service {
	t.Helper()

	return aggregator.NewService(storage.NewInMemoryStorage[aggregator.Run](), slog.Default(), opts...)
}

func submitAll(t *testing.T, svc aggregator.Service, runID string, ds []dataset) fl.Result {
	t.Helper()

	ctx := context.Background()
	b, err := svc.SubmitRound(ctx, runID, preprocess(ds, 0))
	require.NoError(t, err)
	for range 1000 {
		if c, ok := b.(fl.Completed); ok {
			return c.Result
		}
		b, err = svc.SubmitRound(ctx, runID, respond(t, ds, b, 0))
		require.NoError(t, err)
	}
	t.Fatal("run did not complete")

	return fl.Result{}
}

func TestServiceRunToCompletion(t *testing.T) {
	ctx := context.Background()
	archive, err := fl.NewArchive(t.TempDir())
	require.NoError(t, err)
	svc := newService(t, aggregator.WithArchive(archive))

	run, err := svc.CreateRun(ctx, aggregator.RunConfig{
		Name:   "line",
		Config: aggregator.Config{InitialW: []float64{0, 0}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, aggregator.Running, run.Status)
	assert.Equal(t, fl.Init, run.State.Phase)

	_, err = svc.GetResult(ctx, run.ID)
	assert.ErrorIs(t, err, aggregator.ErrResultNotReady)

	result := submitAll(t, svc, run.ID, []dataset{lineSite})
	assert.InDeltaSlice(t, []float64{1, 10}, result.Global.Beta, 1e-3)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Completed, got.Status)
	assert.Equal(t, result.Global.Iterations+3, got.Rounds)

	stored, err := svc.GetResult(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, result, stored)

	archived, err := archive.Load(run.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Global.Beta, archived.Global.Beta)

	_, err = svc.SubmitRound(ctx, run.ID, preprocess([]dataset{lineSite}, 0))
	assert.ErrorIs(t, err, fl.ErrRunCompleted)
}

func TestServiceValidationFailsRun(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	run, err := svc.CreateRun(ctx, aggregator.RunConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, run.Name)

	_, err = svc.SubmitRound(ctx, run.ID, []fl.Contribution{
		fl.Preprocessed{SiteID: "local0", NumFeatures: 2},
		fl.Preprocessed{SiteID: "local1", NumFeatures: 3},
	})
	assert.ErrorIs(t, err, fl.ErrValidation)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Failed, got.Status)
	assert.Contains(t, got.Error, "local1")

	_, err = svc.SubmitRound(ctx, run.ID, preprocess([]dataset{lineSite}, 0))
	assert.ErrorIs(t, err, aggregator.ErrRunFailed)

	_, err = svc.GetResult(ctx, run.ID)
	assert.ErrorIs(t, err, aggregator.ErrRunFailed)
}

func TestServiceTransientErrorKeepsRun(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	run, err := svc.CreateRun(ctx, aggregator.RunConfig{Config: aggregator.Config{InitialW: []float64{0, 0}}})
	require.NoError(t, err)

	_, err = svc.SubmitRound(ctx, run.ID, nil)
	assert.ErrorIs(t, err, fl.ErrNoContributions)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Running, got.Status)
	assert.Equal(t, 0, got.Rounds)
}

func TestServiceCountsDeferrals(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sites := []dataset{lineDataset("a", 6, 0), lineDataset("b", 6, 1)}

	run, err := svc.CreateRun(ctx, aggregator.RunConfig{Config: aggregator.Config{InitialW: []float64{2, 1}, MaxIterations: 1}})
	require.NoError(t, err)

	b, err := svc.SubmitRound(ctx, run.ID, preprocess(sites, 0))
	require.NoError(t, err)
	b, err = svc.SubmitRound(ctx, run.ID, respond(t, sites, b, 0))
	require.NoError(t, err)
	halted, ok := b.(fl.Halted)
	require.True(t, ok, "got %T", b)

	lagging := []fl.Contribution{localStats(t, sites[0], 0), gradients(t, sites[1:], halted.W, 0)[0]}
	b, err = svc.SubmitRound(ctx, run.ID, lagging)
	require.NoError(t, err)
	assert.Equal(t, fl.Deferred{Phase: fl.AwaitingMeanY, Pending: []string{"b"}}, b)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Deferrals)
	assert.Equal(t, fl.AwaitingMeanY, got.State.Phase)

	b, err = svc.SubmitRound(ctx, run.ID, respond(t, sites, halted, 0))
	require.NoError(t, err)
	_, ok = b.(fl.MeanY)
	assert.True(t, ok, "got %T", b)
}

func TestServiceSerialisesRounds(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	run, err := svc.CreateRun(ctx, aggregator.RunConfig{Config: aggregator.Config{InitialW: []float64{0, 0}}})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SubmitRound(ctx, run.ID, preprocess([]dataset{lineSite}, 0)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Only the first preprocessing round is accepted; the rest arrive while
	// the run is already iterating.
	assert.Equal(t, 1, succeeded)
	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Running, got.Status)
	assert.Equal(t, fl.Iterating, got.State.Phase)
	assert.Equal(t, 1, got.Rounds)
}

func TestServiceGetAndList(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	for range 3 {
		_, err := svc.CreateRun(ctx, aggregator.RunConfig{})
		require.NoError(t, err)
	}

	page, err := svc.ListRuns(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	assert.Len(t, page.Runs, 2)

	_, err = svc.GetRun(ctx, "")
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyKey)
	_, err = svc.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	_, err = svc.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = svc.CreateRun(ctx, aggregator.RunConfig{Config: aggregator.Config{Rho: 1.5}})
	assert.ErrorIs(t, err, fl.ErrValidation)
}

func TestServiceResultFromArchive(t *testing.T) {
	ctx := context.Background()
	archive, err := fl.NewArchive(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, archive.Save("old-run", fl.Result{Complete: true, Global: fl.GlobalResult{Beta: []float64{1, 2}}}))

	svc := newService(t, aggregator.WithArchive(archive))
	res, err := svc.GetResult(ctx, "old-run")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, res.Global.Beta)
}
