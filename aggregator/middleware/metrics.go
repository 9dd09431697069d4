package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ aggregator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     aggregator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc aggregator.Service) aggregator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) CreateRun(ctx context.Context, cfg aggregator.RunConfig) (aggregator.Run, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "create-run").Add(1)
		mm.latency.With("method", "create-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CreateRun(ctx, cfg)
}

func (mm *metricsMiddleware) GetRun(ctx context.Context, runID string) (aggregator.Run, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-run").Add(1)
		mm.latency.With("method", "get-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRun(ctx, runID)
}

func (mm *metricsMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (aggregator.RunPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-runs").Add(1)
		mm.latency.With("method", "list-runs").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRuns(ctx, offset, limit)
}

func (mm *metricsMiddleware) SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (fl.Broadcast, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-round").Add(1)
		mm.latency.With("method", "submit-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitRound(ctx, runID, contributions)
}

func (mm *metricsMiddleware) GetResult(ctx context.Context, runID string) (fl.Result, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-result").Add(1)
		mm.latency.With("method", "get-result").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetResult(ctx, runID)
}
