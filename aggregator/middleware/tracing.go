package middleware

import (
	"context"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ aggregator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    aggregator.Service
}

func Tracing(tracer trace.Tracer, svc aggregator.Service) aggregator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) CreateRun(ctx context.Context, cfg aggregator.RunConfig) (aggregator.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "create-run", trace.WithAttributes(
		attribute.String("name", cfg.Name),
		attribute.StringSlice("sites", cfg.Sites),
	))
	defer span.End()

	return tm.svc.CreateRun(ctx, cfg)
}

func (tm *tracing) GetRun(ctx context.Context, runID string) (aggregator.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "get-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.GetRun(ctx, runID)
}

func (tm *tracing) ListRuns(ctx context.Context, offset, limit uint64) (aggregator.RunPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-runs", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRuns(ctx, offset, limit)
}

func (tm *tracing) SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (fl.Broadcast, error) {
	ctx, span := tm.tracer.Start(ctx, "submit-round", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("contributions", len(contributions)),
	))
	defer span.End()

	return tm.svc.SubmitRound(ctx, runID, contributions)
}

func (tm *tracing) GetResult(ctx context.Context, runID string) (fl.Result, error) {
	ctx, span := tm.tracer.Start(ctx, "get-result", trace.WithAttributes(
		attribute.String("run_id", runID),
	))
	defer span.End()

	return tm.svc.GetResult(ctx, runID)
}
