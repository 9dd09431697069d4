package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
)

var _ aggregator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    aggregator.Service
}

func Logging(logger *slog.Logger, svc aggregator.Service) aggregator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) CreateRun(ctx context.Context, cfg aggregator.RunConfig) (resp aggregator.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
				slog.Int("max_iterations", cfg.Config.MaxIterations),
				slog.Int("expected_sites", len(cfg.Sites)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Create run failed", args...)

			return
		}
		lm.logger.Info("Create run completed successfully", args...)
	}(time.Now())

	return lm.svc.CreateRun(ctx, cfg)
}

func (lm *loggingMiddleware) GetRun(ctx context.Context, runID string) (resp aggregator.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.String("status", string(resp.Status)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get run failed", args...)

			return
		}
		lm.logger.Info("Get run completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRun(ctx, runID)
}

func (lm *loggingMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (resp aggregator.RunPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
			slog.Uint64("total", resp.Total),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List runs failed", args...)

			return
		}
		lm.logger.Info("List runs completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRuns(ctx, offset, limit)
}

func (lm *loggingMiddleware) SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (resp fl.Broadcast, err error) {
	defer func(begin time.Time) {
		round := []any{
			slog.String("run_id", runID),
			slog.Int("contributions", len(contributions)),
		}
		switch b := resp.(type) {
		case fl.Iterate:
			round = append(round, slog.String("broadcast", string(b.Kind())), slog.Int("iteration", b.Iteration))
		case fl.Halted:
			round = append(round, slog.String("broadcast", string(b.Kind())), slog.String("halt_reason", string(b.Reason)))
		case fl.Deferred:
			round = append(round, slog.String("broadcast", string(b.Kind())), slog.Any("pending", b.Pending))
		case fl.Broadcast:
			round = append(round, slog.String("broadcast", string(b.Kind())))
		}
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round", round...),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit round failed", args...)

			return
		}
		lm.logger.Debug("Submit round completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitRound(ctx, runID, contributions)
}

func (lm *loggingMiddleware) GetResult(ctx context.Context, runID string) (resp fl.Result, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("result",
				slog.String("run_id", runID),
				slog.String("halt_reason", string(resp.Global.HaltReason)),
				slog.Float64("r_squared", resp.Global.RSquared),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get result failed", args...)

			return
		}
		lm.logger.Info("Get result completed successfully", args...)
	}(time.Now())

	return lm.svc.GetResult(ctx, runID)
}
