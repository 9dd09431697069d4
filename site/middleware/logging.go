package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/site"
)

var _ site.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    site.Service
}

func Logging(logger *slog.Logger, svc site.Service) site.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) ID() string {
	return lm.svc.ID()
}

func (lm *loggingMiddleware) Step(ctx context.Context, runID string, b fl.Broadcast) (resp fl.Contribution, err error) {
	defer func(begin time.Time) {
		step := []any{
			slog.String("run_id", runID),
			slog.String("site_id", lm.svc.ID()),
		}
		if b != nil {
			step = append(step, slog.String("broadcast", string(b.Kind())))
		}
		if resp != nil {
			step = append(step, slog.String("contribution", string(resp.Kind())))
		}
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("step", step...),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Site step failed", args...)

			return
		}
		lm.logger.Debug("Site step completed successfully", args...)
	}(time.Now())

	return lm.svc.Step(ctx, runID, b)
}

func (lm *loggingMiddleware) Result(ctx context.Context, runID string) (resp fl.Result, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("run_id", runID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get site result failed", args...)

			return
		}
		lm.logger.Info("Get site result completed successfully", args...)
	}(time.Now())

	return lm.svc.Result(ctx, runID)
}
