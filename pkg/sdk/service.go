package sdk

import (
	"context"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
)

var _ aggregator.Service = (*service)(nil)

type service struct {
	sdk SDK
}

// NewService exposes a remote aggregator as an aggregator.Service so that
// in-process sites can be driven against it.
func NewService(s SDK) aggregator.Service {
	return &service{sdk: s}
}

func (s *service) CreateRun(ctx context.Context, cfg aggregator.RunConfig) (aggregator.Run, error) {
	if err := ctx.Err(); err != nil {
		return aggregator.Run{}, err
	}

	return s.sdk.CreateRun(cfg)
}

func (s *service) GetRun(ctx context.Context, runID string) (aggregator.Run, error) {
	if err := ctx.Err(); err != nil {
		return aggregator.Run{}, err
	}

	return s.sdk.GetRun(runID)
}

func (s *service) ListRuns(ctx context.Context, offset, limit uint64) (aggregator.RunPage, error) {
	if err := ctx.Err(); err != nil {
		return aggregator.RunPage{}, err
	}

	return s.sdk.ListRuns(offset, limit)
}

func (s *service) SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (fl.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.sdk.SubmitRound(runID, contributions)
}

func (s *service) GetResult(ctx context.Context, runID string) (fl.Result, error) {
	if err := ctx.Err(); err != nil {
		return fl.Result{}, err
	}

	return s.sdk.GetResult(runID)
}
