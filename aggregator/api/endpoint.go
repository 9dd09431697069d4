package api

import (
	"context"
	"errors"

	"github.com/absmach/fedridge/aggregator"
	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func createRunEndpoint(svc aggregator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(createRunReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.CreateRun(ctx, req.RunConfig)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run:     run,
			created: true,
		}, nil
	}
}

func getRunEndpoint(svc aggregator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.GetRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run: runView(run),
		}, nil
	}
}

func listRunsEndpoint(svc aggregator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRuns(ctx, req.offset, req.limit)
		if err != nil {
			return listRunsResponse{}, err
		}
		for i := range page.Runs {
			page.Runs[i] = runView(page.Runs[i])
		}

		return listRunsResponse{
			RunPage: page,
		}, nil
	}
}

func submitRoundEndpoint(svc aggregator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitRoundReq)
		if !ok {
			return broadcastResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return broadcastResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		b, err := svc.SubmitRound(ctx, req.runID, req.contributions)
		if err != nil {
			return broadcastResponse{}, err
		}

		return broadcastResponse{
			Broadcast: b,
		}, nil
	}
}

func getResultEndpoint(svc aggregator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return resultResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return resultResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		res, err := svc.GetResult(ctx, req.id)
		if err != nil {
			return resultResponse{}, err
		}

		return resultResponse{
			Result: res,
		}, nil
	}
}

// runView drops the result from a run, since its statistics may not be
// finite. The result is served as CBOR from /runs/{runID}/result.
func runView(run aggregator.Run) aggregator.Run {
	run.State.Result = nil

	return run
}
