package api

import (
	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/api"
	"github.com/absmach/fedridge/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type createRunReq struct {
	aggregator.RunConfig `json:",inline"`
}

func (req *createRunReq) validate() error {
	for _, site := range req.Sites {
		if site == "" {
			return apiutil.ErrMissingID
		}
	}

	return req.Config.Validate()
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}

type submitRoundReq struct {
	runID         string
	contributions []fl.Contribution
}

func (req *submitRoundReq) validate() error {
	if req.runID == "" {
		return apiutil.ErrMissingID
	}
	if len(req.contributions) == 0 {
		return fl.ErrNoContributions
	}

	return nil
}
