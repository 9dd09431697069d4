package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
)

const runsEndpoint = "/runs"

func (sdk *fedSDK) CreateRun(cfg aggregator.RunConfig) (aggregator.Run, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return aggregator.Run{}, err
	}

	url := sdk.aggregatorURL + runsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, CTJSON, data, http.StatusCreated)
	if err != nil {
		return aggregator.Run{}, err
	}

	var r aggregator.Run
	if err := json.Unmarshal(body, &r); err != nil {
		return aggregator.Run{}, err
	}

	return r, nil
}

func (sdk *fedSDK) GetRun(id string) (aggregator.Run, error) {
	url := sdk.aggregatorURL + runsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return aggregator.Run{}, err
	}

	var r aggregator.Run
	if err := json.Unmarshal(body, &r); err != nil {
		return aggregator.Run{}, err
	}

	return r, nil
}

func (sdk *fedSDK) ListRuns(offset, limit uint64) (aggregator.RunPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.aggregatorURL + runsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return aggregator.RunPage{}, err
	}

	var p aggregator.RunPage
	if err := json.Unmarshal(body, &p); err != nil {
		return aggregator.RunPage{}, err
	}

	return p, nil
}

func (sdk *fedSDK) SubmitRound(id string, contributions []fl.Contribution) (fl.Broadcast, error) {
	data, err := fl.EncodeContributions(contributions)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/runs/%s/rounds", sdk.aggregatorURL, id)

	body, err := sdk.processRequest(http.MethodPost, url, CTCBOR, data, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return fl.DecodeBroadcast(body)
}

func (sdk *fedSDK) GetResult(id string) (fl.Result, error) {
	url := fmt.Sprintf("%s/runs/%s/result", sdk.aggregatorURL, id)

	body, err := sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK)
	if err != nil {
		return fl.Result{}, err
	}

	var res fl.Result
	if err := fl.Unmarshal(body, &res); err != nil {
		return fl.Result{}, err
	}

	return res, nil
}
