// Package sdk is a client for the aggregator HTTP API.
package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
)

const (
	CTJSON string = "application/json"
	CTCBOR string = "application/cbor"
)

type SDK interface {
	// CreateRun creates a new run.
	//
	// example:
	//  run, _ := sdk.CreateRun(aggregator.RunConfig{
	//    Name:  "thickness",
	//    Sites: []string{"site-a", "site-b"},
	//  })
	//  fmt.Println(run)
	CreateRun(cfg aggregator.RunConfig) (aggregator.Run, error)

	// GetRun gets a run by id.
	//
	// example:
	//  run, _ := sdk.GetRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(run)
	GetRun(id string) (aggregator.Run, error)

	// ListRuns lists runs.
	//
	// example:
	//  page, _ := sdk.ListRuns(0, 10)
	//  fmt.Println(page)
	ListRuns(offset, limit uint64) (aggregator.RunPage, error)

	// SubmitRound submits one contribution per site and returns the
	// broadcast for the next round.
	//
	// example:
	//  b, _ := sdk.SubmitRound("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", contributions)
	//  fmt.Println(b.Kind())
	SubmitRound(id string, contributions []fl.Contribution) (fl.Broadcast, error)

	// GetResult gets the result of a completed run.
	//
	// example:
	//  res, _ := sdk.GetResult("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(res.Global.Beta)
	GetResult(id string) (fl.Result, error)
}

type fedSDK struct {
	aggregatorURL string
	client        *http.Client
}

type Config struct {
	AggregatorURL   string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		aggregatorURL: cfg.AggregatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

// Error is returned when the aggregator answers with an unexpected status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected response code: %d", e.StatusCode)
	}

	return fmt.Sprintf("unexpected response code: %d: %s", e.StatusCode, e.Message)
}

func (sdk *fedSDK) processRequest(method, reqURL, contentType string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", contentType)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)

		return []byte{}, &Error{StatusCode: resp.StatusCode, Message: e.Error}
	}

	return body, nil
}
