package api

import (
	"net/http"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/api"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*runResponse)(nil)
	_ supermq.Response = (*listRunsResponse)(nil)
	_ api.CBORResponse = (*broadcastResponse)(nil)
	_ api.CBORResponse = (*resultResponse)(nil)
)

type runResponse struct {
	aggregator.Run
	created bool
}

func (r runResponse) Code() int {
	if r.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (r runResponse) Headers() map[string]string {
	if r.created {
		return map[string]string{
			"Location": "/runs/" + r.ID,
		}
	}

	return map[string]string{}
}

func (r runResponse) Empty() bool {
	return false
}

type listRunsResponse struct {
	aggregator.RunPage
}

func (l listRunsResponse) Code() int {
	return http.StatusOK
}

func (l listRunsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRunsResponse) Empty() bool {
	return false
}

type broadcastResponse struct {
	fl.Broadcast
}

func (b broadcastResponse) Code() int {
	return http.StatusOK
}

func (b broadcastResponse) Headers() map[string]string {
	return map[string]string{
		"X-Broadcast-Kind": string(b.Kind()),
	}
}

func (b broadcastResponse) Empty() bool {
	return false
}

func (b broadcastResponse) CBOR() ([]byte, error) {
	return fl.EncodeBroadcast(b.Broadcast)
}

type resultResponse struct {
	fl.Result
}

func (r resultResponse) Code() int {
	return http.StatusOK
}

func (r resultResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r resultResponse) Empty() bool {
	return false
}

func (r resultResponse) CBOR() ([]byte, error) {
	return fl.Marshal(r.Result)
}
