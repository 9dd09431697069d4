// Package aggregator drives the cross-site side of a federated ridge
// regression run: it sums site gradients, moves the shared weights with
// ADADELTA until a halting condition, then reduces site statistics into the
// global result.
package aggregator

import (
	"context"
	"time"

	"github.com/absmach/fedridge/pkg/fl"
)

type Status string

const (
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// RunConfig describes a run to create.
type RunConfig struct {
	Name   string `json:"name,omitempty"`
	Config Config `json:"config"`
	// Sites lists the participants a transport should wait for before
	// submitting a round. Empty means whatever arrives.
	Sites []string `json:"sites,omitempty"`
}

type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Config    Config    `json:"config"`
	Sites     []string  `json:"sites,omitempty"`
	State     State     `json:"state"`
	Rounds    int       `json:"rounds"`
	Deferrals int       `json:"deferrals"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RunPage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Runs   []Run  `json:"runs"`
}

type Service interface {
	CreateRun(ctx context.Context, cfg RunConfig) (Run, error)
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, offset, limit uint64) (RunPage, error)
	// SubmitRound hands every site's contribution for the current round to
	// the run and returns the broadcast for the sites. Rounds of one run
	// are applied one at a time. A validation error fails the run.
	SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (fl.Broadcast, error)
	GetResult(ctx context.Context, runID string) (fl.Result, error)
}
