package site

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	"github.com/absmach/fedridge/pkg/fl"
)

var _ Service = (*service)(nil)

type service struct {
	id     string
	source Source
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	runners map[string]*Runner
	results map[string]fl.Result
}

// NewService serves every run from the same source. Each run gets its own
// Runner, so a run never sees another run's state.
func NewService(id string, source Source, cfg Config, logger *slog.Logger) (Service, error) {
	if _, err := NewRunner(id, source, cfg); err != nil {
		return nil, err
	}

	return &service{
		id:      id,
		source:  source,
		cfg:     cfg,
		logger:  logger,
		runners: make(map[string]*Runner),
		results: make(map[string]fl.Result),
	}, nil
}

func (svc *service) ID() string {
	return svc.id
}

func (svc *service) Step(ctx context.Context, runID string, b fl.Broadcast) (fl.Contribution, error) {
	if runID == "" {
		return nil, pkgerrors.ErrEmptyKey
	}

	if c, ok := b.(fl.Completed); ok {
		svc.complete(runID, c.Result)

		return nil, nil
	}

	r, err := svc.runner(runID)
	if err != nil {
		return nil, err
	}

	return r.Step(ctx, b)
}

func (svc *service) Result(_ context.Context, runID string) (fl.Result, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	res, ok := svc.results[runID]
	if !ok {
		return fl.Result{}, fmt.Errorf("%w: result of run %s", pkgerrors.ErrNotFound, runID)
	}

	return res, nil
}

func (svc *service) runner(runID string) (*Runner, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if r, ok := svc.runners[runID]; ok {
		return r, nil
	}
	r, err := NewRunner(svc.id, svc.source, svc.cfg)
	if err != nil {
		return nil, err
	}
	svc.runners[runID] = r

	return r, nil
}

func (svc *service) complete(runID string, res fl.Result) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	delete(svc.runners, runID)
	svc.results[runID] = res

	if own, ok := res.PerSite[svc.id]; ok {
		svc.logger.Info("Run completed",
			slog.String("run_id", runID),
			slog.Float64("global_r_squared", res.Global.RSquared),
			slog.Float64("site_r_squared", own.RSquared),
			slog.Int("site_degrees_of_freedom", own.DegreesOfFreedom),
		)
	}
}
