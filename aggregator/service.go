package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/storage"
	"github.com/google/uuid"
)

var namegen = namegenerator.NewGenerator()

type service struct {
	runs    storage.Storage[Run]
	archive *fl.Archive
	logger  *slog.Logger
	rand    *rand.Rand

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type ServiceOption func(*service)

// WithArchive stores every completed result in a.
func WithArchive(a *fl.Archive) ServiceOption {
	return func(s *service) {
		s.archive = a
	}
}

// WithRandSource draws the random initial weights of every run from r.
// Runs submitted concurrently share r, so it is meant for tests.
func WithRandSource(r *rand.Rand) ServiceOption {
	return func(s *service) {
		s.rand = r
	}
}

func NewService(runs storage.Storage[Run], logger *slog.Logger, opts ...ServiceOption) Service {
	svc := &service{
		runs:   runs,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

func (svc *service) CreateRun(ctx context.Context, cfg RunConfig) (Run, error) {
	if err := cfg.Config.Validate(); err != nil {
		return Run{}, err
	}

	name := cfg.Name
	if name == "" {
		name = namegen.Generate()
	}

	now := time.Now().UTC()
	run := Run{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    Running,
		Config:    cfg.Config,
		Sites:     cfg.Sites,
		State:     State{Phase: fl.Init},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := svc.runs.Create(ctx, run.ID, run); err != nil {
		return Run{}, err
	}

	return run, nil
}

func (svc *service) GetRun(ctx context.Context, runID string) (Run, error) {
	if runID == "" {
		return Run{}, pkgerrors.ErrEmptyKey
	}

	return svc.runs.Get(ctx, runID)
}

func (svc *service) ListRuns(ctx context.Context, offset, limit uint64) (RunPage, error) {
	runs, total, err := svc.runs.List(ctx, offset, limit)
	if err != nil {
		return RunPage{}, err
	}

	return RunPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Runs:   runs,
	}, nil
}

func (svc *service) SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (fl.Broadcast, error) {
	if runID == "" {
		return nil, pkgerrors.ErrEmptyKey
	}

	lock := svc.lock(runID)
	lock.Lock()
	defer lock.Unlock()

	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case Failed:
		return nil, fmt.Errorf("%w: %s", ErrRunFailed, run.Error)
	case Completed:
		return nil, fl.ErrRunCompleted
	}

	opts := []Option{}
	if svc.rand != nil {
		opts = append(opts, WithRand(svc.rand))
	}

	next, broadcast, err := NewRunner(run.Config, opts...).Step(ctx, run.State, contributions)
	if err != nil {
		if !errors.Is(err, fl.ErrValidation) {
			return nil, err
		}

		run.Status = Failed
		run.Error = err.Error()
		run.UpdatedAt = time.Now().UTC()
		if uerr := svc.runs.Update(ctx, runID, run); uerr != nil {
			return nil, errors.Join(err, uerr)
		}

		return nil, err
	}

	run.Rounds++
	if _, ok := broadcast.(fl.Deferred); ok {
		run.Deferrals++
	}
	run.State = next
	run.UpdatedAt = time.Now().UTC()

	if completed, ok := broadcast.(fl.Completed); ok {
		run.Status = Completed
		if svc.archive != nil {
			if err := svc.archive.Save(run.ID, completed.Result); err != nil {
				svc.logger.Warn("Failed to archive run result",
					slog.String("run_id", run.ID),
					slog.Any("error", err),
				)
			}
		}
	}

	if err := svc.runs.Update(ctx, runID, run); err != nil {
		return nil, err
	}

	return broadcast, nil
}

func (svc *service) GetResult(ctx context.Context, runID string) (fl.Result, error) {
	run, err := svc.GetRun(ctx, runID)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound) && svc.archive != nil:
		res, aerr := svc.archive.Load(runID)
		if aerr != nil {
			return fl.Result{}, err
		}

		return res, nil
	case err != nil:
		return fl.Result{}, err
	}

	if run.Status == Failed {
		return fl.Result{}, fmt.Errorf("%w: %s", ErrRunFailed, run.Error)
	}
	if run.State.Result == nil {
		return fl.Result{}, fmt.Errorf("%w: run is %s", ErrResultNotReady, run.State.Phase)
	}

	return *run.State.Result, nil
}

func (svc *service) lock(runID string) *sync.Mutex {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	l, ok := svc.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		svc.locks[runID] = l
	}

	return l
}
