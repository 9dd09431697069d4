// Package coordinator drives a run in process: it delivers every broadcast
// to all sites, waits for all of them, and submits the round to the
// aggregator until the run completes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxDeferrals = 3

var (
	ErrNoSites          = errors.New("coordinator has no sites")
	ErrTooManyDeferrals = errors.New("sites kept a round deferred")
	ErrRoundLimit       = errors.New("run did not complete within the round limit")
)

// Site answers broadcasts for one run.
type Site interface {
	ID() string
	Step(ctx context.Context, b fl.Broadcast) (fl.Contribution, error)
}

type Coordinator struct {
	svc          aggregator.Service
	sites        []Site
	maxDeferrals int
	maxRounds    int
	logger       *slog.Logger
}

type Option func(*Coordinator)

// WithMaxDeferrals bounds how many times in a row a round may be deferred.
func WithMaxDeferrals(n int) Option {
	return func(c *Coordinator) {
		c.maxDeferrals = n
	}
}

// WithMaxRounds bounds the rounds of a run. Zero means no bound.
func WithMaxRounds(n int) Option {
	return func(c *Coordinator) {
		c.maxRounds = n
	}
}

func New(svc aggregator.Service, sites []Site, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		svc:          svc,
		sites:        sites,
		maxDeferrals: DefaultMaxDeferrals,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run drives runID from kickoff to completion and returns the result. A
// site or aggregator error aborts the run.
func (c *Coordinator) Run(ctx context.Context, runID string) (fl.Result, error) {
	if len(c.sites) == 0 {
		return fl.Result{}, ErrNoSites
	}

	var (
		b         fl.Broadcast = fl.Kickoff{}
		deferrals int
	)
	for round := 1; c.maxRounds == 0 || round <= c.maxRounds; round++ {
		cs, err := c.collect(ctx, b)
		if err != nil {
			c.fail(ctx, runID, cs)

			return fl.Result{}, err
		}

		next, err := c.svc.SubmitRound(ctx, runID, cs)
		if err != nil {
			return fl.Result{}, fmt.Errorf("round %d: %w", round, err)
		}

		switch n := next.(type) {
		case fl.Completed:
			c.logger.Info("Run completed",
				slog.String("run_id", runID),
				slog.Int("rounds", round),
				slog.String("halt_reason", string(n.Result.Global.HaltReason)),
			)
			if _, err := c.collect(ctx, n); err != nil {
				return fl.Result{}, err
			}

			return n.Result, nil
		case fl.Deferred:
			deferrals++
			if deferrals > c.maxDeferrals {
				return fl.Result{}, fmt.Errorf("%w: %s waiting for %v", ErrTooManyDeferrals, n.Phase, n.Pending)
			}
			c.logger.Warn("Round deferred",
				slog.String("run_id", runID),
				slog.String("phase", n.Phase.String()),
				slog.Any("pending", n.Pending),
			)
		default:
			deferrals = 0
			b = next
		}
	}

	return fl.Result{}, fmt.Errorf("%w: %d rounds", ErrRoundLimit, c.maxRounds)
}

// collect delivers b to every site in parallel and returns their
// contributions in site order. Sites that have nothing to say are skipped.
// On error only the Failed reports of sites with a fatal error are returned.
func (c *Coordinator) collect(ctx context.Context, b fl.Broadcast) ([]fl.Contribution, error) {
	out := make([]fl.Contribution, len(c.sites))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range c.sites {
		g.Go(func() error {
			contribution, err := s.Step(gctx, b)
			if err != nil {
				if errors.Is(err, fl.ErrValidation) {
					out[i] = fl.Failed{SiteID: s.ID(), Error: err.Error()}
				}

				return fmt.Errorf("site %q: %w", s.ID(), err)
			}
			out[i] = contribution

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var failed []fl.Contribution
		for _, contribution := range out {
			if f, ok := contribution.(fl.Failed); ok {
				failed = append(failed, f)
			}
		}

		return failed, err
	}

	cs := make([]fl.Contribution, 0, len(out))
	for _, contribution := range out {
		if contribution != nil {
			cs = append(cs, contribution)
		}
	}

	return cs, nil
}

// fail reports fatal site errors to the aggregator so the run is stored as
// failed.
func (c *Coordinator) fail(ctx context.Context, runID string, failed []fl.Contribution) {
	if len(failed) == 0 {
		return
	}

	_, err := c.svc.SubmitRound(context.WithoutCancel(ctx), runID, failed)
	if err != nil && !errors.Is(err, fl.ErrValidation) {
		c.logger.Warn("Failed to report site failure",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}
}
