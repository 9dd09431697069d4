package site

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/regression"
)

// Runner computes one site's contributions for a single run. The dataset is
// built on first use and kept; nothing else survives between rounds.
type Runner struct {
	id     string
	cfg    Config
	source Source

	mu      sync.Mutex
	loaded  bool
	data    Dataset
	dataErr error
}

func NewRunner(id string, source Source, cfg Config) (*Runner, error) {
	if id == "" {
		return nil, fl.Validation(fmt.Errorf("%w: empty site ID", fl.ErrUnknownSite))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		id:     id,
		cfg:    cfg.withDefaults(),
		source: source,
	}, nil
}

func (r *Runner) ID() string {
	return r.id
}

// Step answers b. Completed yields a nil contribution.
func (r *Runner) Step(ctx context.Context, b fl.Broadcast) (fl.Contribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch b := b.(type) {
	case fl.Kickoff:
		return r.preprocess(ctx)
	case fl.Iterate:
		return r.gradient(ctx, b)
	case fl.Halted:
		return r.localStats(ctx)
	case fl.MeanY:
		return r.finalStats(ctx, b)
	case fl.Completed:
		return nil, nil
	case nil:
		return nil, fmt.Errorf("%w: nil broadcast", fl.ErrUnknownKind)
	default:
		return nil, fmt.Errorf("%w: site cannot answer %s", fl.ErrUnexpectedKind, b.Kind())
	}
}

// dataset builds the dataset once. Cancellation of the round that first
// asked for it is not remembered.
func (r *Runner) dataset(ctx context.Context) (Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.data, r.dataErr
	}

	d, err := r.source.Dataset(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Dataset{}, err
	}
	r.data, r.dataErr, r.loaded = d, err, true

	return r.data, r.dataErr
}

func (r *Runner) preprocess(ctx context.Context) (fl.Contribution, error) {
	d, err := r.dataset(ctx)
	if err != nil {
		return nil, err
	}

	return fl.Preprocessed{
		SiteID:      r.id,
		NumFeatures: d.NumFeatures(),
		Eta:         r.cfg.Eta,
		Lambda:      r.cfg.Lambda,
		Count:       d.Count(),
		XLabels:     slices.Clone(d.XLabels),
		YLabel:      d.YLabel,
	}, nil
}

func (r *Runner) gradient(ctx context.Context, b fl.Iterate) (fl.Contribution, error) {
	d, err := r.dataset(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.checkWeights(d, b.W); err != nil {
		return nil, err
	}

	grad, err := regression.Gradient(b.W, d.X, d.Y, b.Lambda)
	if err != nil {
		return nil, err
	}
	obj, err := regression.Objective(b.W, d.X, d.Y, b.Lambda)
	if err != nil {
		return nil, err
	}

	return fl.Gradient{
		SiteID:      r.id,
		Gradient:    grad,
		Objective:   obj,
		NumFeatures: d.NumFeatures(),
	}, nil
}

// localStats fits the site's data alone and tests the fit against the local
// mean of y.
func (r *Runner) localStats(ctx context.Context) (fl.Contribution, error) {
	d, err := r.dataset(ctx)
	if err != nil {
		return nil, err
	}

	return r.original(d)
}

func (r *Runner) original(d Dataset) (fl.LocalStats, error) {
	beta, err := r.fit(d)
	if err != nil {
		return fl.LocalStats{}, fl.Validation(err)
	}

	meanY := regression.Mean(d.Y)
	stats, err := statistics(d, beta, meanY)
	if err != nil {
		return fl.LocalStats{}, err
	}

	return fl.LocalStats{
		SiteID:   r.id,
		MeanY:    meanY,
		Count:    d.Count(),
		Beta:     beta,
		Original: stats,
	}, nil
}

// finalStats tests the shared weights on the site's data against the global
// mean of y and reports the sums the aggregator reduces.
func (r *Runner) finalStats(ctx context.Context, b fl.MeanY) (fl.Contribution, error) {
	d, err := r.dataset(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.checkWeights(d, b.W); err != nil {
		return nil, err
	}

	original, err := r.original(d)
	if err != nil {
		return nil, err
	}

	sse, err := regression.SSE(b.W, d.X, d.Y)
	if err != nil {
		return nil, err
	}
	final, err := statistics(d, b.W, b.GlobalMeanY)
	if err != nil {
		return nil, err
	}

	return fl.FinalStats{
		SiteID:   r.id,
		Count:    d.Count(),
		SSE:      sse,
		SST:      regression.SST(d.Y, b.GlobalMeanY),
		VarX:     regression.GramDiagonal(d.X),
		Final:    final,
		Original: original,
	}, nil
}

func (r *Runner) fit(d Dataset) ([]float64, error) {
	switch r.cfg.FitMethod {
	case FitIterative:
		return regression.FitIterative(d.X, d.Y, r.cfg.Lambda, nil)
	default:
		return regression.FitExact(d.X, d.Y, r.cfg.Lambda)
	}
}

func (r *Runner) checkWeights(d Dataset, w []float64) error {
	if len(w) != d.NumFeatures() {
		return fl.Validation(fmt.Errorf("%w: site %q has %d features, broadcast W has %d",
			fl.ErrFeatureMismatch, r.id, d.NumFeatures(), len(w)))
	}

	return nil
}

func statistics(d Dataset, w []float64, meanY float64) (fl.Statistics, error) {
	r2, err := regression.RSquared(w, d.X, d.Y, meanY)
	if err != nil {
		return fl.Statistics{}, err
	}
	t, err := regression.TValues(w, d.X, d.Y)
	if err != nil {
		return fl.Statistics{}, fl.Validation(err)
	}
	df := regression.DegreesOfFreedom(d.Count(), d.NumFeatures())

	return fl.Statistics{
		RSquared:         r2,
		TValues:          t,
		PValues:          regression.PValues(df, t),
		DegreesOfFreedom: df,
	}, nil
}
