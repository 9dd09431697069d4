package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/absmach/fedridge/pkg/adadelta"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/regression"
	"gonum.org/v1/gonum/floats"
)

const (
	DefaultMaxIterations     = 250
	DefaultGradientTolerance = 1e-3

	// initialObjective lets the first evaluated round always count as an
	// improvement.
	initialObjective = math.MaxFloat64

	initialWeightScale = 0.1
)

// Config fixes the optimiser for a run. Zero values select the defaults.
type Config struct {
	MaxIterations     int       `json:"max_iterations,omitempty"`
	GradientTolerance float64   `json:"gradient_tolerance,omitempty"`
	Rho               float64   `json:"rho,omitempty"`
	Epsilon           float64   `json:"epsilon,omitempty"`
	InitialW          []float64 `json:"initial_w,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.GradientTolerance <= 0 {
		c.GradientTolerance = DefaultGradientTolerance
	}
	if c.Rho == 0 {
		c.Rho = adadelta.DefaultRho
	}
	if c.Epsilon == 0 {
		c.Epsilon = adadelta.DefaultEpsilon
	}

	return c
}

func (c Config) Validate() error {
	c = c.withDefaults()
	if _, err := adadelta.New(c.Rho, c.Epsilon); err != nil {
		return fl.Validation(err)
	}
	for _, v := range c.InitialW {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fl.Validation(fmt.Errorf("initial W must be finite, got %g", v))
		}
	}

	return nil
}

// State is everything the aggregator knows about a run between rounds.
type State struct {
	Phase       fl.Phase `json:"phase"`
	Sites       []string `json:"sites,omitempty"`
	NumFeatures int      `json:"num_features,omitempty"`
	Eta         float64  `json:"eta,omitempty"`
	Lambda      float64  `json:"lambda"`
	XLabels     []string `json:"x_labels,omitempty"`
	YLabel      string   `json:"y_label,omitempty"`

	Optimizer         adadelta.Optimizer    `json:"optimizer"`
	Accumulators      adadelta.Accumulators `json:"accumulators"`
	MaxIterations     int                   `json:"max_iterations"`
	GradientTolerance float64               `json:"gradient_tolerance"`

	CurrentW          []float64     `json:"current_w,omitempty"`
	PreviousW         []float64     `json:"previous_w,omitempty"`
	Gradient          []float64     `json:"gradient,omitempty"`
	CurrentObjective  float64       `json:"current_objective"`
	PreviousObjective float64       `json:"previous_objective"`
	Iteration         int           `json:"iteration"`
	HaltReason        fl.HaltReason `json:"halt_reason,omitempty"`

	GlobalMeanY float64    `json:"global_mean_y"`
	GlobalCount int        `json:"global_count"`
	Result      *fl.Result `json:"result,omitempty"`
}

func (s State) clone() State {
	s.Sites = slices.Clone(s.Sites)
	s.XLabels = slices.Clone(s.XLabels)
	s.Accumulators = adadelta.Accumulators{
		Eg2: slices.Clone(s.Accumulators.Eg2),
		EdW: slices.Clone(s.Accumulators.EdW),
	}
	s.CurrentW = slices.Clone(s.CurrentW)
	s.PreviousW = slices.Clone(s.PreviousW)
	s.Gradient = slices.Clone(s.Gradient)

	return s
}

// Runner advances a run by one round. It holds no run state.
type Runner struct {
	cfg  Config
	rand *rand.Rand
}

type Option func(*Runner)

// WithRand sets the source of the random initial W.
func WithRand(r *rand.Rand) Option {
	return func(rn *Runner) {
		rn.rand = r
	}
}

func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Step consumes every site's contribution for the round the state is in and
// returns the next state with the broadcast for the sites. The input state
// is left untouched. A Deferred broadcast comes with an unchanged state.
func (r *Runner) Step(ctx context.Context, st State, contributions []fl.Contribution) (State, fl.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return st, nil, err
	}
	if st.Phase == fl.Complete {
		return st, nil, fl.ErrRunCompleted
	}
	if len(contributions) == 0 {
		return st, nil, fl.ErrNoContributions
	}

	cs, err := bySite(contributions)
	if err != nil {
		return st, nil, err
	}
	if err := siteFailure(cs); err != nil {
		return st, nil, err
	}

	next := st.clone()
	switch st.Phase {
	case fl.Init:
		return r.init(next, cs)
	case fl.Iterating:
		return r.iterate(next, cs)
	case fl.AwaitingMeanY:
		return r.meanY(st, next, cs)
	case fl.AwaitingFinalStats:
		return r.finalStats(st, next, cs)
	default:
		return st, nil, fmt.Errorf("%w: %s", fl.ErrUnknownPhase, st.Phase)
	}
}

func (r *Runner) init(st State, cs []fl.Contribution) (State, fl.Broadcast, error) {
	pre := make([]fl.Preprocessed, 0, len(cs))
	for _, c := range cs {
		p, ok := c.(fl.Preprocessed)
		if !ok {
			return State{}, nil, fl.Validation(fmt.Errorf("%w: site %q sent %s during %s",
				fl.ErrUnexpectedKind, c.Site(), c.Kind(), fl.Init))
		}
		pre = append(pre, p)
	}

	first := pre[0]
	for _, p := range pre[1:] {
		if p.NumFeatures != first.NumFeatures {
			return State{}, nil, &fl.FeatureMismatchError{
				SiteA: first.SiteID, FeaturesA: first.NumFeatures,
				SiteB: p.SiteID, FeaturesB: p.NumFeatures,
			}
		}
		if p.Lambda != first.Lambda {
			return State{}, nil, fl.Validation(fmt.Errorf("%w: site %q has %g, site %q has %g",
				ErrLambdaMismatch, first.SiteID, first.Lambda, p.SiteID, p.Lambda))
		}
	}
	if first.NumFeatures <= 0 {
		return State{}, nil, fl.Validation(fmt.Errorf("%w: site %q reports %d features",
			fl.ErrEmptyFeatures, first.SiteID, first.NumFeatures))
	}
	if first.Lambda < 0 || math.IsNaN(first.Lambda) {
		return State{}, nil, fl.Validation(fmt.Errorf("%w: got %g", fl.ErrInvalidLambda, first.Lambda))
	}

	opt, err := adadelta.New(r.cfg.Rho, r.cfg.Epsilon)
	if err != nil {
		return State{}, nil, fl.Validation(err)
	}

	w, err := r.initialW(first.NumFeatures)
	if err != nil {
		return State{}, nil, err
	}

	st.Sites = make([]string, len(pre))
	for i, p := range pre {
		st.Sites[i] = p.SiteID
	}
	st.NumFeatures = first.NumFeatures
	st.Eta = first.Eta
	st.Lambda = first.Lambda
	st.XLabels = slices.Clone(first.XLabels)
	st.YLabel = first.YLabel
	st.Optimizer = opt
	st.Accumulators = adadelta.Zero(first.NumFeatures)
	st.MaxIterations = r.cfg.MaxIterations
	st.GradientTolerance = r.cfg.GradientTolerance
	st.CurrentW = w
	st.PreviousW = slices.Clone(w)
	st.PreviousObjective = initialObjective
	st.Iteration = 1
	st.Phase = fl.Iterating

	return st, fl.Iterate{W: slices.Clone(st.CurrentW), Lambda: st.Lambda, Iteration: st.Iteration}, nil
}

func (r *Runner) initialW(k int) ([]float64, error) {
	if r.cfg.InitialW != nil {
		if len(r.cfg.InitialW) != k {
			return nil, fl.Validation(fmt.Errorf("%w: initial W has %d entries, sites report %d features",
				fl.ErrFeatureMismatch, len(r.cfg.InitialW), k))
		}

		return slices.Clone(r.cfg.InitialW), nil
	}

	w := make([]float64, k)
	for i := range w {
		if r.rand != nil {
			w[i] = r.rand.Float64() * initialWeightScale
		} else {
			w[i] = rand.Float64() * initialWeightScale
		}
	}

	return w, nil
}

func (r *Runner) iterate(st State, cs []fl.Contribution) (State, fl.Broadcast, error) {
	grads := make([]fl.Gradient, 0, len(cs))
	for _, c := range cs {
		g, ok := c.(fl.Gradient)
		if !ok {
			return State{}, nil, fmt.Errorf("%w: site %q sent %s during %s",
				ErrIncompleteRound, c.Site(), c.Kind(), fl.Iterating)
		}
		grads = append(grads, g)
	}
	if err := checkFeatures(st, cs); err != nil {
		return State{}, nil, err
	}
	if pending := missing(st.Sites, cs); len(pending) > 0 {
		return State{}, nil, fmt.Errorf("%w: %v", ErrIncompleteRound, pending)
	}

	objective := 0.0
	gradient := make([]float64, st.NumFeatures)
	for _, g := range grads {
		objective += g.Objective
		floats.Add(gradient, g.Gradient)
	}

	w, acc, _, err := st.Optimizer.Step(st.Accumulators, st.PreviousW, gradient)
	if err != nil {
		return State{}, nil, fl.Validation(err)
	}
	st.Accumulators = acc
	st.CurrentW = w
	st.Gradient = gradient
	st.CurrentObjective = objective

	if reason, halted := haltReason(st); halted {
		st.HaltReason = reason
		st.Phase = fl.AwaitingMeanY

		return st, fl.Halted{W: slices.Clone(st.CurrentW), Lambda: st.Lambda, Reason: reason, StatisticsPhase: 0}, nil
	}

	st.PreviousObjective = st.CurrentObjective
	st.PreviousW = slices.Clone(st.CurrentW)
	st.Iteration++

	return st, fl.Iterate{W: slices.Clone(st.CurrentW), Lambda: st.Lambda, Iteration: st.Iteration}, nil
}

// haltReason applies the halting tests in order; the first match wins.
func haltReason(st State) (fl.HaltReason, bool) {
	switch {
	case st.CurrentObjective > st.PreviousObjective:
		return fl.Diverged, true
	case floats.Norm(st.Gradient, 2) < st.GradientTolerance:
		return fl.Converged, true
	case st.Iteration >= st.MaxIterations:
		return fl.MaxIterations, true
	default:
		return "", false
	}
}

func (r *Runner) meanY(prev, st State, cs []fl.Contribution) (State, fl.Broadcast, error) {
	if err := checkFeatures(st, cs); err != nil {
		return State{}, nil, err
	}

	var pending []string
	stats := make([]fl.LocalStats, 0, len(cs))
	for _, c := range cs {
		ls, ok := c.(fl.LocalStats)
		if !ok || ls.Beta == nil {
			pending = append(pending, c.Site())

			continue
		}
		stats = append(stats, ls)
	}
	pending = append(pending, missing(st.Sites, cs)...)
	if len(pending) > 0 {
		sort.Strings(pending)

		return prev, fl.Deferred{Phase: fl.AwaitingMeanY, Pending: pending}, nil
	}

	means := make([]float64, len(stats))
	counts := make([]int, len(stats))
	total := 0
	for i, ls := range stats {
		if ls.Count <= 0 {
			return State{}, nil, fl.Validation(fmt.Errorf("site %q reports %d rows", ls.SiteID, ls.Count))
		}
		means[i] = ls.MeanY
		counts[i] = ls.Count
		total += ls.Count
	}

	st.GlobalMeanY = regression.WeightedMean(means, counts)
	st.GlobalCount = total
	st.Phase = fl.AwaitingFinalStats

	return st, fl.MeanY{W: slices.Clone(st.CurrentW), Lambda: st.Lambda, GlobalMeanY: st.GlobalMeanY, StatisticsPhase: 1}, nil
}

func (r *Runner) finalStats(prev, st State, cs []fl.Contribution) (State, fl.Broadcast, error) {
	if err := checkFeatures(st, cs); err != nil {
		return State{}, nil, err
	}

	var pending []string
	stats := make([]fl.FinalStats, 0, len(cs))
	for _, c := range cs {
		fs, ok := c.(fl.FinalStats)
		if !ok {
			pending = append(pending, c.Site())

			continue
		}
		stats = append(stats, fs)
	}
	pending = append(pending, missing(st.Sites, cs)...)
	if len(pending) > 0 {
		sort.Strings(pending)

		return prev, fl.Deferred{Phase: fl.AwaitingFinalStats, Pending: pending}, nil
	}

	result, err := reduce(st, stats)
	if err != nil {
		return State{}, nil, err
	}
	st.Result = &result
	st.Phase = fl.Complete

	return st, fl.Completed{Result: result}, nil
}

// bySite returns a copy of cs sorted by site ID so that every reduction sums
// in the same order.
func bySite(cs []fl.Contribution) ([]fl.Contribution, error) {
	sorted := make([]fl.Contribution, 0, len(cs))
	for _, c := range cs {
		if c == nil {
			return nil, fl.Validation(errors.New("nil contribution"))
		}
		sorted = append(sorted, c)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Site() < sorted[j].Site()
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Site() == sorted[i-1].Site() {
			return nil, fl.Validation(fmt.Errorf("%w: %q", fl.ErrDuplicateSite, sorted[i].Site()))
		}
	}

	return sorted, nil
}

// siteFailure returns the failure reported by the first failed site.
func siteFailure(cs []fl.Contribution) error {
	for _, c := range cs {
		if f, ok := c.(fl.Failed); ok {
			return fl.Validation(fmt.Errorf("%w: site %q: %s", fl.ErrSiteFailed, f.SiteID, f.Error))
		}
	}

	return nil
}

// checkFeatures rejects contributions from unknown sites and any feature
// count that disagrees with another site or with the run.
func checkFeatures(st State, cs []fl.Contribution) error {
	var (
		refSite     string
		refFeatures = -1
	)
	for _, c := range cs {
		if !slices.Contains(st.Sites, c.Site()) {
			return fl.Validation(fmt.Errorf("%w: %q", fl.ErrUnknownSite, c.Site()))
		}

		n, ok := featureCount(c)
		if !ok {
			continue
		}
		if refFeatures >= 0 && n != refFeatures {
			return &fl.FeatureMismatchError{SiteA: refSite, FeaturesA: refFeatures, SiteB: c.Site(), FeaturesB: n}
		}
		refSite, refFeatures = c.Site(), n
	}
	if refFeatures >= 0 && refFeatures != st.NumFeatures {
		return fl.Validation(fmt.Errorf("%w: site %q reports %d features, run has %d",
			fl.ErrFeatureMismatch, refSite, refFeatures, st.NumFeatures))
	}

	return nil
}

func featureCount(c fl.Contribution) (int, bool) {
	switch c := c.(type) {
	case fl.Preprocessed:
		return c.NumFeatures, true
	case fl.Gradient:
		if len(c.Gradient) != c.NumFeatures {
			return len(c.Gradient), true
		}

		return c.NumFeatures, true
	case fl.LocalStats:
		if c.Beta == nil {
			return 0, false
		}

		return len(c.Beta), true
	case fl.FinalStats:
		return len(c.VarX), true
	default:
		return 0, false
	}
}

// missing returns the run's sites absent from cs.
func missing(sites []string, cs []fl.Contribution) []string {
	var out []string
	for _, s := range sites {
		if !slices.ContainsFunc(cs, func(c fl.Contribution) bool { return c.Site() == s }) {
			out = append(out, s)
		}
	}

	return out
}
