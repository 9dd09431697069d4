// Package fl holds the vocabulary shared by sites and the aggregator of a
// federated ridge regression run: phases, per-round broadcasts and
// contributions, the final result, the error taxonomy and the wire codec.
package fl

import "fmt"

// Phase is the aggregator's position in a run.
type Phase uint8

const (
	Init Phase = iota
	Iterating
	AwaitingMeanY
	AwaitingFinalStats
	Complete
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case Iterating:
		return "iterating"
	case AwaitingMeanY:
		return "awaiting_mean_y"
	case AwaitingFinalStats:
		return "awaiting_final_stats"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	if p > Complete {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, uint8(p))
	}

	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for c := Init; c <= Complete; c++ {
		if c.String() == string(text) {
			*p = c

			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownPhase, text)
}

// HaltReason records why optimisation stopped.
type HaltReason string

const (
	Diverged      HaltReason = "diverged"
	Converged     HaltReason = "converged"
	MaxIterations HaltReason = "max_iterations"
)

// Kind tags every broadcast and contribution variant on the wire.
type Kind string

const (
	KindKickoff   Kind = "kickoff"
	KindIterate   Kind = "iterate"
	KindHalted    Kind = "halted"
	KindMeanY     Kind = "mean_y"
	KindCompleted Kind = "completed"
	KindDeferred  Kind = "deferred"

	KindPreprocessed Kind = "preprocessed"
	KindGradient     Kind = "gradient"
	KindLocalStats   Kind = "local_stats"
	KindFinalStats   Kind = "final_stats"
	KindFailed       Kind = "failed"
)

// Broadcast is sent by the aggregator to every site after a round.
type Broadcast interface {
	Kind() Kind
	broadcast()
}

// Contribution is what a single site sends to the aggregator for a round.
type Contribution interface {
	Kind() Kind
	Site() string
	contribution()
}

// Kickoff asks every site to preprocess its data.
type Kickoff struct{}

// Iterate carries the weights to evaluate in the next optimisation round.
type Iterate struct {
	W         []float64 `json:"w"`
	Lambda    float64   `json:"lambda"`
	Iteration int       `json:"iteration"`
}

// Halted ends optimisation and opens statistics phase 0.
type Halted struct {
	W               []float64  `json:"w"`
	Lambda          float64    `json:"lambda"`
	Reason          HaltReason `json:"reason"`
	StatisticsPhase int        `json:"statistics_phase"`
}

// MeanY carries the global response mean and opens statistics phase 1.
type MeanY struct {
	W               []float64 `json:"w"`
	Lambda          float64   `json:"lambda"`
	GlobalMeanY     float64   `json:"global_mean_y"`
	StatisticsPhase int       `json:"statistics_phase"`
}

// Completed carries the final result.
type Completed struct {
	Result Result `json:"result"`
}

// Deferred is returned when a statistics round was submitted before every
// site caught up. Pending lists the sites whose payload is missing or stale.
type Deferred struct {
	Phase   Phase    `json:"phase"`
	Pending []string `json:"pending,omitempty"`
}

func (Kickoff) Kind() Kind   { return KindKickoff }
func (Iterate) Kind() Kind   { return KindIterate }
func (Halted) Kind() Kind    { return KindHalted }
func (MeanY) Kind() Kind     { return KindMeanY }
func (Completed) Kind() Kind { return KindCompleted }
func (Deferred) Kind() Kind  { return KindDeferred }

func (Kickoff) broadcast()   {}
func (Iterate) broadcast()   {}
func (Halted) broadcast()    {}
func (MeanY) broadcast()     {}
func (Completed) broadcast() {}
func (Deferred) broadcast()  {}

// Preprocessed is a site's answer to Kickoff.
type Preprocessed struct {
	SiteID      string   `json:"site_id"`
	NumFeatures int      `json:"num_features"`
	Eta         float64  `json:"eta"`
	Lambda      float64  `json:"lambda"`
	Count       int      `json:"count"`
	XLabels     []string `json:"x_labels,omitempty"`
	YLabel      string   `json:"y_label,omitempty"`
}

// Gradient is a site's local gradient and objective at the broadcast W.
type Gradient struct {
	SiteID      string    `json:"site_id"`
	Gradient    []float64 `json:"gradient"`
	Objective   float64   `json:"objective"`
	NumFeatures int       `json:"num_features"`
}

// LocalStats is statistics phase 0: a site's own fit and response mean.
type LocalStats struct {
	SiteID   string     `json:"site_id"`
	MeanY    float64    `json:"mean_y"`
	Count    int        `json:"count"`
	Beta     []float64  `json:"beta,omitempty"`
	Original Statistics `json:"original"`
}

// FinalStats is statistics phase 1: sufficient statistics at the converged W
// measured against the global response mean.
type FinalStats struct {
	SiteID   string     `json:"site_id"`
	Count    int        `json:"count"`
	SSE      float64    `json:"sse"`
	SST      float64    `json:"sst"`
	VarX     []float64  `json:"var_x"`
	Final    Statistics `json:"final"`
	Original LocalStats `json:"original"`
}

// Failed reports that a site cannot go on with the run. It fails the run
// whatever phase it arrives in.
type Failed struct {
	SiteID string `json:"site_id"`
	Error  string `json:"error"`
}

func (Preprocessed) Kind() Kind { return KindPreprocessed }
func (Gradient) Kind() Kind     { return KindGradient }
func (LocalStats) Kind() Kind   { return KindLocalStats }
func (FinalStats) Kind() Kind   { return KindFinalStats }
func (Failed) Kind() Kind       { return KindFailed }

func (c Preprocessed) Site() string { return c.SiteID }
func (c Gradient) Site() string     { return c.SiteID }
func (c LocalStats) Site() string   { return c.SiteID }
func (c FinalStats) Site() string   { return c.SiteID }
func (c Failed) Site() string       { return c.SiteID }

func (Preprocessed) contribution() {}
func (Gradient) contribution()     {}
func (LocalStats) contribution()   {}
func (FinalStats) contribution()   {}
func (Failed) contribution()       {}

// Statistics are the inferential statistics of one fit.
type Statistics struct {
	RSquared         float64   `json:"r_squared"`
	TValues          []float64 `json:"t_values"`
	PValues          []float64 `json:"p_values"`
	DegreesOfFreedom int       `json:"degrees_of_freedom"`
}

// Result is the outcome of a completed run.
type Result struct {
	Complete bool                  `json:"complete"`
	Global   GlobalResult          `json:"global"`
	PerSite  map[string]SiteResult `json:"per_site"`
	XLabels  []string              `json:"x_labels,omitempty"`
	YLabel   string                `json:"y_label,omitempty"`
}

type GlobalResult struct {
	Beta             []float64  `json:"beta"`
	RSquared         float64    `json:"r_squared"`
	TValues          []float64  `json:"t_values"`
	PValues          []float64  `json:"p_values"`
	DegreesOfFreedom int        `json:"degrees_of_freedom"`
	MeanY            float64    `json:"mean_y"`
	Count            int        `json:"count"`
	HaltReason       HaltReason `json:"halt_reason"`
	Iterations       int        `json:"iterations"`
}

// SiteResult holds a site's locally fitted beta, its statistics at the
// converged W and the statistics of its own fit.
type SiteResult struct {
	Beta             []float64  `json:"beta"`
	RSquared         float64    `json:"r_squared"`
	TValues          []float64  `json:"t_values"`
	PValues          []float64  `json:"p_values"`
	DegreesOfFreedom int        `json:"degrees_of_freedom"`
	Count            int        `json:"count"`
	Original         Statistics `json:"original"`
}
