package aggregator

import (
	"fmt"
	"math"
	"slices"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/regression"
)

// reduce combines every site's final statistics into the run result. stats
// must be sorted by site.
func reduce(st State, stats []fl.FinalStats) (fl.Result, error) {
	var sse, sst float64
	count := 0
	varX := make([]float64, st.NumFeatures)
	perSite := make(map[string]fl.SiteResult, len(stats))

	for _, fs := range stats {
		if len(fs.VarX) != st.NumFeatures {
			return fl.Result{}, fl.Validation(fmt.Errorf("%w: site %q sent %d variances, run has %d features",
				fl.ErrFeatureMismatch, fs.SiteID, len(fs.VarX), st.NumFeatures))
		}
		sse += fs.SSE
		sst += fs.SST
		count += fs.Count
		for j, v := range fs.VarX {
			varX[j] += v
		}

		perSite[fs.SiteID] = fl.SiteResult{
			Beta:             slices.Clone(fs.Original.Beta),
			RSquared:         fs.Final.RSquared,
			TValues:          slices.Clone(fs.Final.TValues),
			PValues:          slices.Clone(fs.Final.PValues),
			DegreesOfFreedom: fs.Final.DegreesOfFreedom,
			Count:            fs.Count,
			Original:         fs.Original.Original,
		}
	}

	df := regression.DegreesOfFreedom(count, st.NumFeatures)
	if df <= 0 {
		return fl.Result{}, fl.Validation(fmt.Errorf("%w: %d rows for %d features",
			regression.ErrInsufficientDegreesOfFreedom, count, st.NumFeatures))
	}

	varError := sse / float64(df)
	tValues := make([]float64, st.NumFeatures)
	for j := range tValues {
		tValues[j] = st.CurrentW[j] / math.Sqrt(varError/varX[j])
	}

	return fl.Result{
		Complete: true,
		Global: fl.GlobalResult{
			Beta:             slices.Clone(st.CurrentW),
			RSquared:         1 - sse/sst,
			TValues:          tValues,
			PValues:          regression.PValues(df, tValues),
			DegreesOfFreedom: df,
			MeanY:            st.GlobalMeanY,
			Count:            count,
			HaltReason:       st.HaltReason,
			Iterations:       st.Iteration,
		},
		PerSite: perSite,
		XLabels: slices.Clone(st.XLabels),
		YLabel:  st.YLabel,
	}, nil
}
