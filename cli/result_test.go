package cli

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintable(t *testing.T) {
	res := fl.Result{
		Complete: true,
		XLabels:  []string{"age"},
		YLabel:   "TotalGrayVol",
		Global: fl.GlobalResult{
			Beta:             []float64{1.5, 10},
			RSquared:         1,
			TValues:          []float64{math.Inf(1), math.NaN()},
			PValues:          []float64{0, math.NaN()},
			DegreesOfFreedom: 3,
			Count:            5,
			MeanY:            12,
			HaltReason:       fl.Converged,
			Iterations:       148,
		},
		PerSite: map[string]fl.SiteResult{
			"site-b": {Beta: []float64{1, 2}, Count: 2},
			"site-a": {Beta: []float64{3, 4}, Count: 3},
		},
	}

	view := printable(res)

	_, err := json.Marshal(view)
	require.NoError(t, err)

	assert.Equal(t, []coefficient{
		{Label: "age", Beta: "1.5", TValue: "+Inf", PValue: "0"},
		{Label: "x1", Beta: "10", TValue: "NaN", PValue: "NaN"},
	}, view.Global.Coefficients)
	require.Len(t, view.PerSite, 2)
	assert.Equal(t, "site-a", view.PerSite[0].Site)
	assert.Equal(t, "site-b", view.PerSite[1].Site)
	assert.Equal(t, "3", view.PerSite[0].Coefficients[0].Beta)
}
