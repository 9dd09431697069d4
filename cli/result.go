package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/absmach/fedridge/pkg/fl"
)

// Statistics may be infinite or NaN, which JSON cannot carry, so results
// are printed with every float formatted as a string.

type coefficient struct {
	Label  string `json:"label"`
	Beta   string `json:"beta"`
	TValue string `json:"t_value,omitempty"`
	PValue string `json:"p_value,omitempty"`
}

type fitView struct {
	Site             string        `json:"site,omitempty"`
	RSquared         string        `json:"r_squared"`
	DegreesOfFreedom int           `json:"degrees_of_freedom"`
	Count            int           `json:"count"`
	MeanY            string        `json:"mean_y,omitempty"`
	HaltReason       fl.HaltReason `json:"halt_reason,omitempty"`
	Iterations       int           `json:"iterations,omitempty"`
	Coefficients     []coefficient `json:"coefficients"`
}

type resultView struct {
	YLabel  string    `json:"y_label,omitempty"`
	Global  fitView   `json:"global"`
	PerSite []fitView `json:"per_site"`
}

func printable(res fl.Result) resultView {
	g := res.Global
	view := resultView{
		YLabel: res.YLabel,
		Global: fitView{
			RSquared:         formatFloat(g.RSquared),
			DegreesOfFreedom: g.DegreesOfFreedom,
			Count:            g.Count,
			MeanY:            formatFloat(g.MeanY),
			HaltReason:       g.HaltReason,
			Iterations:       g.Iterations,
			Coefficients:     coefficients(res.XLabels, g.Beta, g.TValues, g.PValues),
		},
	}

	ids := make([]string, 0, len(res.PerSite))
	for id := range res.PerSite {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := res.PerSite[id]
		view.PerSite = append(view.PerSite, fitView{
			Site:             id,
			RSquared:         formatFloat(s.RSquared),
			DegreesOfFreedom: s.DegreesOfFreedom,
			Count:            s.Count,
			Coefficients:     coefficients(res.XLabels, s.Beta, s.TValues, s.PValues),
		})
	}

	return view
}

func coefficients(labels []string, beta, t, p []float64) []coefficient {
	cs := make([]coefficient, len(beta))
	for i, b := range beta {
		cs[i] = coefficient{
			Label: fmt.Sprintf("x%d", i),
			Beta:  formatFloat(b),
		}
		if i < len(labels) {
			cs[i].Label = labels[i]
		}
		if i < len(t) {
			cs[i].TValue = formatFloat(t[i])
		}
		if i < len(p) {
			cs[i].PValue = formatFloat(p[i])
		}
	}

	return cs
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
