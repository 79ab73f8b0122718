package calculation

import (
	"github.com/dpgo/drawdown-planner/internal/domain"
	"github.com/dpgo/drawdown-planner/pkg/stats"
)

// computeSoRR quantifies sequence-of-returns risk: paths are ranked by their
// annualized return over the early withdrawal years, split into quintiles,
// and the end-wealth gap between the best and worst quintile is normalized by
// the mean retirement-start wealth. The Pearson correlation between early
// return and end wealth is reported alongside.
func computeSoRR(paths []domain.PathRecord) domain.SoRRMetrics {
	n := len(paths)
	if n == 0 {
		return domain.SoRRMetrics{}
	}

	early := make([]float64, n)
	end := make([]float64, n)
	start := make([]float64, n)
	for i, p := range paths {
		early[i] = p.EarlyReturn
		end[i] = p.EndWealthNominal
		start[i] = p.RetirementStartWealth
	}

	worst, best := stats.QuintileMeans(early, end)
	meanStart := stats.Mean(start)

	m := domain.SoRRMetrics{
		Correlation:                stats.PearsonCorrelation(early, end),
		WorstQuintileMeanEndWealth: worst,
		BestQuintileMeanEndWealth:  best,
	}
	if meanStart > 0 {
		m.RiskScore = (best - worst) / meanStart
	}
	return m
}
