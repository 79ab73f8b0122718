package calculation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

func TestComputeSoRR(t *testing.T) {
	t.Run("early returns drive end wealth", func(t *testing.T) {
		paths := make([]domain.PathRecord, 10)
		for i := range paths {
			paths[i] = domain.PathRecord{
				EarlyReturn:           -0.10 + 0.02*float64(i),
				EndWealthNominal:      100000 + 20000*float64(i),
				RetirementStartWealth: 500000,
			}
		}
		m := computeSoRR(paths)
		assert.InDelta(t, 1.0, m.Correlation, 1e-9, "linear relation yields perfect correlation")
		assert.Greater(t, m.BestQuintileMeanEndWealth, m.WorstQuintileMeanEndWealth)
		// Gap (270k - 110k) over the 500k mean start.
		assert.InDelta(t, 0.32, m.RiskScore, 1e-9)
	})

	t.Run("no paths", func(t *testing.T) {
		m := computeSoRR(nil)
		assert.Zero(t, m.Correlation)
		assert.Zero(t, m.RiskScore)
	})

	t.Run("zero start wealth leaves the score unset", func(t *testing.T) {
		paths := make([]domain.PathRecord, 10)
		for i := range paths {
			paths[i] = domain.PathRecord{
				EarlyReturn:      float64(i),
				EndWealthNominal: float64(i) * 100,
			}
		}
		m := computeSoRR(paths)
		assert.Zero(t, m.RiskScore)
		assert.NotZero(t, m.Correlation)
	})
}
