package calculation

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// stressScenarios maps a scenario key to the fixed sequence of annual returns
// applied during the withdrawal phase, year by year from withdrawal start.
// Once the sequence is exhausted the generator falls back to stochastic draws.
var stressScenarios = map[string][]float64{
	"crash-early":     {-0.40, -0.15, 0.02, 0.06, 0.08},
	"crash-late":      {0.07, 0.07, 0.07, 0.07, 0.07, 0.07, 0.07, 0.07, -0.35, -0.15},
	"stagnation":      {0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00},
	"inflation-shock": {-0.10, -0.05, 0.00, 0.03, 0.05},
}

// StressScenarioKeys lists the available deterministic stress scenarios.
func StressScenarioKeys() []string {
	keys := make([]string, 0, len(stressScenarios))
	for k := range stressScenarios {
		keys = append(keys, k)
	}
	return keys
}

// ReturnGenerator produces monthly asset price multipliers. Each generator
// owns its seeded PRNG instance, so concurrent generators never share state
// and identical seeds reproduce identical sequences.
type ReturnGenerator struct {
	rng *rand.Rand

	drift float64 // monthly log-return drift: ln(1+mu_m) - 0.5*sigma_m^2
	sigma float64 // monthly volatility

	accumulationMonths int
	stress             []float64
}

// NewReturnGenerator builds a geometric-Brownian-motion generator for the
// given annualized net growth rate and volatility. A non-empty stressKey
// overrides the withdrawal phase with the named deterministic sequence.
func NewReturnGenerator(annualGrowth, annualVolatility decimal.Decimal, seed int64, stressKey string, accumulationMonths int) (*ReturnGenerator, error) {
	mu := annualGrowth.InexactFloat64()
	sigma := annualVolatility.InexactFloat64()
	if mu <= -1 {
		return nil, fmt.Errorf("annual growth rate must be greater than -100%%, got %v", mu)
	}
	if sigma < 0 {
		return nil, fmt.Errorf("volatility must not be negative, got %v", sigma)
	}

	var stress []float64
	if stressKey != "" {
		seq, ok := stressScenarios[stressKey]
		if !ok {
			return nil, fmt.Errorf("unknown stress scenario %q", stressKey)
		}
		stress = seq
	}

	muMonthly := math.Pow(1+mu, 1.0/12) - 1
	sigmaMonthly := sigma / math.Sqrt(12)

	return &ReturnGenerator{
		rng:                rand.New(rand.NewSource(seed)),
		drift:              math.Log(1+muMonthly) - 0.5*sigmaMonthly*sigmaMonthly,
		sigma:              sigmaMonthly,
		accumulationMonths: accumulationMonths,
		stress:             stress,
	}, nil
}

// NextMonthlyReturn returns the price multiplier for the given month index.
// The result is always strictly positive.
func (g *ReturnGenerator) NextMonthlyReturn(month int) float64 {
	if g.stress != nil && month >= g.accumulationMonths {
		year := (month - g.accumulationMonths) / 12
		if year < len(g.stress) {
			annual := g.stress[year]
			if annual < -0.95 {
				annual = -0.95
			}
			return math.Pow(1+annual, 1.0/12)
		}
	}
	z := g.normal()
	return math.Exp(g.drift + g.sigma*z)
}

// normal draws a standard normal variate via the Box-Muller transform.
func (g *ReturnGenerator) normal() float64 {
	u1 := g.rng.Float64()
	u2 := g.rng.Float64()
	if u1 < 1e-300 {
		u1 = 1e-300
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
