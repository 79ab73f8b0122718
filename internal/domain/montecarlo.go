package domain

import "github.com/shopspring/decimal"

// MonteCarloOptions configures a Monte Carlo run.
type MonteCarloOptions struct {
	// Iterations is the number of simulated paths. Default: 1000.
	Iterations int `yaml:"iterations" json:"iterations"`
	// Volatility is the annualized return volatility. Default: 0.15.
	Volatility decimal.Decimal `yaml:"volatility" json:"volatility"`
	// Seed is the base seed; path i runs with Seed+i.
	Seed int64 `yaml:"seed" json:"seed"`
	// Workers bounds parallel chunk execution; zero means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`

	StressScenario string `yaml:"stress_scenario" json:"stress_scenario"`
	StartYear      int    `yaml:"start_year" json:"start_year"`

	// SuccessFloor is the real (today's money) end wealth a path must exceed
	// to count as a positive end; compared against floor × cumulative
	// inflation at the horizon.
	SuccessFloor decimal.Decimal `yaml:"success_floor" json:"success_floor"`
	// RuinWealthFraction of retirement-start wealth below which a withdrawal
	// month marks the path as ruined. Default: 0.10.
	RuinWealthFraction decimal.Decimal `yaml:"ruin_wealth_fraction" json:"ruin_wealth_fraction"`
	// Shortfall tolerance: a monthly shortfall above
	// max(ShortfallAbsoluteFloor, requested × ShortfallRelativeFloor) also
	// marks the path as ruined. Defaults: 1.00 and 0.05.
	ShortfallAbsoluteFloor decimal.Decimal `yaml:"shortfall_absolute_floor" json:"shortfall_absolute_floor"`
	ShortfallRelativeFloor decimal.Decimal `yaml:"shortfall_relative_floor" json:"shortfall_relative_floor"`

	// Progress, when set, receives throttled (completed, total) updates.
	Progress func(done, total int) `yaml:"-" json:"-"`
}

// PathRecord holds the per-path scalars extracted from one simulation run.
type PathRecord struct {
	Seed                  int64   `json:"seed"`
	EndWealthNominal      float64 `json:"end_wealth_nominal"`
	EndWealthReal         float64 `json:"end_wealth_real"`
	RetirementStartWealth float64 `json:"retirement_start_wealth"`
	LossPotRemaining      float64 `json:"loss_pot_remaining"`
	AllowanceUsed         float64 `json:"allowance_used"`
	// EarlyReturn is the annualized time-weighted return over the first
	// min(5, withdrawalYears) years of withdrawal.
	EarlyReturn float64 `json:"early_return"`
	// MonthsToEmergencyGoal is the first month the cash balance reached the
	// emergency-fund goal, or -1 if it never did.
	MonthsToEmergencyGoal int `json:"months_to_emergency_goal"`

	PositiveEnd           bool `json:"positive_end"`
	Ruin                  bool `json:"ruin"`
	Success               bool `json:"success"`
	PreservationTriggered bool `json:"preservation_triggered"`
	WithdrawalShortfall   bool `json:"withdrawal_shortfall"`
}

// MonteCarloRawData is the mergeable raw output of one chunk of paths.
// Percentiles and correlations must be computed only after all chunks have
// been concatenated; they do not compose from partial aggregates.
type MonteCarloRawData struct {
	// FirstPath is the global index of the first path in this chunk.
	FirstPath int          `json:"first_path"`
	Months    int          `json:"months"`
	Paths     []PathRecord `json:"paths"`
	// MonthlyWealth[m] holds the total wealth of every path in this chunk at
	// month m.
	MonthlyWealth [][]float64 `json:"monthly_wealth"`
}

// PercentileCurves carries one per-month series per tracked percentile.
type PercentileCurves struct {
	P5  []float64 `json:"p5"`
	P10 []float64 `json:"p10"`
	P25 []float64 `json:"p25"`
	P50 []float64 `json:"p50"`
	P75 []float64 `json:"p75"`
	P90 []float64 `json:"p90"`
	P95 []float64 `json:"p95"`
}

// Percentiles holds the tracked order statistics of a scalar distribution.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// SoRRMetrics quantifies sequence-of-returns risk across paths.
type SoRRMetrics struct {
	// RiskScore is the gap between best- and worst-quintile mean end wealth,
	// normalized by the mean retirement-start wealth.
	RiskScore float64 `json:"risk_score"`
	// Correlation is the Pearson correlation between early withdrawal-phase
	// return and end wealth.
	Correlation                float64 `json:"correlation"`
	WorstQuintileMeanEndWealth float64 `json:"worst_quintile_mean_end_wealth"`
	BestQuintileMeanEndWealth  float64 `json:"best_quintile_mean_end_wealth"`
}

// MonteCarloResult is the aggregate of all paths of a Monte Carlo run.
type MonteCarloResult struct {
	Iterations int `json:"iterations"`
	Months     int `json:"months"`

	Wealth    PercentileCurves `json:"wealth"`
	EndWealth Percentiles      `json:"end_wealth"`

	// Rates in percent of paths.
	SuccessRate      float64 `json:"success_rate"`
	RuinProbability  float64 `json:"ruin_probability"`
	PreservationRate float64 `json:"preservation_rate"`

	MedianEndWealthReal float64 `json:"median_end_wealth_real"`
	MeanEndWealth       float64 `json:"mean_end_wealth"`

	// Emergency-fund goal tracking; FillRate in percent, FillMonths is the
	// mean months-to-fill over paths that reached the goal.
	EmergencyFillRate   float64 `json:"emergency_fill_rate"`
	EmergencyFillMonths float64 `json:"emergency_fill_months"`

	SoRR SoRRMetrics `json:"sorr"`
}
